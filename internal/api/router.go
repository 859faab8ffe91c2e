package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"allskyd/internal/catalog"
	"allskyd/internal/core"
	"allskyd/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	store      *store.Store
	scheduler  *core.Scheduler
	catalog    *catalog.Catalog
	logger     *slog.Logger
	authToken  string
}

// NewServer constructs the HTTP API server.
func NewServer(addr string, authToken string, store *store.Store, scheduler *core.Scheduler, cat *catalog.Catalog, logger *slog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		store:     store,
		scheduler: scheduler,
		catalog:   cat,
		logger:    logger,
		authToken: authToken,
	}
	s.registerRoutes()

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	s.httpServer = httpServer
	return s, nil
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	// Raw frame downloads, protected like the API
	fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(s.catalog.Dir())))
	if s.authToken != "" {
		fileServer = AuthMiddleware(s.authToken)(fileServer)
	}
	s.router.Handle("/files/*", fileServer)

	s.router.Route("/v1", func(r chi.Router) {
		// Apply authentication to all API endpoints
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Get("/status", s.handleStatus)
		r.Get("/system", s.handleSystemStatus)

		r.Route("/capture", func(r chi.Router) {
			r.Post("/start", s.handleStartCapture)
			r.Post("/stop", s.handleStopCapture)
			r.Post("/trigger", s.handleTriggerCapture)
			r.Post("/interval", s.handleSetInterval)
		})

		r.Get("/captures", s.handleListCaptures)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/", s.handleUpdateSettings)
		})

		r.Get("/solar", s.handleSolarInfo)

		r.Route("/images", func(r chi.Router) {
			r.Get("/", s.handleListImages)
			r.Get("/latest", s.handleLatestImage)
			r.Delete("/sessions", s.handleDeleteSessions)
		})
	})
}
