package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"allskyd/internal/core"
)

type triggerCaptureRequest struct {
	ExposureMs *float64 `json:"exposure_ms"`
}

type setIntervalRequest struct {
	Seconds int `json:"seconds"`
}

type captureResponse struct {
	ID          string   `json:"id"`
	Filename    *string  `json:"filename,omitempty"`
	ExposureMs  *float64 `json:"exposure_ms,omitempty"`
	Brightness  *float64 `json:"brightness,omitempty"`
	Outcome     string   `json:"outcome"`
	TrialCount  int      `json:"trial_count"`
	Error       *string  `json:"error,omitempty"`
	TriggeredBy string   `json:"triggered_by"`
	CreatedAt   string   `json:"created_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Start(r.Context()); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Stop(r.Context()); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleTriggerCapture(w http.ResponseWriter, r *http.Request) {
	var req triggerCaptureRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
	}
	if req.ExposureMs != nil && *req.ExposureMs <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "exposure_ms must be positive")
		return
	}

	if err := s.scheduler.TriggerOnce(req.ExposureMs); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "capture started"})
}

func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var req setIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if err := s.scheduler.SetInterval(r.Context(), req.Seconds); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"interval_seconds": req.Seconds})
}

func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	runs, err := s.store.ListCaptures(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list captures", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list captures")
		return
	}

	out := make([]captureResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, captureResponse{
			ID:          run.ID,
			Filename:    run.Filename,
			ExposureMs:  run.ExposureMs,
			Brightness:  run.Brightness,
			Outcome:     run.Outcome,
			TrialCount:  run.TrialCount,
			Error:       run.Error,
			TriggeredBy: run.TriggeredBy,
			CreatedAt:   run.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": out})
}

// writeSchedulerError maps the scheduler sentinels onto HTTP statuses.
func writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "already_running", err.Error())
	case errors.Is(err, core.ErrNotRunning):
		writeError(w, http.StatusConflict, "not_running", err.Error())
	case errors.Is(err, core.ErrCaptureInProgress):
		writeError(w, http.StatusConflict, "capture_in_progress", err.Error())
	case errors.Is(err, core.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid_interval", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
