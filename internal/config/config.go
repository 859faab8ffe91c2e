package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// CameraConfig holds simulated sensor settings.
type CameraConfig struct {
	ADUPerMs float64
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server ServerConfig
	Camera CameraConfig

	Mode          string
	StateDir      string
	ImageDir      string
	LogLevel      string
	HistoryKeep   int
	WebhookURL    string
	ShutdownGrace time.Duration
}

const (
	defaultAddr          = "0.0.0.0:8080"
	defaultMode          = "http"
	defaultLogLevel      = "info"
	defaultHistoryKeep   = 200
	defaultADUPerMs      = 0.05
	defaultShutdownGrace = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvFloat returns the environment variable as float64 or default
func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	// Load .env file if exists (silent fail if not present)
	// Check multiple locations: current directory, then config directory
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "allskyd", ".env"))
	}
	_ = godotenv.Load(envFiles...) // Ignore error - file is optional

	// Build config from environment variables with defaults
	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("ALLSKY_ADDR", defaultAddr),
			AuthToken: getEnvString("ALLSKY_AUTH_TOKEN", ""),
		},
		Camera: CameraConfig{
			ADUPerMs: getEnvFloat("ALLSKY_SIM_ADU_PER_MS", defaultADUPerMs),
		},
		Mode:          getEnvString("ALLSKY_MODE", defaultMode),
		StateDir:      getEnvString("ALLSKY_STATE_DIR", ""),
		ImageDir:      getEnvString("ALLSKY_IMAGE_DIR", ""),
		LogLevel:      getEnvString("ALLSKY_LOG_LEVEL", defaultLogLevel),
		HistoryKeep:   getEnvInt("ALLSKY_HISTORY_KEEP", defaultHistoryKeep),
		WebhookURL:    getEnvString("ALLSKY_WEBHOOK_URL", ""),
		ShutdownGrace: getEnvDuration("ALLSKY_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	// Define CLI flags (these will override environment variables)
	var addr, mode, stateDir, imageDir, logLevel string
	var historyKeep int
	var shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&mode, "mode", "", "Run mode: http, mcp or both")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the database")
	flag.StringVar(&imageDir, "image-dir", "", "Directory to store captured frames")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.IntVar(&historyKeep, "history-keep", 0, "Number of capture cycles to retain")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	// Apply CLI flags if set (they take precedence)
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if imageDir != "" {
		cfg.ImageDir = imageDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if historyKeep > 0 {
		cfg.HistoryKeep = historyKeep
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "shutdown-grace" {
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	cfg.Mode = strings.ToLower(cfg.Mode)
	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q: must be http, mcp or both", cfg.Mode)
	}

	// Resolve state dir if not set
	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.ImageDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default image dir: %w", err)
		}
		cfg.ImageDir = filepath.Join(home, "allsky_images")
	}

	// Ensure retention is valid
	if cfg.HistoryKeep < 1 {
		cfg.HistoryKeep = defaultHistoryKeep
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "allskyd")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
