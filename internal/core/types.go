package core

import (
	"time"

	"allskyd/internal/astro"
	"allskyd/internal/exposure"
)

// WindowPolicy selects which sky periods the automatic loop may capture in.
// The zero value blocks everything; the usual configuration enables only the
// dark periods.
type WindowPolicy struct {
	Daytime              bool `json:"daytime"`
	CivilTwilight        bool `json:"civil_twilight"`
	NauticalTwilight     bool `json:"nautical_twilight"`
	AstronomicalDarkness bool `json:"astronomical_darkness"`
}

// Allows reports whether automatic captures may run during the given period.
// An unknown period (no configured location, polar conditions) is permissive:
// the operator turned the loop on, so we capture.
func (p WindowPolicy) Allows(period astro.Period) bool {
	switch period {
	case astro.PeriodDaytime:
		return p.Daytime
	case astro.PeriodCivilTwilight:
		return p.CivilTwilight
	case astro.PeriodNauticalTwilight:
		return p.NauticalTwilight
	case astro.PeriodAstronomicalDarkness:
		return p.AstronomicalDarkness
	default:
		return true
	}
}

// DefaultWindowPolicy captures through every period after civil sunset.
func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{
		CivilTwilight:        true,
		NauticalTwilight:     true,
		AstronomicalDarkness: true,
	}
}

// Settings is the full persisted configuration of the capture engine.
type Settings struct {
	Site            astro.Site      `json:"site"`
	Bounds          exposure.Bounds `json:"bounds"`
	TargetADU       float64         `json:"target_adu"`
	Tolerance       float64         `json:"tolerance"`
	Window          WindowPolicy    `json:"window"`
	IntervalSeconds int             `json:"interval_seconds"`
	RunIntent       bool            `json:"run_intent"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DefaultSettings returns a working configuration for a camera that has
// never been set up: a mid-latitude site left unset, a 60s cadence and the
// stock exposure search window.
func DefaultSettings() Settings {
	return Settings{
		Bounds: exposure.Bounds{
			MinMs:      1,
			MaxMs:      30000,
			FallbackMs: 30000,
		},
		TargetADU:       255.0 / 4,
		Tolerance:       exposure.DefaultTolerance,
		Window:          DefaultWindowPolicy(),
		IntervalSeconds: 60,
	}
}

// CaptureRun records one completed or failed capture cycle.
type CaptureRun struct {
	ID          string    `json:"id"`
	Filename    *string   `json:"filename,omitempty"`
	ExposureMs  *float64  `json:"exposure_ms,omitempty"`
	Brightness  *float64  `json:"brightness,omitempty"`
	Outcome     string    `json:"outcome"`
	TrialCount  int       `json:"trial_count"`
	Error       *string   `json:"error,omitempty"`
	TriggeredBy string    `json:"triggered_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Status is a point-in-time snapshot of the capture engine.
type Status struct {
	RunIntent       bool     `json:"run_intent"`
	IsCapturing     bool     `json:"is_capturing"`
	WorkerAlive     bool     `json:"worker_alive"`
	IntervalSeconds int      `json:"interval_seconds"`
	LastCaptureUnix int64    `json:"last_capture_unix"`
	CurrentPeriod   string   `json:"current_period"`
	LogLines        []string `json:"log_lines"`
}
