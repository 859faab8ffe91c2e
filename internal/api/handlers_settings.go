package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"allskyd/internal/astro"
	"allskyd/internal/core"
)

type windowPayload struct {
	Daytime              bool `json:"daytime"`
	CivilTwilight        bool `json:"civil_twilight"`
	NauticalTwilight     bool `json:"nautical_twilight"`
	AstronomicalDarkness bool `json:"astronomical_darkness"`
}

type settingsPayload struct {
	Latitude           *float64      `json:"latitude"`
	Longitude          *float64      `json:"longitude"`
	TimezoneOffset     float64       `json:"timezone_offset"`
	DSTEnabled         bool          `json:"dst_enabled"`
	MinExposureMs      float64       `json:"min_exposure_ms"`
	MaxExposureMs      float64       `json:"max_exposure_ms"`
	FallbackExposureMs float64       `json:"fallback_exposure_ms"`
	TargetADU          float64       `json:"target_adu"`
	Tolerance          float64       `json:"tolerance"`
	Window             windowPayload `json:"window"`
	IntervalSeconds    int           `json:"interval_seconds"`
	UpdatedAt          string        `json:"updated_at,omitempty"`
}

func toSettingsPayload(settings core.Settings) settingsPayload {
	return settingsPayload{
		Latitude:           settings.Site.Latitude,
		Longitude:          settings.Site.Longitude,
		TimezoneOffset:     settings.Site.TimezoneOffset,
		DSTEnabled:         settings.Site.DSTEnabled,
		MinExposureMs:      settings.Bounds.MinMs,
		MaxExposureMs:      settings.Bounds.MaxMs,
		FallbackExposureMs: settings.Bounds.FallbackMs,
		TargetADU:          settings.TargetADU,
		Tolerance:          settings.Tolerance,
		Window: windowPayload{
			Daytime:              settings.Window.Daytime,
			CivilTwilight:        settings.Window.CivilTwilight,
			NauticalTwilight:     settings.Window.NauticalTwilight,
			AstronomicalDarkness: settings.Window.AstronomicalDarkness,
		},
		IntervalSeconds: settings.IntervalSeconds,
		UpdatedAt:       settings.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSettingsPayload(s.scheduler.Settings()))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if req.Latitude != nil && (*req.Latitude < -90 || *req.Latitude > 90) {
		writeError(w, http.StatusBadRequest, "invalid_input", "latitude must be between -90 and 90")
		return
	}
	if req.Longitude != nil && (*req.Longitude < -180 || *req.Longitude > 180) {
		writeError(w, http.StatusBadRequest, "invalid_input", "longitude must be between -180 and 180")
		return
	}
	if req.MinExposureMs < 1 {
		writeError(w, http.StatusBadRequest, "invalid_input", "min_exposure_ms must be at least 1")
		return
	}
	if req.MaxExposureMs < req.MinExposureMs {
		writeError(w, http.StatusBadRequest, "invalid_input", "max_exposure_ms must not be below min_exposure_ms")
		return
	}
	if req.Tolerance <= 0 || req.Tolerance >= 1 {
		writeError(w, http.StatusBadRequest, "invalid_input", "tolerance must be between 0 and 1")
		return
	}

	settings := core.Settings{
		Site: astro.Site{
			Latitude:       req.Latitude,
			Longitude:      req.Longitude,
			TimezoneOffset: req.TimezoneOffset,
			DSTEnabled:     req.DSTEnabled,
		},
		TargetADU:       req.TargetADU,
		Tolerance:       req.Tolerance,
		IntervalSeconds: req.IntervalSeconds,
		Window: core.WindowPolicy{
			Daytime:              req.Window.Daytime,
			CivilTwilight:        req.Window.CivilTwilight,
			NauticalTwilight:     req.Window.NauticalTwilight,
			AstronomicalDarkness: req.Window.AstronomicalDarkness,
		},
	}
	settings.Bounds.MinMs = req.MinExposureMs
	settings.Bounds.MaxMs = req.MaxExposureMs
	settings.Bounds.FallbackMs = req.FallbackExposureMs

	if err := s.scheduler.ApplySettings(r.Context(), settings); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsPayload(s.scheduler.Settings()))
}

func (s *Server) handleSolarInfo(w http.ResponseWriter, r *http.Request) {
	site := s.scheduler.Settings().Site
	now := time.Now()

	boundaries, err := astro.DayBoundaries(now, site)
	if errors.Is(err, astro.ErrNoLocation) {
		writeError(w, http.StatusBadRequest, "no_location", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "no_solar_events", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sunrise":                   boundaries.Sunrise,
		"sunset":                    boundaries.Sunset,
		"civil_twilight_end":        boundaries.CivilTwilightEnd,
		"nautical_twilight_end":     boundaries.NauticalTwilightEnd,
		"astronomical_twilight_end": boundaries.AstronomicalTwilightEnd,
		"midnight_sun":              boundaries.MidnightSun,
		"current_period":            astro.Resolve(now, site).String(),
	})
}
