package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"allskyd/internal/astro"
	"allskyd/internal/core"
	"allskyd/internal/exposure"
)

// ErrNoSettings is returned when the engine has never been configured. It is
// the scheduler's sentinel, re-exported where callers expect store errors.
var ErrNoSettings = core.ErrNoSettings

// LoadSettings returns the single persisted settings row, or ErrNoSettings
// when the engine has never been configured.
func (s *Store) LoadSettings(ctx context.Context) (core.Settings, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT latitude, longitude, timezone_offset, dst_enabled,
		       min_exposure_ms, max_exposure_ms, fallback_exposure_ms,
		       target_adu, tolerance,
		       window_daytime, window_civil, window_nautical, window_astronomical,
		       interval_seconds, run_intent, updated_at
		FROM settings WHERE id = 1
	`)

	var (
		latitude  sql.NullFloat64
		longitude sql.NullFloat64
		site      astro.Site
		bounds    exposure.Bounds
		settings  core.Settings
		updatedAt string
	)
	err := row.Scan(
		&latitude, &longitude, &site.TimezoneOffset, &site.DSTEnabled,
		&bounds.MinMs, &bounds.MaxMs, &bounds.FallbackMs,
		&settings.TargetADU, &settings.Tolerance,
		&settings.Window.Daytime, &settings.Window.CivilTwilight,
		&settings.Window.NauticalTwilight, &settings.Window.AstronomicalDarkness,
		&settings.IntervalSeconds, &settings.RunIntent, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Settings{}, core.ErrNoSettings
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	if latitude.Valid {
		site.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		site.Longitude = &longitude.Float64
	}
	settings.Site = site
	settings.Bounds = bounds
	settings.UpdatedAt = parseStoredTime(updatedAt)
	return settings, nil
}

// SaveSettings upserts the single settings row.
func (s *Store) SaveSettings(ctx context.Context, settings core.Settings) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO settings (
			id, latitude, longitude, timezone_offset, dst_enabled,
			min_exposure_ms, max_exposure_ms, fallback_exposure_ms,
			target_adu, tolerance,
			window_daytime, window_civil, window_nautical, window_astronomical,
			interval_seconds, run_intent, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			timezone_offset = excluded.timezone_offset,
			dst_enabled = excluded.dst_enabled,
			min_exposure_ms = excluded.min_exposure_ms,
			max_exposure_ms = excluded.max_exposure_ms,
			fallback_exposure_ms = excluded.fallback_exposure_ms,
			target_adu = excluded.target_adu,
			tolerance = excluded.tolerance,
			window_daytime = excluded.window_daytime,
			window_civil = excluded.window_civil,
			window_nautical = excluded.window_nautical,
			window_astronomical = excluded.window_astronomical,
			interval_seconds = excluded.interval_seconds,
			run_intent = excluded.run_intent,
			updated_at = excluded.updated_at
	`,
		nullableFloat(settings.Site.Latitude), nullableFloat(settings.Site.Longitude),
		settings.Site.TimezoneOffset, settings.Site.DSTEnabled,
		settings.Bounds.MinMs, settings.Bounds.MaxMs, settings.Bounds.FallbackMs,
		settings.TargetADU, settings.Tolerance,
		settings.Window.Daytime, settings.Window.CivilTwilight,
		settings.Window.NauticalTwilight, settings.Window.AstronomicalDarkness,
		settings.IntervalSeconds, settings.RunIntent,
		settings.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
