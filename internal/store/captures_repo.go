package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"allskyd/internal/core"
)

// InsertCapture records one capture cycle.
func (s *Store) InsertCapture(ctx context.Context, run *core.CaptureRun) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO captures (id, filename, exposure_ms, brightness, outcome, trial_count, error, triggered_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, nullableString(run.Filename), nullableFloat(run.ExposureMs), nullableFloat(run.Brightness),
		run.Outcome, run.TrialCount, nullableString(run.Error), run.TriggeredBy,
		run.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// ListCaptures returns capture runs newest first.
func (s *Store) ListCaptures(ctx context.Context, limit, offset int) ([]*core.CaptureRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, filename, exposure_ms, brightness, outcome, trial_count, error, triggered_by, created_at
		FROM captures
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()
	var runs []*core.CaptureRun
	for rows.Next() {
		run, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// PruneCaptureHistory deletes rows beyond the retention limit, oldest first,
// and returns how many were removed.
func (s *Store) PruneCaptureHistory(ctx context.Context) (int, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM captures
		WHERE id IN (
			SELECT id FROM captures
			ORDER BY created_at DESC
			LIMIT -1 OFFSET ?
		)
	`, s.HistoryRetention)
	if err != nil {
		return 0, fmt.Errorf("prune captures: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func scanCapture(scanner interface {
	Scan(dest ...any) error
}) (*core.CaptureRun, error) {
	var (
		id          string
		filename    sql.NullString
		exposureMs  sql.NullFloat64
		brightness  sql.NullFloat64
		outcome     string
		trialCount  int
		errMsg      sql.NullString
		triggeredBy string
		createdAt   string
	)
	if err := scanner.Scan(&id, &filename, &exposureMs, &brightness, &outcome, &trialCount, &errMsg, &triggeredBy, &createdAt); err != nil {
		return nil, fmt.Errorf("scan capture: %w", err)
	}
	run := &core.CaptureRun{
		ID:          id,
		Outcome:     outcome,
		TrialCount:  trialCount,
		TriggeredBy: triggeredBy,
		CreatedAt:   parseStoredTime(createdAt),
	}
	if filename.Valid {
		run.Filename = &filename.String
	}
	if exposureMs.Valid {
		run.ExposureMs = &exposureMs.Float64
	}
	if brightness.Valid {
		run.Brightness = &brightness.Float64
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	return run, nil
}
