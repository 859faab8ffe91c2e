package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// HistoryPruner trims old capture-run rows from the store.
type HistoryPruner interface {
	PruneCaptureHistory(ctx context.Context) (int, error)
}

// StartMaintenance schedules the daily housekeeping job. It runs at local
// noon, the quiet point between imaging sessions, and prunes the capture
// history down to its retention limit. The returned cron is already started;
// stop it during shutdown.
func StartMaintenance(pruner HistoryPruner, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.Local))
	_, err := c.AddFunc("0 12 * * *", func() {
		// Noon starts a fresh noon-to-noon imaging session.
		logger.Info("imaging session rolled over", "session", time.Now().Format("2006-01-02"))

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		pruned, err := pruner.PruneCaptureHistory(ctx)
		if err != nil {
			logger.Error("prune capture history", "err", err)
			return
		}
		if pruned > 0 {
			logger.Info("pruned capture history", "rows", pruned)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule maintenance job: %w", err)
	}
	c.Start()
	return c, nil
}
