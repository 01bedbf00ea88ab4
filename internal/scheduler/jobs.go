package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"finadvisor/internal/analytics"
	"finadvisor/internal/storage"
	"finadvisor/internal/syncer"
)

const (
	JobSync   = "sync_all"
	JobReport = "daily_report"
)

type SyncAller interface {
	SyncAll(ctx context.Context, userIDs []string, force bool) (map[string]syncer.Result, error)
}

// SyncJob re-syncs every known user without forcing a rebuild.
func SyncJob(s SyncAller, logger *zap.Logger) JobFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		results, err := s.SyncAll(ctx, nil, false)
		if err != nil {
			return err
		}
		var failed, changed int
		for _, r := range results {
			if r.Err != nil {
				failed++
				continue
			}
			for _, c := range r.Changed {
				if c {
					changed++
				}
			}
		}
		logger.Info("periodic sync done",
			zap.Int("users", len(results)),
			zap.Int("failed", failed),
			zap.Int("documents_changed", changed))
		if failed > 0 {
			return fmt.Errorf("%d of %d users failed to sync", failed, len(results))
		}
		return nil
	}
}

// ReportJob summarizes the current UTC day from the audit log.
func ReportJob(rec storage.Recorder, logger *zap.Logger, now func() time.Time) JobFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		events, err := rec.LoadInteractions()
		if err != nil {
			return fmt.Errorf("load audit log: %w", err)
		}
		stats := analytics.AnalyzeDailyLogs(events, now().UTC())
		logger.Info("daily report",
			zap.String("date", stats.Date),
			zap.Int("turns", stats.TotalTurns),
			zap.Int("unique_users", stats.UniqueUsers),
			zap.Int("degraded", stats.DegradedTurns),
			zap.Int("low_confidence", stats.LowConfidenceTurns),
			zap.Float64("avg_trust_score", stats.AverageTrustScore))
		logger.Debug(stats.GenerateReportSummary())
		return nil
	}
}
