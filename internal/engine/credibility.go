package engine

import (
	"context"
	"errors"
	"strings"

	"crowdfill/internal/credibility"
	"crowdfill/internal/domain"
	"crowdfill/internal/events"
)

// PutReportStats stores the moderation feed's latest counters for a worker.
func (e Engine) PutReportStats(ctx context.Context, stats domain.WorkerReportStats, actorID string) (domain.WorkerReportStats, error) {
	if strings.TrimSpace(stats.WorkerID) == "" {
		return domain.WorkerReportStats{}, domain.Validation("worker_id is required")
	}
	if stats.TotalReports < 0 || stats.ConfirmedReports < 0 || stats.DismissedReports < 0 || stats.FalseReports < 0 {
		return domain.WorkerReportStats{}, domain.Validation("report counters must not be negative")
	}
	if stats.ConfirmedReports+stats.DismissedReports+stats.FalseReports > stats.TotalReports {
		return domain.WorkerReportStats{}, domain.Validation("resolved reports exceed total_reports")
	}
	if err := validDeadline(stats.ReportBannedUntil); err != nil {
		return domain.WorkerReportStats{}, err
	}
	stats.UpdatedAt = e.stamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkerReportStats{}, classify(err)
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertReportStats(ctx, tx, stats); err != nil {
		return domain.WorkerReportStats{}, classify(err)
	}
	if err := e.emit(ctx, tx, "report_stats.updated", "", "worker", stats.WorkerID, actorID, events.EventPayload{
		"total_reports":     stats.TotalReports,
		"confirmed_reports": stats.ConfirmedReports,
		"false_reports":     stats.FalseReports,
		"can_report":        stats.CanReport,
	}); err != nil {
		return domain.WorkerReportStats{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkerReportStats{}, classify(err)
	}
	return stats, nil
}

func (e Engine) thresholds() credibility.Thresholds {
	if e.Config == nil {
		return credibility.DefaultThresholds()
	}
	return e.Config.Credibility
}

// ReporterCredibility scores a worker. Workers without stats score normal.
func (e Engine) ReporterCredibility(ctx context.Context, workerID string) (credibility.Score, error) {
	stats, err := e.Repo.GetReportStats(ctx, workerID)
	if errors.Is(err, domain.ErrNotFound) {
		stats = domain.WorkerReportStats{WorkerID: workerID, CanReport: true}
	} else if err != nil {
		return credibility.Score{}, err
	}
	return credibility.Classify(stats, e.thresholds()), nil
}

// PrioritizeReports orders pending reports for the moderation queue.
func (e Engine) PrioritizeReports(ctx context.Context, reports []credibility.Report) ([]credibility.RankedReport, error) {
	ids := make([]string, 0, len(reports))
	for _, r := range reports {
		ids = append(ids, r.ReporterID)
	}
	stats, err := e.Repo.ReportStatsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	return credibility.Prioritize(reports, stats, e.thresholds()), nil
}
