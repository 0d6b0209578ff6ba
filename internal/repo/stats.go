package repo

import (
	"context"
	"database/sql"
	"errors"

	"crowdfill/internal/domain"
)

func (r Repo) UpsertReportStats(ctx context.Context, tx *sql.Tx, s domain.WorkerReportStats) error {
	_, err := r.exec(ctx, tx, "upsert report stats", `INSERT INTO worker_report_stats(worker_id,total_reports,confirmed_reports,dismissed_reports,false_reports,can_report,report_banned_until,updated_at) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(worker_id) DO UPDATE SET total_reports=excluded.total_reports, confirmed_reports=excluded.confirmed_reports, dismissed_reports=excluded.dismissed_reports, false_reports=excluded.false_reports, can_report=excluded.can_report, report_banned_until=excluded.report_banned_until, updated_at=excluded.updated_at`,
		s.WorkerID, s.TotalReports, s.ConfirmedReports, s.DismissedReports, s.FalseReports, boolInt(s.CanReport),
		nullableStringPtr(s.ReportBannedUntil), s.UpdatedAt)
	return err
}

func (r Repo) GetReportStats(ctx context.Context, workerID string) (domain.WorkerReportStats, error) {
	var s domain.WorkerReportStats
	var canReport int
	var banned sql.NullString
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT worker_id,total_reports,confirmed_reports,dismissed_reports,false_reports,can_report,report_banned_until,updated_at FROM worker_report_stats WHERE worker_id=?`), workerID).
		Scan(&s.WorkerID, &s.TotalReports, &s.ConfirmedReports, &s.DismissedReports, &s.FalseReports, &canReport, &banned, &s.UpdatedAt)
	if err := notFound(err, "report stats", workerID); err != nil {
		return s, err
	}
	s.CanReport = canReport != 0
	s.ReportBannedUntil = stringPtr(banned)
	return s, nil
}

// ReportStatsFor loads stats for the given workers; unknown workers are absent
// from the map.
func (r Repo) ReportStatsFor(ctx context.Context, workerIDs []string) (map[string]domain.WorkerReportStats, error) {
	out := make(map[string]domain.WorkerReportStats, len(workerIDs))
	for _, id := range workerIDs {
		if _, seen := out[id]; seen {
			continue
		}
		s, err := r.GetReportStats(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = s
	}
	return out, nil
}
