package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"crowdfill/internal/domain"
)

// InsertSettlement records the settlement of a cancelled job. It reports false
// when the job already has one; the stored row wins.
func (r Repo) InsertSettlement(ctx context.Context, tx *sql.Tx, s domain.Settlement) (bool, error) {
	lines, err := json.Marshal(s.Lines)
	if err != nil {
		return false, eris.Wrap(err, "repo: marshal settlement lines")
	}
	n, err := r.exec(ctx, tx, "insert settlement", `INSERT INTO settlements(job_id,status_at_cancel,price_per_unit,total,lines_json,created_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(job_id) DO NOTHING`,
		s.JobID, string(s.StatusAtCancel), s.PricePerUnit, s.Total, string(lines), s.CreatedAt)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) GetSettlement(ctx context.Context, jobID string) (domain.Settlement, error) {
	return r.getSettlement(ctx, r.DB, jobID)
}

func (r Repo) GetSettlementTx(ctx context.Context, tx *sql.Tx, jobID string) (domain.Settlement, error) {
	return r.getSettlement(ctx, tx, jobID)
}

func (r Repo) getSettlement(ctx context.Context, q querier, jobID string) (domain.Settlement, error) {
	var s domain.Settlement
	var status, lines string
	err := q.QueryRowContext(ctx, r.q(`SELECT job_id,status_at_cancel,price_per_unit,total,lines_json,created_at FROM settlements WHERE job_id=?`), jobID).
		Scan(&s.JobID, &status, &s.PricePerUnit, &s.Total, &lines, &s.CreatedAt)
	if err := notFound(err, "settlement", jobID); err != nil {
		return s, err
	}
	s.StatusAtCancel = domain.JobStatus(status)
	if err := json.Unmarshal([]byte(lines), &s.Lines); err != nil {
		return s, eris.Wrap(err, "repo: decode settlement lines")
	}
	return s, nil
}

// InsertPayout makes an amount payable. A claim is paid at most once per
// source; the second insert is a no-op reported as false.
func (r Repo) InsertPayout(ctx context.Context, tx *sql.Tx, p domain.Payout) (bool, error) {
	n, err := r.exec(ctx, tx, "insert payout", `INSERT INTO payouts(id,worker_id,job_id,claim_id,amount,source,created_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(claim_id, source) DO NOTHING`,
		p.ID, p.WorkerID, p.JobID, p.ClaimID, p.Amount, string(p.Source), p.CreatedAt)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type PayoutFilters struct {
	WorkerID string
	JobID    string
	Page
}

func (r Repo) ListPayouts(ctx context.Context, f PayoutFilters) ([]domain.Payout, error) {
	var clauses []string
	var args []any
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if f.JobID != "" {
		clauses = append(clauses, "job_id=?")
		args = append(args, f.JobID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,worker_id,job_id,claim_id,amount,source,created_at FROM payouts ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "repo: list payouts")
	}
	defer rows.Close()
	var res []domain.Payout
	for rows.Next() {
		var p domain.Payout
		var source string
		if err := rows.Scan(&p.ID, &p.WorkerID, &p.JobID, &p.ClaimID, &p.Amount, &source, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "repo: scan payout")
		}
		p.Source = domain.PayoutSource(source)
		res = append(res, p)
	}
	return res, rows.Err()
}

// PayoutTotal sums payouts in Go; SQLite stores amounts as text.
func (r Repo) PayoutTotal(ctx context.Context, f PayoutFilters) (decimal.Decimal, error) {
	f.Limit = 0
	payouts, err := r.ListPayouts(ctx, f)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}
	return total, nil
}
