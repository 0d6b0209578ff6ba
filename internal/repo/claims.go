package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"crowdfill/internal/domain"
)

const claimColumns = `id,job_id,item_id,worker_id,quantity,actual_quantity,earn_amount,status,reject_reason,created_at,updated_at,submitted_at,resolved_at`

func scanClaim(row rowScanner) (domain.Claim, error) {
	var c domain.Claim
	var status string
	var reason, submittedAt, resolvedAt sql.NullString
	err := row.Scan(&c.ID, &c.JobID, &c.ItemID, &c.WorkerID, &c.Quantity, &c.ActualQuantity, &c.EarnAmount, &status,
		&reason, &c.CreatedAt, &c.UpdatedAt, &submittedAt, &resolvedAt)
	if err != nil {
		return c, err
	}
	c.Status = domain.ClaimStatus(status)
	c.RejectReason = reason.String
	c.SubmittedAt = stringPtr(submittedAt)
	c.ResolvedAt = stringPtr(resolvedAt)
	return c, nil
}

func (r Repo) InsertClaim(ctx context.Context, tx *sql.Tx, c domain.Claim) error {
	_, err := r.exec(ctx, tx, "insert claim", `INSERT INTO claims(`+claimColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.JobID, c.ItemID, c.WorkerID, c.Quantity, c.ActualQuantity, c.EarnAmount, string(c.Status),
		nullable(c.RejectReason), c.CreatedAt, c.UpdatedAt, nullableStringPtr(c.SubmittedAt), nullableStringPtr(c.ResolvedAt))
	return err
}

func (r Repo) UpdateClaim(ctx context.Context, tx *sql.Tx, c domain.Claim) error {
	n, err := r.exec(ctx, tx, "update claim", `UPDATE claims SET actual_quantity=?, earn_amount=?, status=?, reject_reason=?, updated_at=?, submitted_at=?, resolved_at=? WHERE id=?`,
		c.ActualQuantity, c.EarnAmount, string(c.Status), nullable(c.RejectReason), c.UpdatedAt,
		nullableStringPtr(c.SubmittedAt), nullableStringPtr(c.ResolvedAt), c.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("claim", c.ID)
	}
	return nil
}

func (r Repo) GetClaim(ctx context.Context, id string) (domain.Claim, error) {
	return r.getClaim(ctx, r.DB, id)
}

func (r Repo) GetClaimTx(ctx context.Context, tx *sql.Tx, id string) (domain.Claim, error) {
	return r.getClaim(ctx, tx, id)
}

func (r Repo) getClaim(ctx context.Context, q querier, id string) (domain.Claim, error) {
	c, err := scanClaim(q.QueryRowContext(ctx, r.q(`SELECT `+claimColumns+` FROM claims WHERE id=?`), id))
	if err := notFound(err, "claim", id); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) ListJobClaimsTx(ctx context.Context, tx *sql.Tx, jobID string) ([]domain.Claim, error) {
	return r.listClaims(ctx, tx, ClaimFilters{JobID: jobID})
}

type ClaimFilters struct {
	JobID    string
	WorkerID string
	Status   string
	Page
}

func (r Repo) ListClaims(ctx context.Context, f ClaimFilters) ([]domain.Claim, error) {
	return r.listClaims(ctx, r.DB, f)
}

func (r Repo) listClaims(ctx context.Context, q querier, f ClaimFilters) ([]domain.Claim, error) {
	var clauses []string
	var args []any
	if f.JobID != "" {
		clauses = append(clauses, "job_id=?")
		args = append(args, f.JobID)
	}
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + claimColumns + ` FROM claims ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "repo: list claims")
	}
	defer rows.Close()
	var res []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, eris.Wrap(err, "repo: scan claim")
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
