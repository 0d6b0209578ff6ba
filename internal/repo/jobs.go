package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"crowdfill/internal/domain"
)

const jobColumns = `id,item_id,order_id,team_id,quantity,completed_quantity,price_per_unit,status,source,parent_job_id,instructions,deadline,created_by,created_at,updated_at,completed_at,cancelled_at,cancel_reason`

func scanJob(row rowScanner) (domain.Job, error) {
	var j domain.Job
	var status, source string
	var parent, instructions, deadline, completedAt, cancelledAt, reason sql.NullString
	err := row.Scan(&j.ID, &j.ItemID, &j.OrderID, &j.TeamID, &j.Quantity, &j.CompletedQuantity, &j.PricePerUnit,
		&status, &source, &parent, &instructions, &deadline, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt,
		&completedAt, &cancelledAt, &reason)
	if err != nil {
		return j, err
	}
	j.Status = domain.JobStatus(status)
	j.Source = domain.JobSource(source)
	j.ParentJobID = stringPtr(parent)
	j.Instructions = instructions.String
	j.Deadline = stringPtr(deadline)
	j.CompletedAt = stringPtr(completedAt)
	j.CancelledAt = stringPtr(cancelledAt)
	j.CancelReason = reason.String
	return j, nil
}

func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	_, err := r.exec(ctx, tx, "insert job", `INSERT INTO jobs(`+jobColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.ItemID, j.OrderID, j.TeamID, j.Quantity, j.CompletedQuantity, j.PricePerUnit, string(j.Status), string(j.Source),
		nullableStringPtr(j.ParentJobID), nullable(j.Instructions), nullableStringPtr(j.Deadline), j.CreatedBy, j.CreatedAt, j.UpdatedAt,
		nullableStringPtr(j.CompletedAt), nullableStringPtr(j.CancelledAt), nullable(j.CancelReason))
	return err
}

// UpdateJob writes every mutable column of j.
func (r Repo) UpdateJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	n, err := r.exec(ctx, tx, "update job", `UPDATE jobs SET team_id=?, quantity=?, completed_quantity=?, price_per_unit=?, status=?, instructions=?, deadline=?, updated_at=?, completed_at=?, cancelled_at=?, cancel_reason=? WHERE id=?`,
		j.TeamID, j.Quantity, j.CompletedQuantity, j.PricePerUnit, string(j.Status), nullable(j.Instructions), nullableStringPtr(j.Deadline),
		j.UpdatedAt, nullableStringPtr(j.CompletedAt), nullableStringPtr(j.CancelledAt), nullable(j.CancelReason), j.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("job", j.ID)
	}
	return nil
}

func (r Repo) DeleteJob(ctx context.Context, tx *sql.Tx, id string) error {
	n, err := r.exec(ctx, tx, "delete job", `DELETE FROM jobs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("job", id)
	}
	return nil
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return r.getJob(ctx, r.DB, id)
}

func (r Repo) GetJobTx(ctx context.Context, tx *sql.Tx, id string) (domain.Job, error) {
	return r.getJob(ctx, tx, id)
}

func (r Repo) getJob(ctx context.Context, q querier, id string) (domain.Job, error) {
	j, err := scanJob(q.QueryRowContext(ctx, r.q(`SELECT `+jobColumns+` FROM jobs WHERE id=?`), id))
	if err := notFound(err, "job", id); err != nil {
		return j, err
	}
	return j, nil
}

// ListItemJobsTx returns every job of an item, cancelled ones included.
func (r Repo) ListItemJobsTx(ctx context.Context, tx *sql.Tx, itemID string) ([]domain.Job, error) {
	return r.listJobs(ctx, tx, JobFilters{ItemID: itemID})
}

type JobFilters struct {
	ItemID  string
	OrderID string
	TeamID  string
	Status  string
	Page
}

// ListJobs pages through jobs newest first.
func (r Repo) ListJobs(ctx context.Context, f JobFilters) ([]domain.Job, error) {
	return r.listJobs(ctx, r.DB, f)
}

func (r Repo) listJobs(ctx context.Context, q querier, f JobFilters) ([]domain.Job, error) {
	var clauses []string
	var args []any
	if f.ItemID != "" {
		clauses = append(clauses, "item_id=?")
		args = append(args, f.ItemID)
	}
	if f.OrderID != "" {
		clauses = append(clauses, "order_id=?")
		args = append(args, f.OrderID)
	}
	if f.TeamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, f.TeamID)
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
	query := `SELECT ` + jobColumns + ` FROM jobs ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "repo: list jobs")
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "repo: scan job")
		}
		res = append(res, j)
	}
	return res, rows.Err()
}
