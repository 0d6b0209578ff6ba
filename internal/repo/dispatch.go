package repo

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"crowdfill/internal/domain"
)

func (r Repo) InsertDispatchFailure(ctx context.Context, tx *sql.Tx, f domain.DispatchFailure) error {
	_, err := r.exec(ctx, tx, "insert dispatch failure", `INSERT INTO dispatch_failures(id,item_id,order_id,error,attempts,created_at,resolved_at) VALUES (?,?,?,?,?,?,?)`,
		f.ID, f.ItemID, f.OrderID, f.Error, f.Attempts, f.CreatedAt, nullableStringPtr(f.ResolvedAt))
	return err
}

func (r Repo) ResolveDispatchFailures(ctx context.Context, tx *sql.Tx, itemID, resolvedAt string) error {
	_, err := r.exec(ctx, tx, "resolve dispatch failures", `UPDATE dispatch_failures SET resolved_at=? WHERE item_id=? AND resolved_at IS NULL`, resolvedAt, itemID)
	return err
}

// ListDispatchFailures returns unresolved failures unless all is set.
func (r Repo) ListDispatchFailures(ctx context.Context, all bool) ([]domain.DispatchFailure, error) {
	query := `SELECT id,item_id,order_id,error,attempts,created_at,resolved_at FROM dispatch_failures`
	if !all {
		query += ` WHERE resolved_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, r.q(query))
	if err != nil {
		return nil, eris.Wrap(err, "repo: list dispatch failures")
	}
	defer rows.Close()
	var res []domain.DispatchFailure
	for rows.Next() {
		var f domain.DispatchFailure
		var resolved sql.NullString
		if err := rows.Scan(&f.ID, &f.ItemID, &f.OrderID, &f.Error, &f.Attempts, &f.CreatedAt, &resolved); err != nil {
			return nil, eris.Wrap(err, "repo: scan dispatch failure")
		}
		f.ResolvedAt = stringPtr(resolved)
		res = append(res, f)
	}
	return res, rows.Err()
}
