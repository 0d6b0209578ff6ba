package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"crowdfill/internal/db"
	"crowdfill/internal/domain"
)

// Repo is the SQL store behind the engine. Reads that feed a mutation use the
// *Tx variants so they see the transaction's own writes.
type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var ErrNotFound = domain.ErrNotFound

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(query string) string {
	return db.Rebind(r.Dialect, query)
}

func (r Repo) exec(ctx context.Context, q querier, op, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return 0, eris.Wrap(err, "repo: "+op)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(kind, id)
	}
	if err != nil {
		return eris.Wrapf(err, "repo: get %s", kind)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Page is a created_at|id cursor position.
type Page struct {
	Limit           int
	CursorCreatedAt string
	CursorID        string
}
