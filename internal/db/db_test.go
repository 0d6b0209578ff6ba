package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	t.Parallel()
	q := `UPDATE jobs SET status=?, updated_at=? WHERE id=?`
	assert.Equal(t, q, Rebind(SQLite, q))
	assert.Equal(t, `UPDATE jobs SET status=$1, updated_at=$2 WHERE id=$3`, Rebind(Postgres, q))
	assert.Equal(t, `SELECT 1`, Rebind(Postgres, `SELECT 1`))
}

func TestIsConflict(t *testing.T) {
	t.Parallel()
	assert.False(t, IsConflict(nil))
	assert.True(t, IsConflict(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsConflict(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsConflict(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsConflict(errors.New("no such table: jobs")))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: orders.id (1555)")))
	assert.False(t, IsUniqueViolation(errors.New("database is locked (5) (SQLITE_BUSY)")))
}

func TestOpenSQLite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	assert.Equal(t, SQLite, Config{}.Dialect())
	assert.Equal(t, Postgres, Config{Driver: "postgres"}.Dialect())
}

func TestOpenPostgresNeedsDSN(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "postgres"})
	require.Error(t, err)
}
