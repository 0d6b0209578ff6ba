package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/config"
	"crowdfill/internal/db"
	"crowdfill/internal/domain"
	"crowdfill/internal/migrate"
)

func TestInsertOrderLosesRaceQuietly(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, db.SQLite))
	e := New(conn, db.SQLite, config.Default())
	ctx := context.Background()

	order := domain.Order{ID: "o-1", SellerID: "s-1", Status: domain.OrderProcessing, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}
	order.Items = []domain.OrderItem{{
		ID: "it-1", OrderID: "o-1", Service: "likes", ServiceMode: domain.ServiceModeHuman, Quantity: 5,
		UnitPrice: decimal.NewFromInt(1), CostPerUnit: decimal.NewFromInt(1),
		CreatedAt: order.CreatedAt, UpdatedAt: order.UpdatedAt,
	}}

	created, err := e.insertOrder(ctx, order, "system")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = e.insertOrder(ctx, order, "system")
	require.NoError(t, err)
	assert.False(t, created)

	other := order
	other.ID = "o-2"
	other.Items = []domain.OrderItem{order.Items[0]}
	other.Items[0].OrderID = "o-2"
	_, err = e.insertOrder(ctx, other, "system")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.GetOrder(ctx, "o-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
