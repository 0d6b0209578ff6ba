package repo

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/db"
	"crowdfill/internal/domain"
	"crowdfill/internal/migrate"
)

const ts = "2024-01-01T00:00:00Z"

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, db.SQLite))
	return Repo{DB: conn, Dialect: db.SQLite}
}

func withTx(t *testing.T, r Repo, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := r.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func seedJob(t *testing.T, r Repo) domain.Job {
	t.Helper()
	ctx := context.Background()
	job := domain.Job{
		ID: "job-1", ItemID: "item-1", OrderID: "order-1", TeamID: "team-a", Quantity: 100,
		PricePerUnit: decimal.RequireFromString("0.5"), Status: domain.JobPending, Source: domain.JobSourceDirect,
		CreatedBy: "seller", CreatedAt: ts, UpdatedAt: ts,
	}
	withTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.InsertOrder(ctx, tx, domain.Order{ID: "order-1", SellerID: "seller", Status: domain.OrderProcessing, CreatedAt: ts, UpdatedAt: ts}))
		require.NoError(t, r.InsertItem(ctx, tx, domain.OrderItem{
			ID: "item-1", OrderID: "order-1", Service: "likes", ServiceMode: domain.ServiceModeHuman, Quantity: 100,
			UnitPrice: decimal.RequireFromString("1.2"), CostPerUnit: decimal.RequireFromString("0.5"), CreatedAt: ts, UpdatedAt: ts,
		}))
		require.NoError(t, r.InsertJob(ctx, tx, job))
	})
	return job
}

func TestItemAndJobRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	job := seedJob(t, r)

	item, err := r.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceModeHuman, item.ServiceMode)
	assert.True(t, decimal.RequireFromString("1.2").Equal(item.UnitPrice))

	withTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.LockItem(ctx, tx, "item-1", ts))
	})
	item, err = r.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.Version)

	got, err := r.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, got.Status)
	assert.Nil(t, got.ParentJobID)
	assert.True(t, job.PricePerUnit.Equal(got.PricePerUnit))

	_, err = r.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettlementAndPayoutAreWrittenOnce(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedJob(t, r)
	s := domain.Settlement{
		JobID: "job-1", StatusAtCancel: domain.JobInProgress, PricePerUnit: decimal.RequireFromString("0.5"),
		Total: decimal.RequireFromString("15"),
		Lines: []domain.SettlementLine{{ClaimID: "c1", WorkerID: "w1", ClaimStatus: domain.ClaimClaimed, Quantity: 30, Amount: decimal.RequireFromString("15")}},
		CreatedAt: ts,
	}
	p := domain.Payout{ID: "p1", WorkerID: "w1", JobID: "job-1", ClaimID: "c1", Amount: decimal.RequireFromString("15"), Source: domain.PayoutSettlement, CreatedAt: ts}
	for i := 0; i < 2; i++ {
		withTx(t, r, func(tx *sql.Tx) {
			inserted, err := r.InsertSettlement(ctx, tx, s)
			require.NoError(t, err)
			assert.Equal(t, i == 0, inserted)
			p.ID = "p" + string(rune('1'+i))
			inserted, err = r.InsertPayout(ctx, tx, p)
			require.NoError(t, err)
			assert.Equal(t, i == 0, inserted)
		})
	}
	total, err := r.PayoutTotal(ctx, PayoutFilters{WorkerID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, "15.00", total.StringFixed(2))

	stored, err := r.GetSettlement(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, 30, stored.Lines[0].Quantity)
}

func TestUpsertBidReplacesTeamBid(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedJob(t, r)
	withTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.InsertPost(ctx, tx, domain.OutsourcePost{
			ID: "post-1", ItemID: "item-1", OrderID: "order-1", Quantity: 40, SuggestedPricePerUnit: decimal.RequireFromString("0.2"),
			Status: domain.PostOpen, PostedBy: "seller", CreatedAt: ts, UpdatedAt: ts,
		}))
		require.NoError(t, r.UpsertBid(ctx, tx, domain.Bid{ID: "bid-1", PostID: "post-1", TeamID: "team-b", PricePerUnit: decimal.RequireFromString("0.19"), Status: domain.BidOpen, CreatedAt: ts, UpdatedAt: ts}))
		require.NoError(t, r.UpsertBid(ctx, tx, domain.Bid{ID: "bid-2", PostID: "post-1", TeamID: "team-b", PricePerUnit: decimal.RequireFromString("0.18"), Status: domain.BidOpen, CreatedAt: ts, UpdatedAt: ts}))
	})
	bids, err := r.ListBids(ctx, "post-1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "bid-1", bids[0].ID)
	assert.Equal(t, "0.18", bids[0].PricePerUnit.String())
}

func TestReportStatsUpsert(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	withTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpsertReportStats(ctx, tx, domain.WorkerReportStats{WorkerID: "w1", TotalReports: 3, FalseReports: 2, CanReport: true, UpdatedAt: ts}))
		require.NoError(t, r.UpsertReportStats(ctx, tx, domain.WorkerReportStats{WorkerID: "w1", TotalReports: 4, FalseReports: 3, CanReport: false, UpdatedAt: ts}))
	})
	got, err := r.ReportStatsFor(ctx, []string{"w1", "nobody"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got["w1"].TotalReports)
	assert.False(t, got["w1"].CanReport)
}
