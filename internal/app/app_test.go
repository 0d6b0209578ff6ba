package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfill/internal/config"
	"crowdfill/internal/dispatch"
	"crowdfill/internal/repo"
)

func TestOpenMigratesWorkspace(t *testing.T) {
	workspace := t.TempDir()
	a, err := Open(context.Background(), workspace)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "sqlite", a.Config.Store.Driver)
	assert.Nil(t, a.Engine.Dispatcher)
	orders, err := a.Engine.Repo.ListOrders(context.Background(), "", repo.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOpenWiresDispatcherAndHandler(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.URL = "http://bots.test/dispatch"
	a, err := OpenWithConfig(context.Background(), t.TempDir(), cfg)
	require.NoError(t, err)
	defer a.Close()
	_, ok := a.Engine.Dispatcher.(*dispatch.Client)
	assert.True(t, ok)

	h, err := a.Handler()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeRequiresSecret(t *testing.T) {
	a, err := OpenWithConfig(context.Background(), t.TempDir(), config.Default())
	require.NoError(t, err)
	defer a.Close()
	err = a.Serve(context.Background(), "127.0.0.1:0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}
