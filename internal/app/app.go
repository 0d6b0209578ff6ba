// Package app wires config, store, engine and its collaborators for the CLI
// and the HTTP server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"crowdfill/internal/config"
	"crowdfill/internal/db"
	"crowdfill/internal/dispatch"
	"crowdfill/internal/engine"
	"crowdfill/internal/engine/auth"
	"crowdfill/internal/migrate"
	"crowdfill/internal/notify"
	"crowdfill/internal/server"
)

type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
}

// Open loads the workspace config, connects the store, applies migrations and
// builds the engine. A configured dispatch URL enables bot dispatch.
func Open(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	return OpenWithConfig(ctx, workspace, cfg)
}

func OpenWithConfig(ctx context.Context, workspace string, cfg *config.Config) (*App, error) {
	dbCfg := db.Config{Workspace: workspace, Driver: cfg.Store.Driver, DSN: cfg.Store.DSN}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "app: ping store")
	}
	if err := migrate.Migrate(conn, dbCfg.Dialect()); err != nil {
		conn.Close()
		return nil, err
	}
	e := engine.New(conn, dbCfg.Dialect(), cfg)
	if cfg.Dispatch.URL != "" {
		e.Dispatcher = dispatch.New(cfg.Dispatch)
	}
	return &App{Workspace: workspace, Config: cfg, DB: conn, Engine: e}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Handler builds the HTTP API from the app config.
func (a *App) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Engine:      a.Engine,
		BasePath:    a.Config.Server.BasePath,
		CORSOrigins: a.Config.Server.CORSOrigins,
		Auth: server.AuthConfig{
			JWTSecret:              a.Config.Server.JWTSecret,
			AllowLegacyActorHeader: a.Config.Server.AllowLegacyActorHeader,
			Roles:                  auth.Service{Config: a.Config},
			Logger:                 zap.L().Named("http"),
		},
	})
}

// Serve runs the API and the event notifiers until ctx is done, then shuts
// the server down gracefully.
func (a *App) Serve(ctx context.Context, addr string) error {
	if a.Config.Server.JWTSecret == "" && !a.Config.Server.AllowLegacyActorHeader {
		return errors.New("server.jwt_secret (or CROWDFILL_SERVER_JWT_SECRET) is required for bearer auth")
	}
	handler, err := a.Handler()
	if err != nil {
		return err
	}
	notifiers, err := notify.Build(ctx, a.Engine.Repo, a.Config.Notify)
	if err != nil {
		return err
	}
	defer notifiers.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := notifiers.Run(ctx); err != nil {
			zap.L().Error("notifiers stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	zap.L().Info("serving crowdfill api",
		zap.String("addr", addr),
		zap.String("base_path", a.Config.Server.BasePath),
		zap.Int("notifiers", len(notifiers.Tailers)),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
