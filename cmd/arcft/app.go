package main

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"

	"github.com/metalagman/arcft/internal/backend"
	"github.com/metalagman/arcft/internal/config"
	"github.com/metalagman/arcft/internal/db"
	"github.com/metalagman/arcft/internal/logging"
	"github.com/metalagman/arcft/internal/rules"
	"github.com/metalagman/arcft/internal/runs"
	"go.uber.org/fx"
)

// evalDeps are the components an evaluation run needs.
type evalDeps struct {
	fx.In

	Backend backend.Backend
	Runs    *runs.Store
	Rules   *rules.Writer `optional:"true"`
}

// newEvalApp wires the evaluation components into deps. Constructors open
// resources; Stop releases them in reverse order.
func newEvalApp(cfg config.Config, deps *evalDeps, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			provideLock,
			provideDB,
			provideRunStore,
			provideBackend,
		),
		fx.Invoke(func(d evalDeps) { *deps = d }),
	}
	if cfg.Rules.Enabled {
		opts = append(opts, fx.Provide(provideRuleWriter))
	}
	return fx.New(append(opts, extra...)...)
}

func provideLock(lc fx.Lifecycle, cfg config.Config) (*db.Lock, error) {
	lock, err := lockDataDir(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return lock.Release() }})
	return lock, nil
}

func provideDB(lc fx.Lifecycle, cfg config.Config, _ *db.Lock) (*sql.DB, error) {
	conn, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return conn.Close() }})
	return conn, nil
}

func provideRunStore(conn *sql.DB) *runs.Store {
	return runs.NewStore(conn)
}

func provideRuleWriter(lc fx.Lifecycle, cfg config.Config, conn *sql.DB) *rules.Writer {
	w := rules.NewWriter(rules.NewStore(conn), cfg.Rules.QueueSize)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error { return w.Close() },
	})
	return w
}

// provideBackend builds the configured backend. Agent stderr is shown only
// with --debug.
func provideBackend(cfg config.Config) (backend.Backend, error) {
	var stderr io.Writer = io.Discard
	if logging.DebugEnabled() {
		stderr = os.Stderr
	}
	return backend.New(context.Background(), cfg.Backend, filepath.Join(cfg.DataDir, "agent"), stderr)
}
