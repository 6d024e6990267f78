package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bountywizard/internal/config"
	"bountywizard/internal/db"
	"bountywizard/internal/dedup"
	"bountywizard/internal/engine"
	"bountywizard/internal/logging"
	"bountywizard/internal/migrate"
	"bountywizard/internal/wizard"
)

// Runtime bundles what every command needs: the workspace config, an open and
// migrated database, and the engine built on top of it.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Logger    *zap.Logger
}

// ResolveConfig loads bountywizard.yml from workspace, falling back to defaults
// when the file does not exist.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// Open resolves config, opens the workspace database and applies migrations.
func Open(ctx context.Context, workspace string, logger *zap.Logger) (*Runtime, error) {
	cfg, err := ResolveConfig(workspace)
	if err != nil {
		return nil, err
	}
	log := logging.OrNop(logger)
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		log.Info("applied migrations", zap.Int("count", applied), zap.String("db", db.Path(workspace)))
	}
	e := engine.New(conn, cfg)
	e.Logger = log
	return &Runtime{Workspace: workspace, Config: cfg, DB: conn, Engine: e, Logger: log}, nil
}

func (r *Runtime) Close() error {
	return r.DB.Close()
}

// NewSessions builds a session registry submitting through the engine.
func (r *Runtime) NewSessions() *wizard.Sessions {
	return wizard.NewSessions(wizard.SessionsConfig{
		Submitter:   r.Engine,
		SubmitDelay: r.Config.Wizard.SubmitDelay,
		TTL:         r.Config.Wizard.SessionTTL,
		Logger:      r.Logger,
	})
}

// NewStore builds a single detached store, used by the CLI to replay draft files.
func (r *Runtime) NewStore(actorID string, submitDelay time.Duration) *wizard.Store {
	return wizard.NewStore(wizard.Config{
		SessionID:   "cli",
		ActorID:     actorID,
		Submitter:   r.Engine,
		SubmitDelay: submitDelay,
		Logger:      r.Logger,
	})
}

// NewDeduper returns a redis-backed deduper when redis.addr is configured and an
// in-process one otherwise. The returned func closes any client it opened.
func (r *Runtime) NewDeduper(ctx context.Context) (dedup.Deduper, func(), error) {
	rc := r.Config.Redis
	if rc.Addr == "" {
		return dedup.NewMemoryDeduper(rc.DedupTTL), func() {}, nil
	}
	client := dedup.NewRedisClient(dedup.RedisConfig{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", rc.Addr, err)
	}
	r.Logger.Info("idempotency keys stored in redis", zap.String("addr", rc.Addr))
	return dedup.NewRedisDeduper(client, rc.DedupTTL, r.Logger), func() { client.Close() }, nil
}
