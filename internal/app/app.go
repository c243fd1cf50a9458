// internal/app/app.go
package app

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transcript-client/internal/clients/subscription"
	"transcript-client/internal/clients/transcript"
	"transcript-client/internal/common/config"
	"transcript-client/internal/common/database"
	"transcript-client/internal/common/errors"
	remote "transcript-client/internal/common/http"
	"transcript-client/internal/common/logger"
	"transcript-client/internal/common/observability"
	"transcript-client/internal/identity"
	"transcript-client/internal/session"
	"transcript-client/internal/storage"
)

// sqliteTable is the table used inside the local storage file.
const sqliteTable = "client_storage"

// Connection retry for network-backed storage.
var (
	connectAttempts     = 10
	connectInitialDelay = 2 * time.Second
)

// App wires configuration, storage and both clients together.
type App struct {
	Config      *config.Config
	Logger      logger.Logger
	Store       storage.Store
	Session     *session.Store
	Identity    *identity.Holder
	Remote      *remote.Client
	Transcripts *transcript.Client
	Upgrades    *subscription.Client

	obs      *observability.Observability
	registry *prometheus.Registry
}

// New builds every component in dependency order. The caller owns the
// returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.NewInvalidConfigError("configuration is required")
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	registry := prometheus.NewRegistry()
	obs, err := observability.New(cfg.Metrics.ServiceName, registry)
	if err != nil {
		log.Warn("observability disabled", map[string]interface{}{"error": err})
		obs = observability.NewNoop()
	}

	store, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		obs.Shutdown()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Store:    store,
		obs:      obs,
		registry: registry,
	}

	a.Session = session.New(store, log)
	a.Identity = identity.NewHolder(log)
	if err := a.Session.Restore(ctx, a.Identity); err != nil {
		log.Warn("persisted identity could not be restored", map[string]interface{}{"error": err})
	}

	a.Remote, err = remote.NewClient(cfg.Backend, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Transcripts = transcript.NewClient(a.Remote, log, obs)

	a.Upgrades, err = subscription.NewClient(
		a.Remote,
		a.Session,
		a.Identity,
		subscription.LoadConfig(cfg.Upgrade),
		log,
		obs,
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	log.Info("client initialized", map[string]interface{}{
		"backend":       a.Remote.BaseURL(),
		"storageDriver": cfg.Storage.Driver,
		"environment":   cfg.App.Environment,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return storage.NewMemoryStore(), nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, errors.NewInvalidConfigError(err.Error())
		}
		store, err := storage.NewSQLStore(ctx, db, storage.DialectSQLite, sqliteTable)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil

	case config.DriverRedis:
		var rc *database.RedisClient
		err := retryWithBackoff(ctx, func() error {
			var err error
			rc, err = database.NewRedis(cfg.Redis)
			if err != nil {
				return err
			}
			if err := rc.Ping(ctx); err != nil {
				_ = rc.Close()
				return err
			}
			return nil
		}, connectAttempts, connectInitialDelay, log, "Redis connection")
		if err != nil {
			return nil, err
		}
		log.Info("Redis connected successfully", nil)
		return storage.NewRedisStore(rc.Client, cfg.Redis.KeyPrefix), nil

	case config.DriverPostgres:
		var pg *database.PostgresClient
		err := retryWithBackoff(ctx, func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				_ = pg.Close()
				return err
			}
			return nil
		}, connectAttempts, connectInitialDelay, log, "PostgreSQL connection")
		if err != nil {
			return nil, err
		}
		log.Info("PostgreSQL connected successfully", nil)
		store, err := storage.NewSQLStore(ctx, pg.DB, storage.DialectPostgres, cfg.Postgres.Table)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, errors.NewInvalidConfigError(fmt.Sprintf("storage driver %q is not supported", cfg.Driver))
	}
}

// MetricsHandler serves the process-wide prometheus metrics together with
// this App's otel instruments.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, a.registry},
		promhttp.HandlerOpts{},
	)
}

// Handler exposes /health, /ready and /metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Ready(r.Context()); err != nil {
			a.Logger.Warn("readiness check failed", map[string]interface{}{"error": err})
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", a.MetricsHandler())
	return mux
}

// Ready reports whether durable storage answers reads.
func (a *App) Ready(ctx context.Context) error {
	_, err := a.Store.Get(ctx, session.KeyToken)
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Close releases storage and flushes metrics.
func (a *App) Close() error {
	if a.obs != nil {
		a.obs.Shutdown()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
