// Package daemon composes the session daemon: one process per session that
// owns the socket connection, the synchronized chat state and the control
// socket.
package daemon

import (
	"context"
	"errors"

	"github.com/heartlink-app/pulse/internal/api"
	"github.com/heartlink-app/pulse/internal/bus"
	"github.com/heartlink-app/pulse/internal/client"
	"github.com/heartlink-app/pulse/internal/config"
	"github.com/heartlink-app/pulse/internal/connstate"
	"github.com/heartlink-app/pulse/internal/history"
	"github.com/heartlink-app/pulse/internal/lock"
	"github.com/heartlink-app/pulse/internal/logging"
	"github.com/heartlink-app/pulse/internal/presence"
	"github.com/heartlink-app/pulse/internal/session"
	"github.com/heartlink-app/pulse/internal/state"
	"github.com/heartlink-app/pulse/internal/store"
	intsync "github.com/heartlink-app/pulse/internal/sync"
	"github.com/heartlink-app/pulse/internal/transport"
	"github.com/heartlink-app/pulse/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideMachine,
			provideLock,
			provideDB,
			provideTokenSource,
			provideAPIClient,
			provideStateStore,
			provideTransport,
			provideTyping,
			providePresence,
			providePaginator,
			provideSyncEngine,
			provideClient,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig() *config.Config {
	return config.LoadOrDefault(session.ConfigPath())
}

func provideBus(logger *zap.Logger) *bus.Bus {
	return bus.New(logger)
}

func provideMachine(b *bus.Bus) *connstate.Machine {
	return connstate.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired", zap.String("session", p.SessionName))
	return l, nil
}

func provideDB(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// dbTokenSource reads the session token fresh on every dial, so a login
// performed while the daemon is running takes effect on the next attempt.
type dbTokenSource struct {
	db *store.DB
}

func (s dbTokenSource) Token() (string, error) {
	creds, err := s.db.Credentials()
	if err != nil {
		return "", err
	}
	return creds.Token, nil
}

func provideTokenSource(db *store.DB) transport.TokenSource {
	return dbTokenSource{db: db}
}

func provideAPIClient(cfg *config.Config, db *store.DB, logger *zap.Logger) *api.Client {
	token := ""
	if creds, err := db.Credentials(); err == nil {
		token = creds.Token
	}
	return api.New(cfg.APIURL, token, logger)
}

func provideStateStore(b *bus.Bus, logger *zap.Logger) *state.Store {
	return state.New(b, logger)
}

func provideTransport(cfg *config.Config, tokens transport.TokenSource, m *connstate.Machine, b *bus.Bus, logger *zap.Logger) *transport.Manager {
	return transport.NewManager(cfg.WSURL, tokens, m, b, logger)
}

func provideTyping(mgr *transport.Manager, b *bus.Bus, logger *zap.Logger) *typing.Coordinator {
	return typing.New(mgr, b, logger)
}

func providePresence(b *bus.Bus) *presence.Tracker {
	return presence.New(b)
}

func providePaginator(c *api.Client, st *state.Store, logger *zap.Logger) *history.Paginator {
	return history.New(c, st, logger)
}

func provideSyncEngine(st *state.Store, tc *typing.Coordinator, pt *presence.Tracker, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(st, tc, pt, b, logger)
}

func provideClient(a *api.Client, st *state.Store, tc *typing.Coordinator, pg *history.Paginator, logger *zap.Logger) *client.Client {
	return client.New(a, st, tc, pg, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	engine *intsync.Engine,
	mgr *transport.Manager,
	tc *typing.Coordinator,
	cl *client.Client,
	st *state.Store,
	a *api.Client,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			creds, err := db.Credentials()
			if errors.Is(err, store.ErrNoCredentials) {
				logger.Info("no credentials found, auth required")
				return nil
			}
			if err != nil {
				return err
			}
			st.SetSelfID(creds.UserID)
			tc.SetSelfID(creds.UserID)

			// Bootstrap and connect off the start path; the socket layer
			// owns its own retries.
			go func() {
				ctx := context.Background()
				if creds.UserID == 0 {
					id, err := a.Me(ctx)
					if err != nil {
						logger.Error("fetch own profile failed", zap.Error(err))
					} else {
						st.SetSelfID(id)
						tc.SetSelfID(id)
					}
				}
				if err := cl.RefreshChats(ctx); err != nil {
					logger.Error("initial chat list load failed", zap.Error(err))
				}
				if err := mgr.Connect(); err != nil {
					logger.Error("socket connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			mgr.Close()
			tc.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
