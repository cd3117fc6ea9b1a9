// Package app assembles the client SDK from configuration: storage, HTTP adapter, resource
// client, session store, guard and admin controller.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/admin"
	"github.com/and161185/eventdesk/internal/api"
	"github.com/and161185/eventdesk/internal/config"
	"github.com/and161185/eventdesk/internal/guard"
	"github.com/and161185/eventdesk/internal/httpclient"
	"github.com/and161185/eventdesk/internal/limiter"
	"github.com/and161185/eventdesk/internal/logger"
	"github.com/and161185/eventdesk/internal/session"
	"github.com/and161185/eventdesk/internal/storage"
	"github.com/and161185/eventdesk/internal/storage/backend"
)

// App holds the wired components. Session is the only writer of session state.
type App struct {
	Store   storage.Storage
	API     *api.Client
	Session *session.Store
	Guard   *guard.Guard
	Admin   *admin.Controller
	Log     *zap.Logger
}

// New opens the configured storage backend and wires everything on top of it. The returned
// func releases the storage.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, func(), error) {
	log = logger.OrNop(log)
	store, closeStore, err := backend.Open(ctx, cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	return FromStorage(cfg, store, log), closeStore, nil
}

// FromStorage wires the components over an already opened store.
func FromStorage(cfg config.Config, store storage.Storage, log *zap.Logger) *App {
	log = logger.OrNop(log)
	opts := []httpclient.Option{httpclient.WithLogger(log.Named("http"))}
	if cfg.HTTPTimeout > 0 {
		opts = append(opts, httpclient.WithTimeout(cfg.HTTPTimeout))
	}
	c := api.New(httpclient.New(cfg.APIURL, store, opts...))

	sess := session.New(store, c.Users, c.Auth,
		session.WithLogger(log.Named("session")),
		session.WithLimiter(limiter.NewMemory(LimiterConfig(cfg))),
	)
	return &App{
		Store:   store,
		API:     c,
		Session: sess,
		Guard:   guard.New(sess),
		Admin:   admin.NewController(c.Events, admin.WithLogger(log.Named("admin"))),
		Log:     log,
	}
}

// LimiterConfig applies login_rps/login_burst over the limiter defaults.
func LimiterConfig(cfg config.Config) limiter.Config {
	conf := limiter.DefaultConfig()
	if cfg.LoginRPS > 0 {
		conf.RPS = cfg.LoginRPS
	}
	if cfg.LoginBurst > 0 {
		conf.Burst = cfg.LoginBurst
	}
	return conf
}
