package app

import (
	"fmt"
	"net/http"

	"github.com/dvcrn/callme-client/internal/apiclient"
	"github.com/dvcrn/callme-client/internal/auth"
	"github.com/dvcrn/callme-client/internal/config"
	"github.com/dvcrn/callme-client/internal/reminders"
	"github.com/dvcrn/callme-client/internal/session"
	"github.com/dvcrn/callme-client/internal/store"
	"github.com/rs/zerolog"
)

// App wires the state file, session, API client and services together
type App struct {
	Config    config.Config
	Store     *store.Store
	Session   *session.Session
	Client    *apiclient.Client
	Auth      *auth.Service
	Reminders *reminders.Service
}

// New opens the state file and builds every component from cfg
func New(cfg config.Config, logger zerolog.Logger) (*App, error) {
	if err := config.PrepareStatePath(cfg.StatePath); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	jar, err := st.CookieJar(logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load cookies: %w", err)
	}
	cache := st.Cache()
	sess := session.New(logger, jar, cache)

	client, err := apiclient.New(cfg.NormalizedBaseURL(),
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout, Jar: jar}),
		apiclient.WithLogger(logger),
		apiclient.WithSession(sess),
		apiclient.WithRefreshTimeout(cfg.RefreshTimeout),
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &App{
		Config:    cfg,
		Store:     st,
		Session:   sess,
		Client:    client,
		Auth:      auth.NewService(client, sess, logger),
		Reminders: reminders.NewService(client, cache, cfg.CacheTTL, logger),
	}, nil
}

// Close releases the state file
func (a *App) Close() error {
	return a.Store.Close()
}
