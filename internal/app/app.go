// Package app wires together configuration, the compatibility manager, the
// credential store, and the request pipeline into a single Deps struct that
// commands receive at runtime. This is the composition root: every service
// is an explicitly constructed instance, not a package global.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bistrohq/bistroctl/internal/api"
	"github.com/bistrohq/bistroctl/internal/compat"
	"github.com/bistrohq/bistroctl/internal/config"
	"github.com/bistrohq/bistroctl/internal/credstore"
	"github.com/bistrohq/bistroctl/internal/dashboard"
	"github.com/bistrohq/bistroctl/internal/notify"
	"github.com/bistrohq/bistroctl/internal/tenant"
)

// Deps holds all runtime dependencies injected into command Run functions.
type Deps struct {
	Config    *config.Config
	Compat    *compat.Manager
	Tokens    *credstore.Store
	Tenant    *tenant.Resolver
	Notifier  notify.Notifier
	Client    *api.Client
	Dashboard *dashboard.Store
}

// New builds a Deps from resolved config, opening the credential store.
func New(cfg *config.Config) (*Deps, error) {
	logger := slog.Default()

	tokens, err := credstore.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	notifier := notify.NewWriter(os.Stderr, cfg.Quiet)
	manager := compat.NewManager(compat.Options{
		EnableLogging: cfg.Debug,
		EnableStats:   true,
	}, logger)
	resolver := tenant.NewResolver(cfg.TenantFlag, cfg.TenantEnv, cfg.Tenant, cfg.BaseURL)

	client := api.NewClient(api.Config{
		BaseURL:       cfg.BaseURL,
		Compat:        manager,
		Tokens:        tokens,
		Tenant:        resolver,
		Notifier:      notifier,
		Saver:         api.DirSaver{Dir: cfg.DownloadDir},
		Timeout:       cfg.Timeout,
		ReportTimeout: cfg.ReportTimeout,
		Rate:          cfg.Rate,
		Debug:         cfg.Debug,
		Logger:        logger,
		OnAuthFailure: func() {
			notifier.Notify(notify.LevelWarning,
				"session expired; run `bistroctl auth login` to sign in again", "")
		},
	})

	return &Deps{
		Config:    cfg,
		Compat:    manager,
		Tokens:    tokens,
		Tenant:    resolver,
		Notifier:  notifier,
		Client:    client,
		Dashboard: dashboard.New(client),
	}, nil
}

// Close releases held resources (the credential store).
func (d *Deps) Close() error {
	if d.Tokens != nil {
		return d.Tokens.Close()
	}
	return nil
}
