// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/config"
	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/logging"
	"github.com/ksaregtech/regtech-tui/internal/session"
	"github.com/ksaregtech/regtech-tui/internal/storage"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

// =============================================================================
// CONFIG
// =============================================================================

// loadConfig reads .env, the config file and the global flag overrides.
// It returns the config and the file path it came from (or would be saved to).
func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var (
		cfg  *config.Config
		path string
		err  error
	)
	if o.configPath != "" {
		path = o.configPath
		cfg, err = config.LoadFromPath(path)
	} else {
		path, err = config.ConfigPathTOML()
		if err != nil {
			return nil, "", err
		}
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}

	if o.apiURL != "" {
		cfg.Service.BaseURL = o.apiURL
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, path, nil
}

// =============================================================================
// APP WIRING
// =============================================================================

// App holds the components shared by every command.
type App struct {
	Config     *config.Config
	ConfigPath string
	DataDir    string

	Logger   *logging.Logger
	KV       *storage.KV
	Store    *storage.ConversationStore
	Provider credential.Provider
	Gate     *usage.Gate
	Client   *answer.Client
	Consumer *answer.Consumer
	Session  *session.Session
}

// openApp wires the stores, gate and consumer. prompter serves credential
// interaction; hooks receive streaming progress.
func (o *rootOptions) openApp(prompter credential.Prompter, hooks answer.Hooks) (*App, error) {
	cfg, path, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	logPath, err := cfg.LogFile()
	if err != nil {
		return nil, err
	}
	logger, err := logging.Open(logPath, logging.ParseLevel(cfg.Logging.Level))
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, ConfigPath: path, DataDir: dataDir, Logger: logger}
	if err := app.open(prompter, hooks); err != nil {
		app.Close()
		return nil, err
	}
	logger.Debug("opened data dir %s (service %s, provider %s)", dataDir, cfg.Service.BaseURL, app.Provider.Kind())
	return app, nil
}

func (a *App) open(prompter credential.Prompter, hooks answer.Hooks) error {
	cfg := a.Config

	kv, err := storage.OpenKV(filepath.Join(a.DataDir, "state.db"))
	if err != nil {
		return err
	}
	a.KV = kv

	store, err := storage.NewConversationStore(a.DataDir)
	if err != nil {
		return err
	}
	store.MaxConversations = cfg.Storage.MaxConversations
	a.Store = store

	provider, err := credential.New(cfg.Credential.Provider, credential.Options{
		Dir:      filepath.Join(a.DataDir, "credentials"),
		Issuer:   cfg.Credential.Issuer,
		Prompter: prompter,
	})
	if err != nil {
		return err
	}
	a.Provider = provider

	gate, err := usage.NewGate(kv, provider, usage.Options{
		Quota:       cfg.Usage.Quota,
		IdentityTTL: cfg.IdentityTTL(),
		Logger:      a.Logger,
	})
	if err != nil {
		return err
	}
	a.Gate = gate

	a.Client = answer.NewClient(cfg.Service.BaseURL).
		WithHealthTimeout(cfg.HealthTimeout()).
		WithLogger(a.Logger)
	a.Consumer = answer.NewConsumer(a.Client, store, hooks, a.Logger)
	a.Session = session.New(gate, a.Consumer, store, a.Logger)
	return nil
}

// Close releases the KV database and log file.
func (a *App) Close() error {
	var errs []error
	if a.KV != nil {
		errs = append(errs, a.KV.Close())
	}
	if a.Logger != nil {
		errs = append(errs, a.Logger.Close())
	}
	return errors.Join(errs...)
}

// identityName returns the signed-in user's display name, or "".
func identityName(s usage.Snapshot) string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.DisplayName()
}

// defaultUserName is the name offered at registration when none is given.
func defaultUserName() string {
	for _, key := range []string{"REGTECH_USER", "USER", "USERNAME"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
