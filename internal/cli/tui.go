// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ksaregtech/regtech-tui/internal/ui/chat"
)

// runTUI starts the full-screen chat.
func runTUI(cmd *cobra.Command, opts *rootOptions) error {
	if !IsTTY() || !IsStdoutTTY() {
		return errors.New("the TUI needs a terminal; use 'regtech ask' or 'regtech chat' instead")
	}

	events := chat.NewEvents()
	app, err := opts.openApp(chat.NewPrompter(events), events.Hooks())
	if err != nil {
		return err
	}
	defer app.Close()

	unsubscribe := app.Gate.Subscribe(events.GateListener())
	defer unsubscribe()

	cfg := app.Config
	m := chat.New(chat.Options{
		Session:        app.Session,
		Gate:           app.Gate,
		Health:         app.Client,
		Events:         events,
		ThemeMode:      cfg.UI.Theme,
		RenderMarkdown: cfg.UI.RenderMarkdown,
		WordWrap:       cfg.UI.WordWrap,
		UserName:       defaultUserName(),
		ServiceURL:     cfg.Service.BaseURL,
		Logger:         app.Logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	events.Attach(p)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if _, err := os.Stat(app.ConfigPath); err == nil {
		go chat.WatchConfig(ctx, app.ConfigPath, events, app.Logger)
	}

	app.Logger.Info("tui started (service %s)", cfg.Service.BaseURL)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
