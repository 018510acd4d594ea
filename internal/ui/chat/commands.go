// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ksaregtech/regtech-tui/internal/config"
	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/logging"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// healthTimeout bounds the startup health probe.
const healthTimeout = 5 * time.Second

// submitCmd runs one gated send. Progress arrives through Events; the
// returned message only marks the end.
func submitCmd(s Submitter, text string) tea.Cmd {
	return func() tea.Msg {
		_, err := s.Submit(context.Background(), text)
		return SubmitDoneMsg{Err: err}
	}
}

// authCmd runs a register or login flow.
func authCmd(ctx context.Context, g Authenticator, op string, hint credential.Hint) tea.Cmd {
	return func() tea.Msg {
		var err error
		switch op {
		case opRegister:
			err = g.Register(ctx, hint)
		default:
			err = g.Login(ctx, hint)
		}
		return AuthDoneMsg{Op: op, Err: err}
	}
}

// logoutCmd signs out.
func logoutCmd(g Authenticator) tea.Cmd {
	return func() tea.Msg {
		return AuthDoneMsg{Op: opLogout, Err: g.Logout()}
	}
}

// healthCmd probes the answer service.
func healthCmd(h HealthChecker) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		return HealthMsg{Err: h.Health(ctx)}
	}
}

// copyCmd copies text to the clipboard.
func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return ClipboardMsg{Chars: len([]rune(text)), Err: copyToClipboard(text)}
	}
}

// WatchConfig reloads path on change and posts ConfigChangedMsg until ctx
// is cancelled. It is meant to run on its own goroutine.
func WatchConfig(ctx context.Context, path string, events *Events, logger *logging.Logger) {
	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
		events.Post(ConfigChangedMsg{Config: cfg, Err: err})
	})
	if err != nil {
		logger.Warn("config watch stopped: %v", err)
	}
}
