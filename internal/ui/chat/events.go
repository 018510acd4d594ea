// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

// =============================================================================
// EVENT BRIDGE
// =============================================================================

// Events forwards callbacks from background goroutines into a running
// program. Messages posted before Attach are dropped.
type Events struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewEvents creates an unattached bridge.
func NewEvents() *Events {
	return &Events{}
}

// Attach routes posted messages to p.
func (e *Events) Attach(p *tea.Program) {
	e.SetSender(p.Send)
}

// SetSender routes posted messages to fn.
func (e *Events) SetSender(fn func(tea.Msg)) {
	e.mu.Lock()
	e.send = fn
	e.mu.Unlock()
}

// Post delivers msg to the attached program.
func (e *Events) Post(msg tea.Msg) {
	e.mu.RLock()
	send := e.send
	e.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}

// Hooks returns consumer hooks that post streaming messages.
func (e *Events) Hooks() answer.Hooks {
	return answer.Hooks{
		UserMessage: func(convID string, msg *model.Message) {
			e.Post(UserMessageMsg{ConversationID: convID, Message: msg})
		},
		Partial: func(convID, content string) {
			e.Post(PartialMsg{ConversationID: convID, Content: content})
		},
		Committed: func(convID string, msg *model.Message) {
			e.Post(CommittedMsg{ConversationID: convID, Message: msg})
		},
		Failed: func(convID string, err error) {
			e.Post(FailedMsg{ConversationID: convID, Err: err})
		},
	}
}

// GateListener posts a GateChangedMsg for every gate transition.
func (e *Events) GateListener() func(usage.Snapshot) {
	return func(s usage.Snapshot) {
		e.Post(GateChangedMsg{Snapshot: s})
	}
}

// =============================================================================
// PROMPTER
// =============================================================================

// Prompter implements credential.Prompter over the TUI's masked input.
type Prompter struct {
	events *Events
}

// NewPrompter creates a prompter posting through events.
func NewPrompter(events *Events) *Prompter {
	return &Prompter{events: events}
}

// Secret shows a masked input labelled label and waits for the answer.
func (p *Prompter) Secret(ctx context.Context, label string) (string, error) {
	reply := make(chan PromptReply, 1)
	p.events.Post(PromptRequestMsg{Label: label, Reply: reply})

	select {
	case <-ctx.Done():
		return "", credential.ErrCancelled
	case r := <-reply:
		if r.Cancelled {
			return "", credential.ErrCancelled
		}
		return r.Value, nil
	}
}

// Show displays text above the prompt.
func (p *Prompter) Show(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return credential.ErrCancelled
	}
	p.events.Post(ShowMsg{Text: text})
	return nil
}
