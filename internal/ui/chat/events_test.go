// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/session"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) send(msg tea.Msg) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func TestEvents_PostBeforeAttachIsDropped(t *testing.T) {
	e := NewEvents()
	assert.NotPanics(t, func() { e.Post(ShowMsg{Text: "x"}) })
}

func TestEvents_HooksPostMessages(t *testing.T) {
	rec := &recorder{}
	e := NewEvents()
	e.SetSender(rec.send)
	hooks := e.Hooks()

	user := model.NewUserMessage("q")
	reply := model.NewAssistantMessage("a", nil)
	failure := errors.New("boom")

	hooks.UserMessage("c1", user)
	hooks.Partial("c1", "a")
	hooks.Committed("c1", reply)
	hooks.Failed("c1", failure)

	require.Len(t, rec.msgs, 4)
	assert.Equal(t, UserMessageMsg{ConversationID: "c1", Message: user}, rec.msgs[0])
	assert.Equal(t, PartialMsg{ConversationID: "c1", Content: "a"}, rec.msgs[1])
	assert.Equal(t, CommittedMsg{ConversationID: "c1", Message: reply}, rec.msgs[2])
	assert.Equal(t, FailedMsg{ConversationID: "c1", Err: failure}, rec.msgs[3])
}

func TestEvents_GateListener(t *testing.T) {
	rec := &recorder{}
	e := NewEvents()
	e.SetSender(rec.send)

	e.GateListener()(usage.Snapshot{RemainingPrompts: 2, Quota: 10})

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, GateChangedMsg{Snapshot: usage.Snapshot{RemainingPrompts: 2, Quota: 10}}, rec.msgs[0])
}

func TestPrompter_SecretReturnsReply(t *testing.T) {
	e := NewEvents()
	e.SetSender(func(msg tea.Msg) {
		if req, ok := msg.(PromptRequestMsg); ok {
			go func() { req.Reply <- PromptReply{Value: "654321"} }()
		}
	})

	got, err := NewPrompter(e).Secret(context.Background(), "code")

	require.NoError(t, err)
	assert.Equal(t, "654321", got)
}

func TestPrompter_SecretCancelledReply(t *testing.T) {
	e := NewEvents()
	e.SetSender(func(msg tea.Msg) {
		if req, ok := msg.(PromptRequestMsg); ok {
			req.Reply <- PromptReply{Cancelled: true}
		}
	})

	_, err := NewPrompter(e).Secret(context.Background(), "code")

	assert.ErrorIs(t, err, credential.ErrCancelled)
}

func TestPrompter_SecretContextDone(t *testing.T) {
	e := NewEvents()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewPrompter(e).Secret(ctx, "code")

	assert.ErrorIs(t, err, credential.ErrCancelled)
}

func TestPrompter_Show(t *testing.T) {
	rec := &recorder{}
	e := NewEvents()
	e.SetSender(rec.send)

	require.NoError(t, NewPrompter(e).Show(context.Background(), "Secret: ABC"))
	assert.Equal(t, []tea.Msg{ShowMsg{Text: "Secret: ABC"}}, rec.msgs)
}

// =============================================================================
// UTILITIES
// =============================================================================

func TestWrapText(t *testing.T) {
	got := wrapText("the quick brown fox jumps", 10)
	for _, line := range strings.Split(got, "\n") {
		assert.LessOrEqual(t, len(line), 10, "line %q", line)
	}
	assert.Equal(t, "the quick brown fox jumps", strings.Join(strings.Fields(got), " "))
	assert.Equal(t, "keep", wrapText("keep", 0))
}

func TestContentWidth(t *testing.T) {
	assert.Equal(t, 76, contentWidth(80, 0))
	assert.Equal(t, 60, contentWidth(80, 60))
	assert.Equal(t, 10, contentWidth(5, 0))
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "09:30", formatTimestamp(time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC), now))
	assert.Equal(t, "Mon 09:30", formatTimestamp(time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), now))
	assert.Equal(t, "Jan 2 09:30", formatTimestamp(time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC), now))
}

func TestDescribeErrors(t *testing.T) {
	assert.Contains(t, describeSendError(&answer.StatusError{StatusCode: 503}), "503")
	assert.NotEmpty(t, describeSendError(session.ErrBusy))
	assert.NotEmpty(t, describeAuthError(usage.ErrCapabilityUnavailable))
	assert.Contains(t, describeAuthError(errors.New("weird")), "weird")
}
