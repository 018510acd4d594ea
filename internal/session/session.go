// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/logging"
	"github.com/ksaregtech/regtech-tui/internal/model"
)

var (
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = answer.ErrEmptyMessage
	// ErrBusy is returned while a previous submit is still running.
	ErrBusy = errors.New("still answering the previous question")
	// ErrQuotaExhausted is returned when the gate is closed. It is an
	// expected state that routes to sign-in, not a failure.
	ErrQuotaExhausted = errors.New("free prompts used up, register or log in to continue")
)

// Gate is the subset of usage.Gate the session needs.
type Gate interface {
	CanSend() bool
	IncrementPrompt() error
}

// Sender is the subset of answer.Consumer the session needs.
type Sender interface {
	Send(ctx context.Context, conv *model.Conversation, text string) (*model.Message, error)
	Snapshot(conv *model.Conversation) *model.Conversation
}

// Loader resolves stored conversations by ID or ID prefix.
type Loader interface {
	Resolve(idOrPrefix string) (*model.Conversation, error)
}

// Session owns the current conversation and serialises submits.
type Session struct {
	gate   Gate
	sender Sender
	loader Loader
	log    *logging.Logger

	mu      sync.Mutex
	conv    *model.Conversation
	sending bool
}

// New creates a session on a fresh conversation. loader may be nil, in
// which case Resume always fails.
func New(gate Gate, sender Sender, loader Loader, logger *logging.Logger) *Session {
	return &Session{
		gate:   gate,
		sender: sender,
		loader: loader,
		log:    logger.With("session"),
		conv:   model.NewConversation(),
	}
}

// Submit gates, charges and sends one question in the current conversation.
func (s *Session) Submit(ctx context.Context, text string) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if !s.gate.CanSend() {
		s.mu.Unlock()
		s.log.Info("send blocked: quota exhausted")
		return nil, ErrQuotaExhausted
	}
	s.sending = true
	conv := s.conv
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}()

	// Charged at initiation; the outcome of the send does not matter.
	if err := s.gate.IncrementPrompt(); err != nil {
		s.log.Warn("failed to persist prompt counter: %v", err)
	}

	return s.sender.Send(ctx, conv, text)
}

// Busy reports whether a submit is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// New starts a fresh conversation. It fails with ErrBusy during a submit.
func (s *Session) New() (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return nil, ErrBusy
	}
	s.conv = model.NewConversation()
	return s.conv.Clone(), nil
}

// Resume makes a stored conversation current.
func (s *Session) Resume(idOrPrefix string) (*model.Conversation, error) {
	if s.loader == nil {
		return nil, errors.New("no conversation store configured")
	}
	conv, err := s.loader.Resolve(idOrPrefix)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return nil, ErrBusy
	}
	s.conv = conv
	s.log.Info("resumed conversation %s (%d messages)", conv.ID, len(conv.Messages))
	return conv.Clone(), nil
}

// Conversation returns a snapshot of the current conversation.
func (s *Session) Conversation() *model.Conversation {
	s.mu.Lock()
	conv := s.conv
	s.mu.Unlock()
	return s.sender.Snapshot(conv)
}

// ConversationID returns the current conversation's ID.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.ID
}
