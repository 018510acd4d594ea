// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ksaregtech/regtech-tui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "RegTech"
	default:
		return string(r)
	}
}

// =============================================================================
// REFERENCE TYPE
// =============================================================================

// Reference is a citation into a chunk of a source document.
type Reference struct {
	ID      string `json:"id"`
	Source  string `json:"source"`  // Document name
	Page    int    `json:"page"`    // 1-based
	Snippet string `json:"snippet"` // Excerpt text
}

// Label returns "source, p. N" for compact display.
func (r Reference) Label() string {
	if r.Page > 0 {
		return fmt.Sprintf("%s, p. %d", r.Source, r.Page)
	}
	return r.Source
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
// User messages are never modified after creation; assistant messages are
// only created once their stream has completed.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	References []Reference `json:"references,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewUserMessage creates a user message with a fresh ID.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates a finished assistant message. A nil refs is
// stored as an empty slice so "no citations" and "not an answer" stay distinct.
func NewAssistantMessage(content string, refs []Reference) *Message {
	if refs == nil {
		refs = []Reference{}
	}
	return &Message{
		ID:         generateID(),
		Role:       RoleAssistant,
		Content:    content,
		References: refs,
		Timestamp:  time.Now(),
	}
}

// Preview returns a single-line preview of the content.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(util.OneLine(m.Content), maxLen)
}

// generateID creates a unique message ID.
func generateID() string {
	return uuid.NewString()
}
