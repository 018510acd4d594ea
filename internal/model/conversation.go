// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxTitleLength is the rune limit for auto-generated titles.
const MaxTitleLength = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds one chat thread and its metadata.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        "conv_" + uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and refreshes the title and timestamp.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
}

// LastAssistantMessage returns the most recent assistant message or nil.
func (c *Conversation) LastAssistantMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i]
		}
	}
	return nil
}

// FirstUserMessage returns the question that opened the conversation, or nil.
func (c *Conversation) FirstUserMessage() *Message {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg
		}
	}
	return nil
}

// References aggregates the citations of every assistant message, keeping the
// first occurrence of each reference ID in arrival order.
func (c *Conversation) References() []Reference {
	seen := make(map[string]bool)
	var refs []Reference
	for _, msg := range c.Messages {
		for _, ref := range msg.References {
			if seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// =============================================================================
// TITLE
// =============================================================================

// updateTitle derives a title from the first user message if none is set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	if first := c.FirstUserMessage(); first != nil {
		c.Title = first.Preview(MaxTitleLength)
	}
}

// GetTitle returns the title or a placeholder.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New conversation"
}

// Clone returns a copy whose message slice can be appended to independently.
// Messages themselves are shared; they are immutable once added.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return &clone
}
