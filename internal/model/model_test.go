// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hello")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.Nil(t, msg.References)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNewAssistantMessage_NilReferencesBecomeEmpty(t *testing.T) {
	msg := NewAssistantMessage("answer", nil)

	require.NotNil(t, msg.References)
	assert.Empty(t, msg.References)
	assert.Equal(t, RoleAssistant, msg.Role)
}

func TestMessageIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewUserMessage("x").ID
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestMessageJSON_UserOmitsReferences(t *testing.T) {
	data, err := json.Marshal(NewUserMessage("q"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "references")
}

func TestReferenceLabel(t *testing.T) {
	assert.Equal(t, "aml.pdf, p. 4", Reference{Source: "aml.pdf", Page: 4}.Label())
	assert.Equal(t, "aml.pdf", Reference{Source: "aml.pdf"}.Label())
}

func TestConversation_TitleFromFirstUserMessage(t *testing.T) {
	conv := NewConversation()
	assert.Equal(t, "New conversation", conv.GetTitle())

	conv.AddMessage(NewUserMessage("What are the\nCMA disclosure rules?"))
	conv.AddMessage(NewUserMessage("second question"))

	assert.Equal(t, "What are the CMA disclosure rules?", conv.GetTitle())
}

func TestConversation_TitleTruncated(t *testing.T) {
	conv := NewConversation()
	conv.AddMessage(NewUserMessage(strings.Repeat("a", 200)))

	assert.Equal(t, MaxTitleLength, len([]rune(conv.Title)))
	assert.True(t, strings.HasSuffix(conv.Title, "..."))
}

func TestConversation_ReferencesDeduplicated(t *testing.T) {
	conv := NewConversation()
	conv.AddMessage(NewUserMessage("q1"))
	conv.AddMessage(NewAssistantMessage("a1", []Reference{
		{ID: "1", Source: "a.pdf", Page: 1},
		{ID: "2", Source: "b.pdf", Page: 2},
	}))
	conv.AddMessage(NewUserMessage("q2"))
	conv.AddMessage(NewAssistantMessage("a2", []Reference{
		{ID: "2", Source: "b.pdf", Page: 2},
		{ID: "3", Source: "c.pdf", Page: 3},
	}))

	refs := conv.References()
	require.Len(t, refs, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{refs[0].ID, refs[1].ID, refs[2].ID})
}

func TestConversation_LastAssistantMessage(t *testing.T) {
	conv := NewConversation()
	assert.Nil(t, conv.LastAssistantMessage())

	conv.AddMessage(NewUserMessage("q"))
	a := NewAssistantMessage("a", nil)
	conv.AddMessage(a)
	conv.AddMessage(NewUserMessage("q2"))

	assert.Same(t, a, conv.LastAssistantMessage())
	assert.Equal(t, "q", conv.FirstUserMessage().Content)
}

func TestConversation_CloneIsIndependent(t *testing.T) {
	conv := NewConversation()
	conv.AddMessage(NewUserMessage("q"))

	clone := conv.Clone()
	clone.AddMessage(NewUserMessage("only in clone"))

	assert.Len(t, conv.Messages, 1)
	assert.Len(t, clone.Messages, 2)
}
