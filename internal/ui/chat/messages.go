// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/ksaregtech/regtech-tui/internal/config"
	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// UserMessageMsg carries the optimistic user turn.
type UserMessageMsg struct {
	ConversationID string
	Message        *model.Message
}

// PartialMsg carries the accumulated answer text so far.
type PartialMsg struct {
	ConversationID string
	Content        string
}

// CommittedMsg carries the finished assistant turn.
type CommittedMsg struct {
	ConversationID string
	Message        *model.Message
}

// FailedMsg reports a send that ended without an answer.
type FailedMsg struct {
	ConversationID string
	Err            error
}

// SubmitDoneMsg is returned by the submit command once Submit returns.
type SubmitDoneMsg struct {
	Err error
}

// =============================================================================
// USAGE AND AUTH MESSAGES
// =============================================================================

// GateChangedMsg carries a fresh usage snapshot.
type GateChangedMsg struct {
	Snapshot usage.Snapshot
}

// AuthDoneMsg reports the end of a register, login or logout.
type AuthDoneMsg struct {
	Op  string
	Err error
}

// PromptRequestMsg asks the user for a secret on behalf of a credential provider.
type PromptRequestMsg struct {
	Label string
	Reply chan<- PromptReply
}

// PromptReply answers a PromptRequestMsg.
type PromptReply struct {
	Value     string
	Cancelled bool
}

// ShowMsg displays provider information, such as a TOTP enrolment URI.
type ShowMsg struct {
	Text string
}

// =============================================================================
// MISC MESSAGES
// =============================================================================

// HealthMsg reports the answer service health.
type HealthMsg struct {
	Err error
}

// ConfigChangedMsg reports a reloaded config file.
type ConfigChangedMsg struct {
	Config *config.Config
	Err    error
}

// ClipboardMsg reports the result of a copy.
type ClipboardMsg struct {
	Chars int
	Err   error
}
