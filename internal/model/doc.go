// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: one chat thread with its ordered messages
//   - Message: a single user or assistant turn
//   - Reference: a citation into a source document chunk
//   - Role: message role enumeration (user, assistant)
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.AddMessage(model.NewUserMessage("What does SAMA require for KYC?"))
//	conv.AddMessage(model.NewAssistantMessage(answer, refs))
//	sources := conv.References() // deduplicated by ID
package model
