// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides local persistence for regtech.
//
// Two stores live here:
//
//   - ConversationStore: one JSON file per conversation, written atomically
//   - KV: a small SQLite-backed key-value table for usage and identity records
//
// # Usage
//
//	store, err := storage.NewConversationStore(dataDir)
//	err = store.Save(conv)
//	metas, err := store.List() // most recent first
//
//	kv, err := storage.OpenKV(filepath.Join(dataDir, "state.db"))
//	defer kv.Close()
//	err = kv.Set("usage.remaining_prompts", "10")
//
// # Storage Location
//
// Conversations are stored in ~/.regtech/conversations/ and the key-value
// database in ~/.regtech/state.db.
package storage
