// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credential provides the local public-key credential backends that
// unlock unlimited use of regtech.
//
// A Provider performs two operations: Create enrols a new credential and
// Assert proves possession of a previously enrolled one. Both return a
// Handle whose ID is the only field callers should persist.
//
// # Backends
//
//   - device: Ed25519 key sealed with XChaCha20-Poly1305 under a PIN-derived key
//   - totp: RFC 6238 one-time codes from an authenticator app
//   - none: always unavailable
//   - Stub: scripted results for tests
//
// User interaction goes through a Prompter so the same backend works in the
// TUI and on a plain terminal.
package credential
