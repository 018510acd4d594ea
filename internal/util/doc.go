// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the regtech packages.
//
// # Key Functions
//
// Text:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: display-width truncation (Arabic, CJK, emoji)
//   - OneLine: collapse whitespace for list previews
//   - NormalizeInput: NFC normalisation of user questions
//
// Files:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateWidth(util.OneLine(question), 50)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
