// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package answer talks to the RegTech answer service and turns its token
// stream into committed conversation messages.
//
// # Wire Format
//
// POST /api/chat with {"message": "..."} returns newline-delimited records:
//
//	data: {"type":"token","content":"Lo"}
//	data: {"type":"token","content":"Ra"}
//	data: {"type":"done","references":[{"id":"1","source":"aml.pdf","page":3,"snippet":"..."}]}
//
// Lines without the "data: " prefix are ignored, and records that do not
// decode are skipped.
//
// # Key Types
//
//   - Client: HTTP client for /api/chat and /health
//   - RecordReader: splits a byte stream into "data: " payloads
//   - Consumer: runs one send, publishes partial text, commits the answer
package answer
