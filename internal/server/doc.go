// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a local stand-in for the RegTech answer service.
//
// It speaks the same streaming contract as the production service so the
// client can be developed and demonstrated without the retrieval backend.
//
// # Endpoints
//
//   - POST /api/chat - streams token records, then one done record with references
//   - GET  /health   - {"status":"ok"}
//   - GET  /stats    - request and token counters
//
// References are chosen from a small corpus by keyword overlap with the
// question. The built-in corpus is sample text; pass a JSON file to use your
// own chunks.
//
// # Usage
//
//	srv := server.New(server.Options{Delay: 30 * time.Millisecond})
//	go srv.Start(":8000")
//	defer srv.Shutdown(ctx)
package server
