// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the regtech command tree.
//
// Running regtech with no arguments starts the TUI. The other commands share
// the same wiring (config, logger, stores, usage gate, answer consumer) so
// the prompt quota and identity are the same whichever surface is used.
//
// Commands:
//
//	regtech                          Start the TUI (default)
//	regtech ask "question" [--json]  Ask one question and stream the answer
//	regtech chat                     Line-based chat with history
//	regtech auth register|login|logout|status
//	regtech history list|show|delete|export|search
//	regtech status                   Service health and usage state
//	regtech serve-stub               Local stub answer service
//	regtech config show|path|init|get|set
//
// Global flags:
//
//	--config PATH    Config file (default ~/.regtech/config.toml)
//	--api-url URL    Answer service base URL
//	-v, --verbose    Debug logging
package cli
