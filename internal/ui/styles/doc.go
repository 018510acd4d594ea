// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the regtech TUI.
//
// Colors are Lip Gloss AdaptiveColors, so a single palette serves dark and
// light terminals. Theme resolves the background once at startup (or from
// the configured mode) and can be toggled at runtime; the same decision
// selects the glamour style used for rendered answers.
//
// # Usage
//
//	theme := styles.NewTheme("auto")
//	header := theme.Header.Render("KSA RegTech")
//	theme.Toggle() // dark <-> light
package styles
