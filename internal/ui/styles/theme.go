// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme modes accepted by NewTheme.
const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	// ==========================================================================
	// TRANSCRIPT STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	UserText       lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantText  lipgloss.Style
	Timestamp      lipgloss.Style
	Citation       lipgloss.Style
	CitationIndex  lipgloss.Style
	Partial        lipgloss.Style
	Notice         lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	Spinner        lipgloss.Style

	// ==========================================================================
	// STATUS BAR STYLES
	// ==========================================================================

	StatusBar     lipgloss.Style
	QuotaOK       lipgloss.Style
	QuotaLow      lipgloss.Style
	QuotaNone     lipgloss.Style
	Authenticated lipgloss.Style
	ShortcutKey   lipgloss.Style
	ShortcutDesc  lipgloss.Style

	// ==========================================================================
	// OVERLAY STYLES
	// ==========================================================================

	GateBox      lipgloss.Style
	GateTitle    lipgloss.Style
	GateOption   lipgloss.Style
	SourcesBox   lipgloss.Style
	SourcesTitle lipgloss.Style
	PromptBox    lipgloss.Style

	// ==========================================================================
	// STATUS STYLES
	// ==========================================================================

	ErrorStyle   lipgloss.Style
	SuccessStyle lipgloss.Style
	Muted        lipgloss.Style
}

// NewTheme creates a theme for mode (auto, dark or light). Auto asks the
// terminal for its background color.
func NewTheme(mode string) *Theme {
	t := &Theme{ColorProfile: termenv.ColorProfile()}

	switch strings.ToLower(mode) {
	case ModeDark:
		t.IsDark = true
	case ModeLight:
		t.IsDark = false
	default:
		t.IsDark = termenv.HasDarkBackground()
	}

	t.apply()
	return t
}

// Toggle switches between dark and light.
func (t *Theme) Toggle() {
	t.IsDark = !t.IsDark
	t.apply()
}

// Mode returns "dark" or "light".
func (t *Theme) Mode() string {
	if t.IsDark {
		return ModeDark
	}
	return ModeLight
}

// GlamourStyle returns the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	return t.Mode()
}

// apply pins the adaptive colors to the current background and rebuilds styles.
func (t *Theme) apply() {
	lipgloss.SetHasDarkBackground(t.IsDark)
	t.initStyles()
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Green)

	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	// Transcript
	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.UserText = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Green)

	t.AssistantText = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Citation = lipgloss.NewStyle().
		Foreground(Gold).
		PaddingLeft(2)

	t.CitationIndex = lipgloss.NewStyle().
		Foreground(Gold).
		Bold(true)

	t.Partial = lipgloss.NewStyle().
		Foreground(TextSecondary).
		PaddingLeft(2)

	t.Notice = lipgloss.NewStyle().
		Foreground(Amber).
		Italic(true).
		PaddingLeft(2)

	// Input area
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Green)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.QuotaOK = lipgloss.NewStyle().
		Foreground(Green).
		Bold(true)

	t.QuotaLow = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.QuotaNone = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.Authenticated = lipgloss.NewStyle().
		Foreground(Green).
		Bold(true)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Overlays
	t.GateBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Amber).
		Padding(1, 2)

	t.GateTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Amber)

	t.GateOption = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.SourcesBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Gold).
		Padding(0, 1)

	t.SourcesTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Gold)

	t.PromptBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(0, 1)

	// Status
	t.ErrorStyle = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.SuccessStyle = lipgloss.NewStyle().
		Foreground(Green)

	t.Muted = lipgloss.NewStyle().
		Foreground(TextMuted)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// QuotaStyle picks the status style for the remaining prompt count.
func (t *Theme) QuotaStyle(remaining, quota int) lipgloss.Style {
	switch {
	case remaining <= 0:
		return t.QuotaNone
	case remaining*10 <= quota*3:
		return t.QuotaLow
	default:
		return t.QuotaOK
	}
}
