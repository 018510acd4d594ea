// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/ui/styles"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(styles.Green).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	valueStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimary)

	citationStyle = lipgloss.NewStyle().
			Foreground(styles.Gold)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose)

	mutedStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)
)

// =============================================================================
// JSON OUTPUT
// =============================================================================

// JSONResponse is the envelope for --json output.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	Timestamp string      `json:"timestamp"`
	Command   string      `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response to w.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// MARKDOWN
// =============================================================================

// renderMarkdown renders content for terminal display, falling back to the
// raw text when the renderer is unavailable.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// SHARED PRINTERS
// =============================================================================

// printReferences lists an answer's citations.
func printReferences(w io.Writer, refs []model.Reference) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Sources"))
	for i, ref := range refs {
		fmt.Fprintf(w, "  %s %s\n", citationStyle.Render(fmt.Sprintf("[%d]", i+1)), ref.Label())
	}
}

// printSnapshot shows the usage state.
func printSnapshot(w io.Writer, s usage.Snapshot) {
	if s.IsAuthenticated {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Signed in:"), valueStyle.Render(identityName(s)))
		if s.Identity != nil && !s.Identity.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Expires:  "), s.Identity.ExpiresAt.Local().Format(time.RFC1123))
		}
	} else {
		fmt.Fprintf(w, "  %s %d of %d\n", labelStyle.Render("Free questions left:"), s.RemainingPrompts, s.Quota)
	}
	provider := s.Provider
	if !s.ProviderReady {
		provider += " (unavailable)"
	}
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Credential provider:"), provider)
}

// printGateNotice explains how to continue once the quota is used up.
func printGateNotice(w io.Writer, s usage.Snapshot) {
	fmt.Fprintln(w, styles.RenderWarning(fmt.Sprintf("You have used all %d free questions.", s.Quota)))
	fmt.Fprintln(w, mutedStyle.Render("Run 'regtech auth register' (or 'regtech auth login') to continue."))
}
