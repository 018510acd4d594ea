// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-runewidth"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/session"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

// =============================================================================
// FORMATTING UTILITIES
// =============================================================================

// formatTimestamp formats a timestamp for display in the transcript:
//   - Today: just time (e.g., "15:04")
//   - This week: day and time (e.g., "Mon 15:04")
//   - Older: date and time (e.g., "Jan 2 15:04")
func formatTimestamp(t, now time.Time) string {
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if now.Sub(t) < 7*24*time.Hour {
		return t.Format("Mon 15:04")
	}
	return t.Format("Jan 2 15:04")
}

// =============================================================================
// CLIPBOARD UTILITIES
// =============================================================================

// copyToClipboard copies the given text to the system clipboard.
var copyToClipboard = clipboard.WriteAll

// =============================================================================
// TEXT UTILITIES
// =============================================================================

// wrapText wraps text to maxWidth display cells. Existing line breaks are
// kept and long lines break at the last space that fits.
func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}

	var result strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}

		runes := []rune(line)
		for runewidth.StringWidth(string(runes)) > maxWidth {
			cut, width, lastSpace := 0, 0, -1
			for cut < len(runes) {
				w := runewidth.RuneWidth(runes[cut])
				if width+w > maxWidth {
					break
				}
				if runes[cut] == ' ' {
					lastSpace = cut
				}
				width += w
				cut++
			}
			if cut == 0 {
				cut = 1 // a single glyph wider than the line
			}
			if lastSpace > 0 && cut < len(runes) && runes[cut] != ' ' {
				cut = lastSpace
			}

			result.WriteString(strings.TrimRight(string(runes[:cut]), " "))
			result.WriteString("\n")
			runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
		}
		result.WriteString(string(runes))
	}
	return result.String()
}

// contentWidth is the wrap width for transcript text.
func contentWidth(total, configured int) int {
	w := total - 4
	if configured > 0 && configured < w {
		w = configured
	}
	if w < 10 {
		w = 10
	}
	return w
}

// =============================================================================
// ERROR DESCRIPTIONS
// =============================================================================

// describeSendError turns a failed send into a transcript notice.
func describeSendError(err error) string {
	var statusErr *answer.StatusError
	var streamErr *answer.StreamError
	switch {
	case errors.Is(err, answer.ErrEmptyCompletion):
		return "The service returned no answer. Please try again."
	case errors.As(err, &statusErr):
		return fmt.Sprintf("The answer service returned HTTP %d. Please try again later.", statusErr.StatusCode)
	case errors.Is(err, answer.ErrNoBody):
		return "The answer service sent an empty response."
	case errors.As(err, &streamErr):
		return fmt.Sprintf("The answer stream broke off after %d characters; nothing was saved.", len([]rune(streamErr.Partial)))
	case errors.Is(err, answer.ErrSendInProgress), errors.Is(err, session.ErrBusy):
		return "Still answering the previous question."
	default:
		return fmt.Sprintf("Could not reach the answer service: %v", err)
	}
}

// describeAuthError turns a failed register or login into gate text.
func describeAuthError(err error) string {
	switch {
	case errors.Is(err, usage.ErrCapabilityUnavailable):
		return "Sign-in is not available on this device."
	case errors.Is(err, usage.ErrMustRegister):
		return "No credential is registered on this device. Register first."
	case errors.Is(err, usage.ErrCancelled):
		return "Sign-in cancelled."
	case errors.Is(err, usage.ErrAuthInProgress):
		return "A sign-in is already in progress."
	case errors.Is(err, credential.ErrVerificationFailed):
		return "Verification failed. Check your PIN or code and try again."
	default:
		return fmt.Sprintf("Sign-in failed: %v", err)
	}
}
