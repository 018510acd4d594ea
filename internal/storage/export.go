// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/util"
)

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// FormatSessionList formats a list of conversations as a plain table.
func FormatSessionList(sessions []ConversationMeta) string {
	if len(sessions) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", 72) + "\n"
	sb.WriteString(rule)
	fmt.Fprintf(&sb, "%-13s %-17s %5s  %s\n", "ID", "Updated", "Msgs", "Title")
	sb.WriteString(rule)

	for _, s := range sessions {
		fmt.Fprintf(&sb, "%-13s %-17s %5d  %s\n",
			ShortID(s.ID),
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
			s.MessageCount,
			util.TruncateWidth(s.Title, 34))
	}
	return sb.String()
}

// ShortID trims the "conv_" prefix and keeps the first 13 characters, enough
// to be used as a Resolve prefix.
func ShortID(id string) string {
	id = strings.TrimPrefix(id, "conv_")
	if len(id) > 13 {
		return id[:13]
	}
	return id
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders the conversation as Markdown, with each answer's
// citations listed beneath it.
func ExportMarkdown(c *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + c.GetTitle() + "\n\n")
	sb.WriteString("Created: " + c.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range c.Messages {
		fmt.Fprintf(&sb, "**%s** (%s):\n\n", msg.Role.DisplayName(), msg.Timestamp.Format("15:04"))
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
		if len(msg.References) > 0 {
			sb.WriteString("Sources:\n\n")
			for i, ref := range msg.References {
				fmt.Fprintf(&sb, "%d. %s\n", i+1, ref.Label())
			}
			sb.WriteString("\n")
		}
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

// ExportJSON exports the conversation as pretty-printed JSON.
func ExportJSON(c *model.Conversation) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
