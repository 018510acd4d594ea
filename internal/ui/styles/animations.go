// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// =============================================================================
// SPINNER ANIMATIONS
// =============================================================================

// LineSpinner is an ASCII spinner shown while an answer streams.
var LineSpinner = spinner.Spinner{
	Frames: []string{"|", "/", "-", "\\"},
	FPS:    time.Second / 10,
}

// =============================================================================
// QUOTA METER
// =============================================================================

// Meter characters.
var (
	MeterFull  = "#"
	MeterEmpty = "-"
)

// RenderMeter renders used/total as a fixed-width bar of whole cells,
// e.g. RenderMeter(7, 10, 10) = "#######---".
func RenderMeter(value, total, width int) string {
	if width <= 0 || total <= 0 {
		return ""
	}
	if value < 0 {
		value = 0
	}
	if value > total {
		value = total
	}

	filled := value * width / total
	if value > 0 && filled == 0 {
		filled = 1
	}

	var sb strings.Builder
	sb.Grow(width)
	sb.WriteString(strings.Repeat(MeterFull, filled))
	sb.WriteString(strings.Repeat(MeterEmpty, width-filled))
	return sb.String()
}
