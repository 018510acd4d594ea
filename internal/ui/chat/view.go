// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/ui/styles"
	"github.com/ksaregtech/regtech-tui/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var body string
	switch {
	case m.state == StateGate || m.state == StatePrompt:
		body = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, m.renderGate())
	case m.showSources:
		body = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Left, lipgloss.Top, m.renderSources())
	default:
		body = m.viewport.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderInput(),
		m.renderStatusBar(),
	)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("KSA RegTech")
	conv := m.theme.HeaderMeta.Render(util.TruncateWidth(m.convTitle, max(m.width/2, 10)))

	var service string
	switch {
	case !m.healthChecked:
		service = m.theme.Muted.Render(m.serviceURL)
	case m.serviceErr != nil:
		service = m.theme.ErrorStyle.Render("service offline")
	default:
		service = m.theme.SuccessStyle.Render("service online")
	}

	left := title + "  " + conv
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(service) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + service)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refresh re-renders the transcript into the viewport and follows the tail.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) renderTranscript() string {
	if len(m.transcript) == 0 && m.partial == "" && !m.sending {
		return m.renderWelcome()
	}

	width := contentWidth(m.viewport.Width, m.wordWrap)

	var blocks []string
	for _, e := range m.transcript {
		switch {
		case e.msg != nil:
			blocks = append(blocks, m.renderMessage(e.msg, width))
		case e.isError:
			blocks = append(blocks, m.theme.Notice.Render(m.theme.ErrorStyle.Render("! ")+wrapText(e.notice, width)))
		default:
			blocks = append(blocks, m.theme.Notice.Render(wrapText(e.notice, width)))
		}
	}

	if m.sending {
		label := m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName())
		text := m.partial
		if text == "" {
			text = m.spinner.View() + " Searching regulations..."
		} else {
			text = wrapText(text, width)
		}
		blocks = append(blocks, label+"\n"+m.theme.Partial.Render(text))
	}

	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderWelcome() string {
	lines := []string{
		m.theme.HeaderTitle.Render("Welcome to KSA RegTech"),
		"",
		"Ask a question about Saudi regulations and get an answer with citations.",
		m.theme.Muted.Render("Try: What are the data breach notification rules under the PDPL?"),
	}
	if !m.snapshot.IsAuthenticated {
		lines = append(lines, "", m.theme.Muted.Render(fmt.Sprintf(
			"%d free questions remain. Press ctrl+g to register or log in.", m.snapshot.RemainingPrompts)))
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderMessage(msg *model.Message, width int) string {
	ts := m.theme.Timestamp.Render(formatTimestamp(msg.Timestamp, m.now()))

	if msg.Role == model.RoleUser {
		label := m.theme.UserLabel.Render(msg.Role.DisplayName())
		return label + " " + ts + "\n" + m.theme.UserText.Render(wrapText(msg.Content, width))
	}

	label := m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	var sb strings.Builder
	sb.WriteString(label + " " + ts + "\n")
	sb.WriteString(m.renderAnswer(msg, width))

	for i, ref := range msg.References {
		sb.WriteString("\n")
		idx := m.theme.CitationIndex.Render(fmt.Sprintf("[%d]", i+1))
		sb.WriteString(m.theme.Citation.Render(idx + " " + util.TruncateWidth(ref.Label(), width-6)))
	}
	return sb.String()
}

// renderAnswer renders assistant content, as markdown when enabled.
func (m *Model) renderAnswer(msg *model.Message, width int) string {
	if msg.Content == "" {
		return m.theme.Notice.Render("(no answer text)")
	}
	if !m.renderMarkdown || m.renderer == nil {
		return m.theme.AssistantText.Render(wrapText(msg.Content, width))
	}

	if cached, ok := m.renderCache[msg.ID]; ok {
		return cached
	}
	out, err := m.renderer.Render(msg.Content)
	if err != nil {
		m.log.Debug("markdown render failed for %s: %v", msg.ID, err)
		return m.theme.AssistantText.Render(wrapText(msg.Content, width))
	}
	out = strings.Trim(out, "\n")
	m.renderCache[msg.ID] = out
	return out
}

// rebuildRenderer recreates the markdown renderer for the current width and
// theme. Cached renders are discarded.
func (m *Model) rebuildRenderer() {
	m.renderCache = make(map[string]string)
	if !m.renderMarkdown {
		m.renderer = nil
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(contentWidth(m.viewport.Width, m.wordWrap)),
	)
	if err != nil {
		m.log.Warn("markdown renderer unavailable: %v", err)
		m.renderer = nil
		return
	}
	m.renderer = r
}

// =============================================================================
// OVERLAYS
// =============================================================================

func (m Model) renderSources() string {
	conv := &model.Conversation{}
	for _, e := range m.transcript {
		if e.msg != nil {
			conv.Messages = append(conv.Messages, e.msg)
		}
	}
	refs := conv.References()

	width := max(m.width-4, 20)
	lines := []string{m.theme.SourcesTitle.Render(fmt.Sprintf("Sources (%d)", len(refs)))}
	if len(refs) == 0 {
		lines = append(lines, m.theme.Muted.Render("No citations in this conversation yet."))
	}
	for i, ref := range refs {
		lines = append(lines, "",
			m.theme.CitationIndex.Render(fmt.Sprintf("[%d] ", i+1))+ref.Label(),
			m.theme.Muted.Render(wrapText(ref.Snippet, width-4)),
		)
	}
	lines = append(lines, "", m.theme.Muted.Render("esc or ctrl+s to close"))
	return m.theme.SourcesBox.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderGate() string {
	var lines []string

	if m.snapshot.IsAuthenticated {
		lines = append(lines, m.theme.GateTitle.Render("Account"))
		name := ""
		if m.snapshot.Identity != nil {
			name = m.snapshot.Identity.DisplayName()
		}
		lines = append(lines, "", "Signed in as "+m.theme.Authenticated.Render(name)+".")
	} else {
		lines = append(lines, m.theme.GateTitle.Render("Register to keep asking"))
		lines = append(lines, "")
		if m.gateReason != "" {
			lines = append(lines, m.gateReason)
		} else {
			lines = append(lines, fmt.Sprintf("%d of %d free questions remain.",
				m.snapshot.RemainingPrompts, m.snapshot.Quota))
		}
		lines = append(lines, "Registered users have unlimited questions.")
		if !m.snapshot.ProviderReady {
			lines = append(lines, "", m.theme.ErrorStyle.Render(
				fmt.Sprintf("No %s credential is available on this device.", m.snapshot.Provider)))
		}
	}

	if m.promptInfo != "" {
		lines = append(lines, "", m.theme.Muted.Render(m.promptInfo))
	}

	switch {
	case m.state == StatePrompt && m.prompt != nil:
		lines = append(lines, "", m.prompt.Label, m.theme.PromptBox.Render(m.promptInput.View()))
	case m.authRunning:
		lines = append(lines, "", m.theme.Muted.Render("Waiting for your credential..."))
	}

	if m.gateErr != "" {
		lines = append(lines, "", m.theme.ErrorStyle.Render(m.gateErr))
	}

	lines = append(lines, "", m.renderHelp(m.keyMap.GateHelp(m.snapshot.IsAuthenticated)))

	width := min(max(m.width-8, 30), 64)
	return m.theme.GateBox.Width(width).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// INPUT AND STATUS BAR
// =============================================================================

func (m Model) renderInput() string {
	var line string
	if m.sending {
		line = m.spinner.View() + " Answering..."
	} else {
		line = m.input.View()
	}
	return m.theme.InputContainer.Width(m.width).Render(line)
}

func (m Model) renderStatusBar() string {
	var quota string
	if m.snapshot.IsAuthenticated {
		name := ""
		if m.snapshot.Identity != nil {
			name = m.snapshot.Identity.DisplayName()
		}
		quota = m.theme.Authenticated.Render("Signed in: " + name)
	} else {
		style := m.theme.QuotaStyle(m.snapshot.RemainingPrompts, m.snapshot.Quota)
		quota = style.Render(fmt.Sprintf("Free questions %d/%d", m.snapshot.RemainingPrompts, m.snapshot.Quota))
		if m.theme.GetLayoutMode() != styles.LayoutNarrow {
			quota += " " + style.Render("["+styles.RenderMeter(m.snapshot.RemainingPrompts, m.snapshot.Quota, 10)+"]")
		}
	}

	parts := []string{quota}
	if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	}
	if m.theme.GetLayoutMode() == styles.LayoutWide {
		parts = append(parts, m.renderHelp(m.keyMap.ShortHelp()))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, " | "))
}

func (m Model) renderHelp(bindings []key.Binding) string {
	var items []string
	for _, b := range bindings {
		h := b.Help()
		items = append(items, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	return strings.Join(items, "  ")
}
