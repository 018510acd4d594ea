// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/logging"
	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/session"
	"github.com/ksaregtech/regtech-tui/internal/ui/styles"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Submitter is the subset of session.Session the view drives.
type Submitter interface {
	Submit(ctx context.Context, text string) (*model.Message, error)
	New() (*model.Conversation, error)
	Conversation() *model.Conversation
}

// Authenticator is the subset of usage.Gate the view drives.
type Authenticator interface {
	Snapshot() usage.Snapshot
	Register(ctx context.Context, hint credential.Hint) error
	Login(ctx context.Context, hint credential.Hint) error
	Logout() error
}

// HealthChecker probes the answer service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady   State = iota // Ready for input
	StateSending              // Answer streaming
	StateGate                 // Gate surface shown
	StatePrompt               // Credential prompt shown
)

const (
	opRegister = "register"
	opLogin    = "login"
	opLogout   = "logout"
)

// entry is one transcript item: a committed turn or a local notice.
type entry struct {
	msg     *model.Message
	notice  string
	isError bool
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Options configures a chat Model.
type Options struct {
	Session Submitter
	Gate    Authenticator
	Health  HealthChecker // optional
	Events  *Events

	Theme          *styles.Theme // nil builds one from ThemeMode
	ThemeMode      string
	RenderMarkdown bool
	WordWrap       int

	// UserName is the display name offered when registering.
	UserName   string
	ServiceURL string
	Logger     *logging.Logger
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// State
	state    State
	sending  bool
	snapshot usage.Snapshot

	// Collaborators
	session Submitter
	gate    Authenticator
	health  HealthChecker
	events  *Events
	log     *logging.Logger

	// Styling
	theme          *styles.Theme
	renderer       *glamour.TermRenderer
	renderCache    map[string]string
	renderMarkdown bool
	wordWrap       int

	// Dimensions
	width  int
	height int

	// Conversation
	convID     string
	convTitle  string
	transcript []entry
	partial    string

	// UI Components
	viewport    viewport.Model
	input       textinput.Model
	promptInput textinput.Model
	spinner     spinner.Model
	keyMap      KeyMap

	// Overlays
	showSources bool
	gateReason  string
	gateErr     string

	// Auth flow
	userName    string
	authRunning bool
	authOp      string
	authCancel  context.CancelFunc
	prompt      *PromptRequestMsg
	promptInfo  string

	// Status
	serviceURL    string
	serviceErr    error
	healthChecked bool
	statusMsg     string
	failedShown   bool
	now           func() time.Time
}

// New creates a new chat model.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(opts.ThemeMode)
	}
	events := opts.Events
	if events == nil {
		events = NewEvents()
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about KSA regulations..."
	ti.CharLimit = 4096
	ti.Focus()

	pi := textinput.New()
	pi.Prompt = "> "
	pi.EchoMode = textinput.EchoPassword
	pi.EchoCharacter = '*'
	pi.CharLimit = 128

	sp := spinner.New()
	sp.Spinner = styles.LineSpinner
	sp.Style = theme.Spinner

	m := Model{
		state:          StateReady,
		session:        opts.Session,
		gate:           opts.Gate,
		health:         opts.Health,
		events:         events,
		log:            opts.Logger.With("tui"),
		theme:          theme,
		renderCache:    make(map[string]string),
		renderMarkdown: opts.RenderMarkdown,
		wordWrap:       opts.WordWrap,
		viewport:       viewport.New(80, 20),
		input:          ti,
		promptInput:    pi,
		spinner:        sp,
		keyMap:         DefaultKeyMap(),
		userName:       opts.UserName,
		serviceURL:     opts.ServiceURL,
		now:            time.Now,
	}
	if m.gate != nil {
		m.snapshot = m.gate.Snapshot()
	}
	if m.session != nil {
		m.loadConversation(m.session.Conversation())
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.health != nil {
		cmds = append(cmds, healthCmd(m.health))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.partial == "" {
			m.refresh()
		}
		return m, cmd

	// Streaming
	case UserMessageMsg:
		if msg.ConversationID == m.convID {
			m.transcript = append(m.transcript, entry{msg: msg.Message})
			m.refreshTitle()
			m.refresh()
		}
		return m, nil

	case PartialMsg:
		if msg.ConversationID == m.convID {
			m.partial = msg.Content
			m.refresh()
		}
		return m, nil

	case CommittedMsg:
		if msg.ConversationID == m.convID {
			m.partial = ""
			m.transcript = append(m.transcript, entry{msg: msg.Message})
			m.refresh()
		}
		return m, nil

	case FailedMsg:
		if msg.ConversationID == m.convID {
			m.partial = ""
			m.failedShown = true
			m.addNotice(describeSendError(msg.Err), true)
		}
		return m, nil

	case SubmitDoneMsg:
		return m.handleSubmitDone(msg)

	// Usage and auth
	case GateChangedMsg:
		m.snapshot = msg.Snapshot
		return m, nil

	case PromptRequestMsg:
		return m.openPrompt(msg)

	case ShowMsg:
		m.promptInfo = msg.Text
		return m, nil

	case AuthDoneMsg:
		return m.handleAuthDone(msg)

	// Misc
	case HealthMsg:
		m.healthChecked = true
		m.serviceErr = msg.Err
		if msg.Err != nil {
			m.log.Warn("answer service health check failed: %v", msg.Err)
		}
		return m, nil

	case ConfigChangedMsg:
		return m.handleConfigChanged(msg)

	case ClipboardMsg:
		if msg.Err != nil {
			m.statusMsg = "Copy failed: " + msg.Err.Error()
		} else {
			m.statusMsg = fmt.Sprintf("Copied answer (%d chars)", msg.Chars)
		}
		return m, nil
	}

	return m, nil
}

// =============================================================================
// RESIZE
// =============================================================================

const (
	headerHeight = 1
	footerHeight = 3 // input border + input + status bar
)

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	bodyHeight := msg.Height - headerHeight - footerHeight
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	m.viewport.Width = msg.Width
	m.viewport.Height = bodyHeight
	m.input.Width = msg.Width - 6
	m.promptInput.Width = 32

	m.rebuildRenderer()
	m.refresh()
	return m, nil
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keyMap.Quit) {
		m.cancelAuth()
		return m, tea.Quit
	}

	switch m.state {
	case StatePrompt:
		return m.handlePromptKey(msg)
	case StateGate:
		return m.handleGateKey(msg)
	}

	switch {
	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.ViewUp()
		return m, nil
	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.ViewDown()
		return m, nil
	case key.Matches(msg, m.keyMap.ToggleTheme):
		m.theme.Toggle()
		m.spinner.Style = m.theme.Spinner
		m.rebuildRenderer()
		m.refresh()
		m.statusMsg = "Theme: " + m.theme.Mode()
		return m, nil
	case key.Matches(msg, m.keyMap.Sources):
		m.showSources = !m.showSources
		return m, nil
	case key.Matches(msg, m.keyMap.Copy):
		return m.copyLastAnswer()
	case key.Matches(msg, m.keyMap.Cancel):
		m.showSources = false
		m.statusMsg = ""
		return m, nil
	}

	if m.state == StateSending {
		// Input is disabled while an answer streams.
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keyMap.Submit):
		return m.submit()
	case key.Matches(msg, m.keyMap.NewConv):
		return m.newConversation()
	case key.Matches(msg, m.keyMap.Account):
		return m.openGate("")
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleGateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Cancel):
		if m.authRunning {
			m.cancelAuth()
			return m, nil
		}
		return m.closeGate(), nil
	case m.authRunning:
		return m, nil
	case m.snapshot.IsAuthenticated && key.Matches(msg, m.keyMap.Logout):
		return m, logoutCmd(m.gate)
	case !m.snapshot.IsAuthenticated && key.Matches(msg, m.keyMap.Register):
		return m.startAuth(opRegister)
	case !m.snapshot.IsAuthenticated && key.Matches(msg, m.keyMap.Login):
		return m.startAuth(opLogin)
	}
	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Submit):
		m.replyPrompt(PromptReply{Value: m.promptInput.Value()})
		m.state = StateGate
		return m, nil
	case key.Matches(msg, m.keyMap.Cancel):
		m.replyPrompt(PromptReply{Cancelled: true})
		m.cancelAuth()
		m.state = StateGate
		return m, nil
	}

	var cmd tea.Cmd
	m.promptInput, cmd = m.promptInput.Update(msg)
	return m, cmd
}

// =============================================================================
// SENDING
// =============================================================================

// submit asks the gate first; a closed gate never reaches the network.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.gate != nil {
		m.snapshot = m.gate.Snapshot()
	}
	if !m.snapshot.CanSend() {
		return m.openGate(fmt.Sprintf("You have used all %d free questions.", m.snapshot.Quota))
	}

	m.state = StateSending
	m.sending = true
	m.failedShown = false
	m.statusMsg = ""
	m.input.Reset()
	m.input.Blur()
	return m, tea.Batch(submitCmd(m.session, text), m.spinner.Tick)
}

func (m Model) handleSubmitDone(msg SubmitDoneMsg) (tea.Model, tea.Cmd) {
	m.sending = false
	m.partial = ""
	if m.state == StateSending {
		m.state = StateReady
	}
	focus := m.input.Focus()
	if m.gate != nil {
		m.snapshot = m.gate.Snapshot()
	}

	switch {
	case msg.Err == nil, errors.Is(msg.Err, session.ErrEmptyMessage):
	case errors.Is(msg.Err, session.ErrQuotaExhausted):
		return m.openGate(fmt.Sprintf("You have used all %d free questions.", m.snapshot.Quota))
	case !m.failedShown:
		m.addNotice(describeSendError(msg.Err), true)
	}
	m.refresh()
	return m, focus
}

func (m Model) newConversation() (tea.Model, tea.Cmd) {
	conv, err := m.session.New()
	if err != nil {
		m.statusMsg = describeSendError(err)
		return m, nil
	}
	m.loadConversation(conv)
	m.showSources = false
	m.statusMsg = "New conversation"
	m.refresh()
	return m, nil
}

func (m *Model) loadConversation(conv *model.Conversation) {
	if conv == nil {
		return
	}
	m.convID = conv.ID
	m.convTitle = conv.GetTitle()
	m.transcript = m.transcript[:0:0]
	for _, msg := range conv.Messages {
		m.transcript = append(m.transcript, entry{msg: msg})
	}
	m.partial = ""
}

func (m *Model) refreshTitle() {
	for _, e := range m.transcript {
		if e.msg != nil && e.msg.Role == model.RoleUser {
			m.convTitle = e.msg.Preview(model.MaxTitleLength)
			return
		}
	}
}

func (m *Model) addNotice(text string, isError bool) {
	m.transcript = append(m.transcript, entry{notice: text, isError: isError})
	m.refresh()
}

func (m Model) copyLastAnswer() (tea.Model, tea.Cmd) {
	for i := len(m.transcript) - 1; i >= 0; i-- {
		e := m.transcript[i]
		if e.msg != nil && e.msg.Role == model.RoleAssistant && e.msg.Content != "" {
			return m, copyCmd(e.msg.Content)
		}
	}
	m.statusMsg = "No answer to copy"
	return m, nil
}

// =============================================================================
// GATE AND AUTH
// =============================================================================

func (m Model) openGate(reason string) (tea.Model, tea.Cmd) {
	m.state = StateGate
	m.gateReason = reason
	m.gateErr = ""
	m.promptInfo = ""
	m.input.Blur()
	return m, nil
}

func (m Model) closeGate() Model {
	m.gateReason = ""
	m.gateErr = ""
	m.promptInfo = ""
	if m.sending {
		m.state = StateSending
	} else {
		m.state = StateReady
		m.input.Focus()
	}
	return m
}

func (m Model) startAuth(op string) (tea.Model, tea.Cmd) {
	if !m.snapshot.ProviderReady {
		m.gateErr = describeAuthError(usage.ErrCapabilityUnavailable)
		return m, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.authRunning = true
	m.authOp = op
	m.authCancel = cancel
	m.gateErr = ""
	m.promptInfo = ""
	return m, authCmd(ctx, m.gate, op, credential.Hint{Name: m.userName})
}

func (m *Model) cancelAuth() {
	if m.prompt != nil {
		m.replyPrompt(PromptReply{Cancelled: true})
	}
	if m.authCancel != nil {
		m.authCancel()
	}
}

func (m Model) openPrompt(msg PromptRequestMsg) (tea.Model, tea.Cmd) {
	if !m.authRunning {
		msg.Reply <- PromptReply{Cancelled: true}
		return m, nil
	}
	m.prompt = &msg
	m.state = StatePrompt
	m.promptInput.Reset()
	m.promptInput.Placeholder = msg.Label
	return m, m.promptInput.Focus()
}

func (m *Model) replyPrompt(r PromptReply) {
	if m.prompt == nil {
		return
	}
	m.prompt.Reply <- r
	m.prompt = nil
	m.promptInput.Blur()
	m.promptInput.Reset()
}

func (m Model) handleAuthDone(msg AuthDoneMsg) (tea.Model, tea.Cmd) {
	if msg.Op != opLogout {
		m.authRunning = false
		if m.authCancel != nil {
			m.authCancel()
			m.authCancel = nil
		}
		if m.prompt != nil {
			m.replyPrompt(PromptReply{Cancelled: true})
		}
		if m.state == StatePrompt {
			m.state = StateGate
		}
	}
	if m.gate != nil {
		m.snapshot = m.gate.Snapshot()
	}

	if msg.Err != nil {
		m.log.Info("%s failed: %v", msg.Op, msg.Err)
		m.gateErr = describeAuthError(msg.Err)
		return m, nil
	}

	m = m.closeGate()
	switch msg.Op {
	case opLogout:
		m.addNotice("Signed out.", false)
	default:
		name := "you"
		if m.snapshot.Identity != nil {
			name = m.snapshot.Identity.DisplayName()
		}
		m.addNotice(fmt.Sprintf("Signed in as %s. Questions are no longer limited.", name), false)
	}
	return m, nil
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

func (m Model) handleConfigChanged(msg ConfigChangedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.statusMsg = "Config reload failed: " + msg.Err.Error()
		return m, nil
	}
	cfg := msg.Config
	m.renderMarkdown = cfg.UI.RenderMarkdown
	m.wordWrap = cfg.UI.WordWrap
	switch cfg.UI.Theme {
	case styles.ModeDark, styles.ModeLight:
		if cfg.UI.Theme != m.theme.Mode() {
			m.theme.Toggle()
			m.spinner.Style = m.theme.Spinner
		}
	}
	m.rebuildRenderer()
	m.refresh()
	m.statusMsg = "Config reloaded"
	return m, nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current view state.
func (m Model) State() State {
	return m.state
}

// Transcript returns the committed messages shown in the view.
func (m Model) Transcript() []*model.Message {
	var msgs []*model.Message
	for _, e := range m.transcript {
		if e.msg != nil {
			msgs = append(msgs, e.msg)
		}
	}
	return msgs
}

// Partial returns the in-progress answer text.
func (m Model) Partial() string {
	return m.partial
}
