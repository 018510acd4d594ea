// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/session"
	"github.com/ksaregtech/regtech-tui/internal/storage"
	"github.com/ksaregtech/regtech-tui/internal/ui/styles"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI. History is loaded by SetHistoryFile.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &ChatCLI{line: line}
}

// SetHistoryFile loads command history from path and saves it there on Close.
func (c *ChatCLI) SetHistoryFile(path string) {
	c.historyFile = path
	if f, err := os.Open(path); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with 0600 permissions.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// Secret implements credential.Prompter with a masked liner prompt.
func (c *ChatCLI) Secret(ctx context.Context, label string) (string, error) {
	if ctx.Err() != nil {
		return "", credential.ErrCancelled
	}
	value, err := c.line.PasswordPrompt(label + ": ")
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return "", credential.ErrCancelled
	}
	return value, err
}

// Show implements credential.Prompter.
func (c *ChatCLI) Show(ctx context.Context, text string) error {
	if ctx.Err() != nil {
		return credential.ErrCancelled
	}
	fmt.Println(text)
	return nil
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func newChatCommand(root *rootOptions) *cobra.Command {
	var resume string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start a line-based chat. Type a question and press enter.

Interactive commands:
  /help               Show available commands
  /register [name]    Register a credential on this device
  /login              Sign in with the registered credential
  /logout             Sign out (the question counter is kept)
  /status             Show the usage state
  /sources            List the sources cited in this conversation
  /new                Start a new conversation
  /resume ID          Continue a saved conversation
  /quit, /q           Exit chat
  Ctrl+C              Stop the current answer
  Ctrl+D              Exit chat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, root, resume)
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", "continue a saved conversation (ID or prefix)")
	return cmd
}

// chatSession holds the state of one REPL run.
type chatSession struct {
	app     *App
	input   *ChatCLI
	out     io.Writer
	printed int
}

func runChat(cmd *cobra.Command, root *rootOptions, resume string) error {
	out := cmd.OutOrStdout()
	input := NewChatCLI()
	defer input.Close()

	cs := &chatSession{input: input, out: out}
	hooks := answer.Hooks{
		Partial: func(_ string, content string) {
			if len(content) > cs.printed {
				fmt.Fprint(out, content[cs.printed:])
				cs.printed = len(content)
			}
		},
	}

	app, err := root.openApp(input, hooks)
	if err != nil {
		return err
	}
	defer app.Close()
	cs.app = app
	input.SetHistoryFile(filepath.Join(app.DataDir, "chat_history"))

	if resume != "" {
		if err := cs.resume(resume); err != nil {
			return err
		}
	}

	// Interrupts stop the current answer, not the session.
	ctx := context.WithoutCancel(cmd.Context())
	cs.printWelcome()

	for {
		line, err := input.ReadInput(promptText)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			fmt.Fprintln(out)
			return nil
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if quit := cs.handleCommand(ctx, line); quit {
				return nil
			}
		default:
			cs.ask(ctx, line)
		}
	}
}

const promptText = "regtech> "

func (cs *chatSession) printWelcome() {
	fmt.Fprintln(cs.out, titleStyle.Render("KSA RegTech chat"))
	fmt.Fprintln(cs.out, mutedStyle.Render("Ask about Saudi regulations. Type /help for commands, Ctrl+D to exit."))
	snap := cs.app.Gate.Snapshot()
	if !snap.IsAuthenticated {
		fmt.Fprintln(cs.out, mutedStyle.Render(fmt.Sprintf("%d of %d free questions left.", snap.RemainingPrompts, snap.Quota)))
	}
	fmt.Fprintln(cs.out)
}

func (cs *chatSession) ask(ctx context.Context, question string) {
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cs.printed = 0
	fmt.Fprintln(cs.out, titleStyle.Render("RegTech"))
	msg, err := cs.app.Session.Submit(sendCtx, question)
	switch {
	case errors.Is(err, session.ErrQuotaExhausted):
		printGateNotice(cs.out, cs.app.Gate.Snapshot())
		fmt.Fprintln(cs.out, mutedStyle.Render("Type /register or /login to continue."))
	case err != nil:
		if cs.printed > 0 {
			fmt.Fprintln(cs.out)
		}
		fmt.Fprintln(cs.out, styles.RenderError(err.Error()))
	default:
		fmt.Fprintln(cs.out)
		printReferences(cs.out, msg.References)
	}
	fmt.Fprintln(cs.out)
}

// handleCommand runs a slash command and reports whether to exit.
func (cs *chatSession) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/q", "/exit":
		return true
	case "/help", "/h":
		fmt.Fprintln(cs.out, "Commands: /register [name], /login, /logout, /status, /sources, /new, /resume ID, /quit")
	case "/register":
		userName := strings.Join(args, " ")
		if userName == "" {
			userName = defaultUserName()
		}
		cs.reportAuth(runAuth(ctx, cs.app, opRegister, userName), "Registered")
	case "/login":
		cs.reportAuth(runAuth(ctx, cs.app, opLogin, ""), "Signed in")
	case "/logout":
		cs.reportAuth(cs.app.Gate.Logout(), "Signed out")
	case "/status":
		printSnapshot(cs.out, cs.app.Gate.Snapshot())
	case "/sources":
		cs.printSources()
	case "/new":
		if _, err := cs.app.Session.New(); err != nil {
			fmt.Fprintln(cs.out, styles.RenderError(err.Error()))
		} else {
			fmt.Fprintln(cs.out, styles.RenderInfo("Started a new conversation."))
		}
	case "/resume":
		if len(args) != 1 {
			fmt.Fprintln(cs.out, "Usage: /resume ID")
			break
		}
		if err := cs.resume(args[0]); err != nil {
			fmt.Fprintln(cs.out, styles.RenderError(err.Error()))
		}
	default:
		fmt.Fprintf(cs.out, "Unknown command %s. Type /help for commands.\n", name)
	}
	return false
}

func (cs *chatSession) reportAuth(err error, success string) {
	if err != nil {
		fmt.Fprintln(cs.out, styles.RenderError(authErrorText(err)))
		return
	}
	snap := cs.app.Gate.Snapshot()
	if name := identityName(snap); name != "" && snap.IsAuthenticated {
		success += " as " + name
	}
	fmt.Fprintln(cs.out, styles.RenderSuccess(success+"."))
}

func (cs *chatSession) resume(id string) error {
	conv, err := cs.app.Session.Resume(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cs.out, "%s %s (%d messages)\n", mutedStyle.Render("Resumed"), conv.GetTitle(), len(conv.Messages))
	return nil
}

func (cs *chatSession) printSources() {
	refs := cs.app.Session.Conversation().References()
	if len(refs) == 0 {
		fmt.Fprintln(cs.out, mutedStyle.Render("No sources cited yet."))
		return
	}
	for i, ref := range refs {
		fmt.Fprintf(cs.out, "%s %s\n", citationStyle.Render(fmt.Sprintf("[%d]", i+1)), ref.Label())
		if ref.Snippet != "" {
			fmt.Fprintf(cs.out, "    %s\n", mutedStyle.Render(ref.Snippet))
		}
	}
	fmt.Fprintf(cs.out, "%s\n", mutedStyle.Render("Conversation "+storage.ShortID(cs.app.Session.ConversationID())))
}
