// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/session"
)

// AskData is the --json payload of the ask command.
type AskData struct {
	ConversationID   string            `json:"conversation_id"`
	Answer           string            `json:"answer"`
	References       []model.Reference `json:"references"`
	Authenticated    bool              `json:"authenticated"`
	RemainingPrompts int               `json:"remaining_prompts"`
}

type askOptions struct {
	json   bool
	raw    bool
	resume string
}

func newAskCommand(root *rootOptions) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask one question and stream the answer",
		Example: `  regtech ask "What are the breach notification rules under the PDPL?"
  regtech ask --json "How long must AML records be kept?"
  regtech ask --resume 3f2a "And for branches abroad?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, root, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the answer as JSON")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "stream plain text even on a terminal")
	cmd.Flags().StringVar(&opts.resume, "resume", "", "continue a saved conversation (ID or prefix)")
	return cmd
}

func runAsk(cmd *cobra.Command, root *rootOptions, opts *askOptions, question string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	// Tokens are printed as they arrive unless the answer is rendered as
	// Markdown at the end or returned as JSON.
	streaming := false
	printed := 0
	hooks := answer.Hooks{
		Partial: func(_ string, content string) {
			if streaming && len(content) > printed {
				fmt.Fprint(out, content[printed:])
				printed = len(content)
			}
		},
	}

	app, err := root.openApp(newTermPrompter(errOut), hooks)
	if err != nil {
		return err
	}
	defer app.Close()

	useMarkdown := !opts.json && !opts.raw && app.Config.UI.RenderMarkdown && isTerminalWriter(out)
	streaming = !opts.json && !useMarkdown

	if opts.resume != "" {
		if _, err := app.Session.Resume(opts.resume); err != nil {
			return err
		}
	}

	msg, err := app.Session.Submit(cmd.Context(), question)
	snap := app.Gate.Snapshot()
	if err != nil {
		if opts.json {
			NewJSONErrorResponse("ask", err).Write(out)
		} else if errors.Is(err, session.ErrQuotaExhausted) {
			printGateNotice(errOut, snap)
		} else if printed > 0 {
			fmt.Fprintln(out)
		}
		return err
	}

	if opts.json {
		return NewJSONResponse("ask", AskData{
			ConversationID:   app.Session.ConversationID(),
			Answer:           msg.Content,
			References:       msg.References,
			Authenticated:    snap.IsAuthenticated,
			RemainingPrompts: snap.RemainingPrompts,
		}).Write(out)
	}

	if useMarkdown {
		fmt.Fprint(out, renderMarkdown(msg.Content, GetTerminalWidth()-2))
	} else {
		fmt.Fprintln(out)
	}
	printReferences(out, msg.References)

	if !snap.IsAuthenticated {
		fmt.Fprintln(errOut, mutedStyle.Render(fmt.Sprintf("%d of %d free questions left.", snap.RemainingPrompts, snap.Quota)))
	}
	return nil
}
