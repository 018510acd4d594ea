// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	apiURL     string
	verbose    bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "regtech",
		Short: "Ask questions about KSA regulations",
		Long: `regtech is a terminal client for the KSA RegTech answer service.

Answers stream in with citations into the source documents. Conversations
are kept locally. Anonymous use is limited to a number of free questions;
register a credential on this device to lift the limit.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.regtech/config.toml)")
	flags.StringVar(&opts.apiURL, "api-url", "", "answer service base URL")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newAskCommand(opts),
		newChatCommand(opts),
		newAuthCommand(opts),
		newHistoryCommand(opts),
		newStatusCommand(opts),
		newServeStubCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
