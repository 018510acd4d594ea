// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ksaregtech/regtech-tui/internal/logging"
	"github.com/ksaregtech/regtech-tui/internal/server"
)

type serveOptions struct {
	addr       string
	corpusPath string
	delay      time.Duration
	topK       int
}

func newServeStubCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve-stub",
		Short: "Run a local stub answer service",
		Long: `Run a local answer service that speaks the same streaming protocol as the
real one. Answers are composed from a small document corpus (a built-in
sample, or a JSON file of {"id","source","page","text"} records).`,
		Example: `  regtech serve-stub
  regtech serve-stub --addr :9000 --corpus docs.json --delay 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeStub(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&opts.corpusPath, "corpus", "", "JSON corpus file (default: built-in sample)")
	cmd.Flags().DurationVar(&opts.delay, "delay", server.DefaultTokenDelay, "pause between streamed words")
	cmd.Flags().IntVar(&opts.topK, "top-k", server.DefaultTopK, "references per answer")
	return cmd
}

func runServeStub(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	level := logging.LevelInfo
	if root.verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(cmd.ErrOrStderr(), level)

	corpus := server.DefaultCorpus()
	if opts.corpusPath != "" {
		c, err := server.LoadCorpus(opts.corpusPath)
		if err != nil {
			return err
		}
		corpus = c
	}

	srv := server.New(server.Options{
		Corpus: corpus,
		Delay:  opts.delay,
		TopK:   opts.topK,
		Logger: logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(opts.addr)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Stub answer service listening on %s (%d documents)\n", opts.addr, corpus.Len())

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	stats := srv.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Served %d requests, %d tokens\n", stats.Requests, stats.Tokens)
	return nil
}
