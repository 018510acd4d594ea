// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

// StatusData is the --json payload of the status command.
type StatusData struct {
	ServiceURL    string         `json:"service_url"`
	ServiceOK     bool           `json:"service_ok"`
	ServiceError  string         `json:"service_error,omitempty"`
	Usage         usage.Snapshot `json:"usage"`
	Conversations int            `json:"conversations"`
	DataDir       string         `json:"data_dir"`
	ConfigPath    string         `json:"config_path"`
}

func newStatusCommand(root *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show answer service health and usage state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.openApp(newTermPrompter(cmd.ErrOrStderr()), answer.Hooks{})
			if err != nil {
				return err
			}
			defer app.Close()

			data := collectStatus(cmd.Context(), app)
			if jsonOut {
				return NewJSONResponse("status", data).Write(cmd.OutOrStdout())
			}
			printStatus(cmd, data)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	return cmd
}

func collectStatus(ctx context.Context, app *App) StatusData {
	data := StatusData{
		ServiceURL: app.Client.BaseURL(),
		Usage:      app.Gate.Snapshot(),
		DataDir:    app.DataDir,
		ConfigPath: app.ConfigPath,
	}
	if err := app.Client.Health(ctx); err != nil {
		data.ServiceError = err.Error()
	} else {
		data.ServiceOK = true
	}
	if metas, err := app.Store.List(); err == nil {
		data.Conversations = len(metas)
	}
	return data
}

func printStatus(cmd *cobra.Command, data StatusData) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render("KSA RegTech status"))
	fmt.Fprintln(w)

	service := titleStyle.Render("online")
	if !data.ServiceOK {
		service = errorStyle.Render("offline") + mutedStyle.Render(" ("+data.ServiceError+")")
	}
	fmt.Fprintf(w, "  %s %s %s\n", labelStyle.Render("Answer service:"), data.ServiceURL, service)
	printSnapshot(w, data.Usage)
	fmt.Fprintf(w, "  %s %d\n", labelStyle.Render("Saved conversations:"), data.Conversations)
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Data directory:"), data.DataDir)
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Config file:"), data.ConfigPath)
}
