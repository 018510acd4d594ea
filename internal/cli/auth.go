// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/ui/styles"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

const (
	opRegister = "register"
	opLogin    = "login"
)

// runAuth performs a register or login against the app's gate.
func runAuth(ctx context.Context, app *App, op, name string) error {
	hint := credential.Hint{Name: name}
	if op == opRegister {
		return app.Gate.Register(ctx, hint)
	}
	return app.Gate.Login(ctx, hint)
}

// authErrorText turns a gate error into a one-line explanation.
func authErrorText(err error) string {
	switch {
	case errors.Is(err, usage.ErrCapabilityUnavailable):
		return "Sign-in is not available: no usable credential provider on this device."
	case errors.Is(err, usage.ErrMustRegister):
		return "No credential is registered on this device. Register first."
	case errors.Is(err, usage.ErrCancelled):
		return "Cancelled."
	case errors.Is(err, usage.ErrAuthInProgress):
		return "Another sign-in is still in progress."
	case errors.Is(err, credential.ErrVerificationFailed):
		return "Verification failed. Check your PIN or code."
	default:
		return err.Error()
	}
}

// =============================================================================
// AUTH COMMAND
// =============================================================================

func newAuthCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Register, log in or log out on this device",
	}

	var name string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a credential and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = defaultUserName()
			}
			return runAuthCommand(cmd, root, opRegister, name)
		},
	}
	register.Flags().StringVar(&name, "name", "", "display name for the credential")

	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the registered credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthCommand(cmd, root, opLogin, "")
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Sign out (the free question counter is kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.openApp(newTermPrompter(cmd.ErrOrStderr()), answer.Hooks{})
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.Gate.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}

	var jsonOut bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether this device is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.openApp(newTermPrompter(cmd.ErrOrStderr()), answer.Hooks{})
			if err != nil {
				return err
			}
			defer app.Close()
			snap := app.Gate.Snapshot()
			if jsonOut {
				return NewJSONResponse("auth status", snap).Write(cmd.OutOrStdout())
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	status.Flags().BoolVar(&jsonOut, "json", false, "print the state as JSON")

	cmd.AddCommand(register, login, logout, status)
	return cmd
}

func runAuthCommand(cmd *cobra.Command, root *rootOptions, op, name string) error {
	app, err := root.openApp(newTermPrompter(cmd.ErrOrStderr()), answer.Hooks{})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := runAuth(cmd.Context(), app, op, name); err != nil {
		return errors.New(authErrorText(err))
	}

	snap := app.Gate.Snapshot()
	verb := "Signed in"
	if op == opRegister {
		verb = "Registered and signed in"
	}
	if n := identityName(snap); n != "" {
		verb += " as " + n
	}
	fmt.Fprintln(cmd.OutOrStdout(), styles.RenderSuccess(verb+"."))
	return nil
}
