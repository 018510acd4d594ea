// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/ksaregtech/regtech-tui/internal/credential"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// isTerminalWriter reports whether w is a terminal file.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// TERMINAL WIDTH DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width we'll use for wrapping
	MinTerminalWidth = 40
)

// GetTerminalWidth returns the current terminal width.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// =============================================================================
// CREDENTIAL PROMPTER
// =============================================================================

// termPrompter asks for PINs and codes on the controlling terminal. Input
// is not echoed when stdin is a terminal; otherwise one line is read.
type termPrompter struct {
	in  *os.File
	out io.Writer
}

func newTermPrompter(out io.Writer) *termPrompter {
	return &termPrompter{in: os.Stdin, out: out}
}

type readResult struct {
	value string
	err   error
}

// Secret implements credential.Prompter.
func (p *termPrompter) Secret(ctx context.Context, label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)

	done := make(chan readResult, 1)
	go func() {
		done <- p.read()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", credential.ErrCancelled
	case r := <-done:
		fmt.Fprintln(p.out)
		if r.err == io.EOF {
			return "", credential.ErrCancelled
		}
		if r.err != nil {
			return "", r.err
		}
		return r.value, nil
	}
}

func (p *termPrompter) read() readResult {
	fd := int(p.in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return readResult{value: string(b), err: err}
	}
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return readResult{value: strings.TrimRight(line, "\r\n"), err: err}
}

// Show implements credential.Prompter.
func (p *termPrompter) Show(ctx context.Context, text string) error {
	if ctx.Err() != nil {
		return credential.ErrCancelled
	}
	fmt.Fprintln(p.out, text)
	return nil
}
