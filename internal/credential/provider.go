// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider kinds.
const (
	KindDevice = "device"
	KindTOTP   = "totp"
	KindNone   = "none"
	KindStub   = "stub"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnavailable indicates the backend cannot be used on this machine.
	ErrUnavailable = errors.New("credential capability unavailable")
	// ErrCancelled indicates the user abandoned the interaction.
	ErrCancelled = errors.New("credential prompt cancelled")
	// ErrVerificationFailed indicates a wrong PIN, code or signature.
	ErrVerificationFailed = errors.New("credential verification failed")
	// ErrUnknownCredential indicates no credential exists for the reference.
	ErrUnknownCredential = errors.New("unknown credential")
)

// =============================================================================
// TYPES
// =============================================================================

// Hint carries optional enrolment details.
type Hint struct {
	Name string // Display name bound to the credential
}

// Handle identifies a credential. Callers persist ID and treat the rest as
// opaque.
type Handle struct {
	ID        string
	Kind      string
	Name      string
	PublicKey []byte
}

// Provider creates and asserts credentials.
type Provider interface {
	Kind() string
	Available() bool
	Create(ctx context.Context, hint Hint) (Handle, error)
	Assert(ctx context.Context, ref string) (Handle, error)
}

// Prompter performs the user interaction a backend needs.
// Secret returns ErrCancelled when the user backs out.
type Prompter interface {
	Secret(ctx context.Context, label string) (string, error)
	Show(ctx context.Context, text string) error
}

// =============================================================================
// FACTORY
// =============================================================================

// Options configures New.
type Options struct {
	Dir      string // Directory for credential records
	Issuer   string // Issuer label for TOTP enrolment
	Prompter Prompter
}

// New returns the backend named by kind.
func New(kind string, opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindDevice, "":
		return NewDevice(opts.Dir, opts.Prompter), nil
	case KindTOTP:
		return NewTOTP(opts.Dir, opts.Issuer, opts.Prompter), nil
	case KindNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown credential provider %q (want device, totp or none)", kind)
	}
}

// Kinds lists the selectable backend names.
func Kinds() []string {
	return []string{KindDevice, KindTOTP, KindNone}
}

// promptSecret wraps Prompter.Secret with context and cancellation handling.
func promptSecret(ctx context.Context, p Prompter, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	secret, err := p.Secret(ctx, label)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(secret), nil
}

// =============================================================================
// UNAVAILABLE BACKEND
// =============================================================================

// None is a provider that is never available.
type None struct{}

func (None) Kind() string    { return KindNone }
func (None) Available() bool { return false }

func (None) Create(context.Context, Hint) (Handle, error) { return Handle{}, ErrUnavailable }

func (None) Assert(context.Context, string) (Handle, error) { return Handle{}, ErrUnavailable }
