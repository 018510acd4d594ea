// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultIssuer labels TOTP accounts in authenticator apps.
const DefaultIssuer = "KSA RegTech"

// =============================================================================
// TOTP BACKEND
// =============================================================================

// TOTP is a backend for users without a usable device PIN flow: enrolment
// shares an RFC 6238 secret with an authenticator app and each assertion
// checks a fresh code.
type TOTP struct {
	dir      string
	issuer   string
	prompter Prompter

	// Now returns the validation time.
	Now func() time.Time
}

type totpRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
}

var totpValidateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// NewTOTP creates a TOTP backend storing records under dir/totp.
func NewTOTP(dir, issuer string, prompter Prompter) *TOTP {
	if dir != "" {
		dir = filepath.Join(dir, KindTOTP)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TOTP{dir: dir, issuer: issuer, prompter: prompter, Now: time.Now}
}

// Kind returns "totp".
func (t *TOTP) Kind() string { return KindTOTP }

// Available reports whether records can be stored and a prompter is attached.
func (t *TOTP) Available() bool {
	return t.prompter != nil && dirUsable(t.dir)
}

// Create generates a secret, shows it for enrolment and confirms it with a
// first code.
func (t *TOTP) Create(ctx context.Context, hint Hint) (Handle, error) {
	if !t.Available() {
		return Handle{}, ErrUnavailable
	}

	account := hint.Name
	if account == "" {
		account = "regtech"
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: account,
	})
	if err != nil {
		return Handle{}, fmt.Errorf("generate totp secret: %w", err)
	}

	msg := fmt.Sprintf("Add this account to your authenticator app:\n%s\nSecret: %s", key.URL(), key.Secret())
	if err := t.prompter.Show(ctx, msg); err != nil {
		return Handle{}, err
	}

	if err := t.verify(ctx, key.Secret()); err != nil {
		return Handle{}, err
	}

	rec := totpRecord{
		ID:        uuid.NewString(),
		Name:      hint.Name,
		Secret:    key.Secret(),
		CreatedAt: time.Now().UTC(),
	}
	if err := writeRecord(t.dir, rec.ID, rec); err != nil {
		return Handle{}, err
	}
	return Handle{ID: rec.ID, Kind: KindTOTP, Name: rec.Name}, nil
}

// Assert validates a fresh code for the enrolled secret.
func (t *TOTP) Assert(ctx context.Context, ref string) (Handle, error) {
	if !t.Available() {
		return Handle{}, ErrUnavailable
	}

	var rec totpRecord
	if err := readRecord(t.dir, ref, &rec); err != nil {
		return Handle{}, err
	}
	if err := t.verify(ctx, rec.Secret); err != nil {
		return Handle{}, err
	}
	return Handle{ID: rec.ID, Kind: KindTOTP, Name: rec.Name}, nil
}

func (t *TOTP) verify(ctx context.Context, secret string) error {
	code, err := promptSecret(ctx, t.prompter, "Enter the 6-digit code")
	if err != nil {
		return err
	}
	ok, err := totp.ValidateCustom(code, secret, t.Now().UTC(), totpValidateOpts)
	if err != nil || !ok {
		return ErrVerificationFailed
	}
	return nil
}
