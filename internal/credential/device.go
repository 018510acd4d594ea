// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultPINIterations is the PBKDF2-SHA-256 work factor for PIN keys.
	DefaultPINIterations = 600000
	// DefaultMinPINLength is the shortest accepted PIN.
	DefaultMinPINLength = 4

	saltSize = 32
	keySize  = chacha20poly1305.KeySize
)

// =============================================================================
// DEVICE BACKEND
// =============================================================================

// Device is the platform-authenticator backend. Each credential is an Ed25519
// key pair whose private half is sealed at rest under a key derived from the
// user's PIN; entering the PIN is the user-verification step.
type Device struct {
	dir      string
	prompter Prompter

	// Iterations is the PBKDF2 work factor used for new credentials.
	Iterations int
	// MinPINLength is the shortest PIN accepted at enrolment.
	MinPINLength int
}

type deviceRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	PublicKey  []byte    `json:"public_key"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Sealed     []byte    `json:"sealed_seed"`
	Iterations int       `json:"iterations"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDevice creates a device backend storing records under dir/device.
func NewDevice(dir string, prompter Prompter) *Device {
	if dir != "" {
		dir = filepath.Join(dir, KindDevice)
	}
	return &Device{
		dir:          dir,
		prompter:     prompter,
		Iterations:   DefaultPINIterations,
		MinPINLength: DefaultMinPINLength,
	}
}

// Kind returns "device".
func (d *Device) Kind() string { return KindDevice }

// Available reports whether records can be stored and a prompter is attached.
func (d *Device) Available() bool {
	return d.prompter != nil && dirUsable(d.dir)
}

// Create enrols a new key pair protected by a freshly chosen PIN.
func (d *Device) Create(ctx context.Context, hint Hint) (Handle, error) {
	if !d.Available() {
		return Handle{}, ErrUnavailable
	}

	pin, err := promptSecret(ctx, d.prompter, "Choose a device PIN")
	if err != nil {
		return Handle{}, err
	}
	if len([]rune(pin)) < d.MinPINLength {
		return Handle{}, fmt.Errorf("%w: PIN must be at least %d characters", ErrVerificationFailed, d.MinPINLength)
	}
	confirm, err := promptSecret(ctx, d.prompter, "Confirm PIN")
	if err != nil {
		return Handle{}, err
	}
	if confirm != pin {
		return Handle{}, fmt.Errorf("%w: PINs do not match", ErrVerificationFailed)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Handle{}, fmt.Errorf("generate key pair: %w", err)
	}
	seed := priv.Seed()
	defer zeroBytes(seed)
	defer zeroBytes(priv)

	rec := deviceRecord{
		ID:         uuid.NewString(),
		Name:       hint.Name,
		PublicKey:  pub,
		Salt:       make([]byte, saltSize),
		Nonce:      make([]byte, chacha20poly1305.NonceSizeX),
		Iterations: d.Iterations,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := io.ReadFull(rand.Reader, rec.Salt); err != nil {
		return Handle{}, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, rec.Nonce); err != nil {
		return Handle{}, fmt.Errorf("generate nonce: %w", err)
	}

	key := derivePINKey(pin, rec.Salt, rec.Iterations)
	defer zeroBytes(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Handle{}, fmt.Errorf("init cipher: %w", err)
	}
	// The credential ID is bound as associated data so records cannot be swapped.
	rec.Sealed = aead.Seal(nil, rec.Nonce, seed, []byte(rec.ID))

	if err := writeRecord(d.dir, rec.ID, rec); err != nil {
		return Handle{}, err
	}
	return rec.handle(), nil
}

// Assert unseals the credential with the user's PIN and proves possession by
// signing a random challenge.
func (d *Device) Assert(ctx context.Context, ref string) (Handle, error) {
	if !d.Available() {
		return Handle{}, ErrUnavailable
	}

	var rec deviceRecord
	if err := readRecord(d.dir, ref, &rec); err != nil {
		return Handle{}, err
	}

	pin, err := promptSecret(ctx, d.prompter, "Enter device PIN")
	if err != nil {
		return Handle{}, err
	}

	key := derivePINKey(pin, rec.Salt, rec.Iterations)
	defer zeroBytes(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Handle{}, fmt.Errorf("init cipher: %w", err)
	}
	seed, err := aead.Open(nil, rec.Nonce, rec.Sealed, []byte(rec.ID))
	if err != nil {
		return Handle{}, ErrVerificationFailed
	}
	defer zeroBytes(seed)
	if len(seed) != ed25519.SeedSize || len(rec.PublicKey) != ed25519.PublicKeySize {
		return Handle{}, fmt.Errorf("%w: corrupt credential record", ErrVerificationFailed)
	}

	challenge := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, challenge); err != nil {
		return Handle{}, fmt.Errorf("generate challenge: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	defer zeroBytes(priv)
	if !ed25519.Verify(ed25519.PublicKey(rec.PublicKey), challenge, ed25519.Sign(priv, challenge)) {
		return Handle{}, ErrVerificationFailed
	}

	return rec.handle(), nil
}

func (r deviceRecord) handle() Handle {
	return Handle{ID: r.ID, Kind: KindDevice, Name: r.Name, PublicKey: r.PublicKey}
}

// derivePINKey stretches a PIN into a cipher key with PBKDF2-SHA-256.
func derivePINKey(pin string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultPINIterations
	}
	return pbkdf2.Key([]byte(pin), salt, iterations, keySize, sha256.New)
}
