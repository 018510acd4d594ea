// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/logging"
	"github.com/ksaregtech/regtech-tui/internal/storage"
)

// DefaultQuota is the number of anonymous prompts before sign-in is required.
const DefaultQuota = 10

// Durable keys owned by the gate.
const (
	KeyRemainingPrompts = "usage.remaining_prompts"
	KeyIdentity         = "auth.identity"
	KeyCredentialRef    = "auth.credential_ref"
	KeySigningKey       = "auth.signing_key"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrCapabilityUnavailable indicates no usable credential provider.
	ErrCapabilityUnavailable = errors.New("credential capability unavailable on this device")
	// ErrCancelled indicates the user abandoned the credential prompt.
	ErrCancelled = errors.New("authentication cancelled")
	// ErrProviderFailed wraps any other provider failure.
	ErrProviderFailed = errors.New("credential provider failed")
	// ErrMustRegister indicates login was attempted with no credential on this device.
	ErrMustRegister = errors.New("no credential registered on this device, register first")
	// ErrAuthInProgress indicates another register or login is still pending.
	ErrAuthInProgress = errors.New("authentication already in progress")
)

// =============================================================================
// GATE
// =============================================================================

// Store is the durable key-value store the gate persists to.
// Get must return storage.ErrKeyNotFound for missing keys.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Options configures a Gate.
type Options struct {
	Quota       int           // Anonymous prompts; DefaultQuota when <= 0
	IdentityTTL time.Duration // Zero keeps identities until logout
	Logger      *logging.Logger
	Now         func() time.Time
}

// Gate decides whether a send may proceed and owns the counter and identity.
// All methods are safe for concurrent use.
type Gate struct {
	store    Store
	provider credential.Provider
	quota    int
	ttl      time.Duration
	now      func() time.Time
	log      *logging.Logger

	mu          sync.Mutex
	remaining   int
	identity    *Identity
	authPending bool
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// NewGate creates a gate and derives its initial state from store.
// A nil provider behaves like an unavailable one.
func NewGate(store Store, provider credential.Provider, opts Options) (*Gate, error) {
	if store == nil {
		return nil, errors.New("usage gate requires a store")
	}
	if opts.Quota <= 0 {
		opts.Quota = DefaultQuota
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	g := &Gate{
		store:       store,
		provider:    provider,
		quota:       opts.Quota,
		ttl:         opts.IdentityTTL,
		now:         opts.Now,
		log:         opts.Logger.With("usage"),
		subscribers: make(map[int]func(Snapshot)),
	}
	if err := g.load(); err != nil {
		return nil, err
	}
	return g, nil
}

// load reads the counter and identity from the store.
func (g *Gate) load() error {
	g.remaining = g.quota
	raw, err := g.store.Get(KeyRemainingPrompts)
	switch {
	case err == nil:
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			g.log.Warn("ignoring unreadable prompt counter %q", raw)
		} else {
			g.remaining = clamp(n, 0, g.quota)
		}
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return fmt.Errorf("load prompt counter: %w", err)
	}

	token, err := g.store.Get(KeyIdentity)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	id, err := g.verifyIdentity(token)
	if err != nil {
		// An unverifiable identity counts as signed out.
		g.log.Warn("discarding persisted identity: %v", err)
		_ = g.store.Delete(KeyIdentity)
		return nil
	}
	g.identity = &id
	g.log.Info("restored identity for credential %s", id.CredentialID)
	return nil
}

func (g *Gate) verifyIdentity(token string) (Identity, error) {
	key, err := signingKey(g.store, false)
	if err != nil {
		return Identity{}, fmt.Errorf("signing key: %w", err)
	}
	id, err := parseIdentity(token, key, g.now)
	if err != nil {
		return Identity{}, err
	}
	ref, err := g.store.Get(KeyCredentialRef)
	if err != nil || ref != id.CredentialID {
		return Identity{}, errors.New("identity does not match the registered credential")
	}
	return id, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// CanSend reports whether a send may be dispatched now.
func (g *Gate) CanSend() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identity != nil || g.remaining > 0
}

// State returns the current state-machine position.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

func (g *Gate) stateLocked() State {
	switch {
	case g.identity != nil:
		return StateAuthenticated
	case g.remaining > 0:
		return StateAnonymousHasQuota
	default:
		return StateAnonymousExhausted
	}
}

// Snapshot returns a copy of the gate's state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Gate) snapshotLocked() Snapshot {
	s := Snapshot{
		State:            g.stateLocked(),
		RemainingPrompts: g.remaining,
		Quota:            g.quota,
		IsAuthenticated:  g.identity != nil,
	}
	if g.identity != nil {
		id := *g.identity
		s.Identity = &id
	}
	if g.provider != nil {
		s.Provider = g.provider.Kind()
		s.ProviderReady = g.provider.Available()
	} else {
		s.Provider = credential.KindNone
	}
	return s
}

// RemainingPrompts returns the anonymous prompt counter.
func (g *Gate) RemainingPrompts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

// IsAuthenticated reports whether an identity is present.
func (g *Gate) IsAuthenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identity != nil
}

// Identity returns a copy of the current identity, or nil.
func (g *Gate) Identity() *Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.identity == nil {
		return nil
	}
	id := *g.identity
	return &id
}

// Quota returns the full anonymous quota.
func (g *Gate) Quota() int { return g.quota }

// HasCredential reports whether a credential reference is stored.
func (g *Gate) HasCredential() bool {
	_, err := g.store.Get(KeyCredentialRef)
	return err == nil
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes the subscription. fn runs on the mutating
// goroutine and must not call back into the gate synchronously.
func (g *Gate) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextSubID
	g.nextSubID++
	g.subscribers[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.subscribers, id)
		g.mu.Unlock()
	}
}

// notifyLocked collects subscribers and the snapshot; call the result after
// releasing the lock.
func (g *Gate) notifyLocked() func() {
	snap := g.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(g.subscribers))
	for _, fn := range g.subscribers {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}

// =============================================================================
// COUNTER
// =============================================================================

// IncrementPrompt records one anonymous user send. The counter never drops
// below zero and is left alone while authenticated.
func (g *Gate) IncrementPrompt() error {
	g.mu.Lock()
	if g.identity != nil {
		g.mu.Unlock()
		return nil
	}
	if g.remaining > 0 {
		g.remaining--
	}
	err := g.persistCounterLocked()
	notify := g.notifyLocked()
	remaining := g.remaining
	g.mu.Unlock()

	g.log.Debug("prompt used, %d remaining", remaining)
	notify()
	return err
}

// ResetPrompts restores the full quota.
func (g *Gate) ResetPrompts() error {
	g.mu.Lock()
	err := g.resetLocked()
	notify := g.notifyLocked()
	g.mu.Unlock()

	notify()
	return err
}

func (g *Gate) resetLocked() error {
	g.remaining = g.quota
	return g.persistCounterLocked()
}

func (g *Gate) persistCounterLocked() error {
	if err := g.store.Set(KeyRemainingPrompts, strconv.Itoa(g.remaining)); err != nil {
		return fmt.Errorf("persist prompt counter: %w", err)
	}
	return nil
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Register enrols a new credential and signs in with it.
func (g *Gate) Register(ctx context.Context, hint credential.Hint) error {
	if err := g.beginAuth(); err != nil {
		return err
	}
	defer g.endAuth()

	g.log.Info("registering %s credential", g.provider.Kind())
	handle, err := g.provider.Create(ctx, hint)
	if err != nil {
		return g.providerError("register", err)
	}

	name := hint.Name
	if name == "" {
		name = handle.Name
	}
	return g.authenticate(handle, name)
}

// Login asserts the credential registered on this device.
func (g *Gate) Login(ctx context.Context, hint credential.Hint) error {
	if err := g.beginAuth(); err != nil {
		return err
	}
	defer g.endAuth()

	ref, err := g.store.Get(KeyCredentialRef)
	if errors.Is(err, storage.ErrKeyNotFound) || (err == nil && ref == "") {
		return ErrMustRegister
	}
	if err != nil {
		return fmt.Errorf("load credential reference: %w", err)
	}

	g.log.Info("asserting %s credential %s", g.provider.Kind(), ref)
	handle, err := g.provider.Assert(ctx, ref)
	if err != nil {
		return g.providerError("login", err)
	}

	name := hint.Name
	if name == "" {
		name = handle.Name
	}
	return g.authenticate(handle, name)
}

// Logout removes the identity and credential reference. The prompt counter
// is kept as it was.
func (g *Gate) Logout() error {
	g.mu.Lock()
	var errs []error
	for _, key := range []string{KeyIdentity, KeyCredentialRef} {
		if err := g.store.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	g.identity = nil
	notify := g.notifyLocked()
	g.mu.Unlock()

	g.log.Info("signed out")
	notify()
	if len(errs) > 0 {
		return fmt.Errorf("logout: %w", errors.Join(errs...))
	}
	return nil
}

func (g *Gate) beginAuth() error {
	if g.provider == nil || !g.provider.Available() {
		return ErrCapabilityUnavailable
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.authPending {
		return ErrAuthInProgress
	}
	g.authPending = true
	return nil
}

func (g *Gate) endAuth() {
	g.mu.Lock()
	g.authPending = false
	g.mu.Unlock()
}

// providerError maps a provider failure onto the gate's error taxonomy.
func (g *Gate) providerError(op string, err error) error {
	switch {
	case errors.Is(err, credential.ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		g.log.Info("%s cancelled", op)
		return ErrCancelled
	case errors.Is(err, credential.ErrUnavailable):
		return ErrCapabilityUnavailable
	case errors.Is(err, credential.ErrUnknownCredential):
		g.log.Warn("%s: stored credential is gone: %v", op, err)
		return fmt.Errorf("%w: %w", ErrMustRegister, err)
	default:
		g.log.Error("%s failed: %v", op, err)
		return fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
}

// authenticate persists the credential and identity, then resets the quota.
func (g *Gate) authenticate(handle credential.Handle, name string) error {
	if handle.ID == "" {
		return fmt.Errorf("%w: empty credential handle", ErrProviderFailed)
	}

	now := g.now()
	id := Identity{
		Name:            name,
		CredentialID:    handle.ID,
		Provider:        g.provider.Kind(),
		AuthenticatedAt: now.Truncate(time.Second),
	}
	if g.ttl > 0 {
		id.ExpiresAt = now.Add(g.ttl).Truncate(time.Second)
	}

	key, err := signingKey(g.store, true)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	token, err := signIdentity(id, key)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if err := g.store.Set(KeyCredentialRef, handle.ID); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("persist credential reference: %w", err)
	}
	if err := g.store.Set(KeyIdentity, token); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("persist identity: %w", err)
	}
	g.identity = &id
	resetErr := g.resetLocked()
	notify := g.notifyLocked()
	g.mu.Unlock()

	g.log.Info("authenticated with credential %s", handle.ID)
	notify()
	return resetErr
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
