// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package usage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/storage"
)

// memStore is an in-memory Store.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: make(map[string]string)} }

func (m *memStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newTestGate(t *testing.T, store Store, prov credential.Provider) *Gate {
	t.Helper()
	g, err := NewGate(store, prov, Options{Quota: 10})
	require.NoError(t, err)
	return g
}

func exhaust(t *testing.T, g *Gate, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, g.IncrementPrompt())
	}
}

// =============================================================================
// COUNTER
// =============================================================================

func TestNewGate_FreshStoreStartsWithFullQuota(t *testing.T) {
	g := newTestGate(t, newMemStore(), &credential.Stub{})

	assert.Equal(t, 10, g.RemainingPrompts())
	assert.False(t, g.IsAuthenticated())
	assert.True(t, g.CanSend())
	assert.Equal(t, StateAnonymousHasQuota, g.State())
}

func TestNewGate_DefaultQuota(t *testing.T) {
	g, err := NewGate(newMemStore(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultQuota, g.Quota())
}

func TestNewGate_RequiresStore(t *testing.T) {
	_, err := NewGate(nil, nil, Options{})
	assert.Error(t, err)
}

func TestIncrementPrompt_FloorsAtZero(t *testing.T) {
	store := newMemStore()
	g := newTestGate(t, store, &credential.Stub{})

	exhaust(t, g, 10)
	assert.Equal(t, 0, g.RemainingPrompts())
	assert.False(t, g.CanSend())
	assert.Equal(t, StateAnonymousExhausted, g.State())

	exhaust(t, g, 5)
	assert.Equal(t, 0, g.RemainingPrompts())

	v, _ := store.Get(KeyRemainingPrompts)
	assert.Equal(t, "0", v)
}

func TestIncrementPrompt_NoOpWhileAuthenticated(t *testing.T) {
	g := newTestGate(t, newMemStore(), &credential.Stub{})
	require.NoError(t, g.Register(context.Background(), credential.Hint{}))

	exhaust(t, g, 25)
	assert.Equal(t, 10, g.RemainingPrompts())
	assert.True(t, g.CanSend())
}

func TestCounterPersistsAcrossGates(t *testing.T) {
	store := newMemStore()
	g := newTestGate(t, store, nil)
	exhaust(t, g, 3)

	g2 := newTestGate(t, store, nil)
	assert.Equal(t, 7, g2.RemainingPrompts())
}

func TestLoad_ClampsAndIgnoresGarbage(t *testing.T) {
	store := newMemStore()
	store.Set(KeyRemainingPrompts, "42")
	assert.Equal(t, 10, newTestGate(t, store, nil).RemainingPrompts())

	store.Set(KeyRemainingPrompts, "-3")
	assert.Equal(t, 0, newTestGate(t, store, nil).RemainingPrompts())

	store.Set(KeyRemainingPrompts, "many")
	assert.Equal(t, 10, newTestGate(t, store, nil).RemainingPrompts())
}

func TestCanSendTruthTable(t *testing.T) {
	for _, tc := range []struct {
		auth      bool
		remaining int
		want      bool
	}{
		{false, 0, false},
		{false, 1, true},
		{true, 0, true},
		{true, 5, true},
	} {
		s := Snapshot{IsAuthenticated: tc.auth, RemainingPrompts: tc.remaining}
		assert.Equal(t, tc.want, s.CanSend(), "auth=%v remaining=%d", tc.auth, tc.remaining)
	}
}

func TestResetPrompts(t *testing.T) {
	g := newTestGate(t, newMemStore(), nil)
	exhaust(t, g, 10)

	require.NoError(t, g.ResetPrompts())
	assert.Equal(t, 10, g.RemainingPrompts())
	assert.Equal(t, StateAnonymousHasQuota, g.State())
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestRegister_ResetsQuotaAndAuthenticates(t *testing.T) {
	store := newMemStore()
	g := newTestGate(t, store, &credential.Stub{})
	exhaust(t, g, 10)

	require.NoError(t, g.Register(context.Background(), credential.Hint{Name: "Faisal"}))

	assert.True(t, g.IsAuthenticated())
	assert.Equal(t, 10, g.RemainingPrompts())
	assert.Equal(t, StateAuthenticated, g.State())
	id := g.Identity()
	require.NotNil(t, id)
	assert.Equal(t, "Faisal", id.Name)
	assert.Equal(t, "stub-1", id.CredentialID)
	assert.Equal(t, credential.KindStub, id.Provider)

	ref, err := store.Get(KeyCredentialRef)
	require.NoError(t, err)
	assert.Equal(t, "stub-1", ref)
	_, err = store.Get(KeyIdentity)
	assert.NoError(t, err)
}

func TestLogin_ResetsQuotaRegardlessOfPriorValue(t *testing.T) {
	store := newMemStore()
	prov := &credential.Stub{}
	g := newTestGate(t, store, prov)
	require.NoError(t, g.Register(context.Background(), credential.Hint{}))
	require.NoError(t, g.Logout())
	// Logout clears the reference; put it back to model a returning user.
	require.NoError(t, store.Set(KeyCredentialRef, "stub-1"))

	g = newTestGate(t, store, prov)
	exhaust(t, g, 4)
	require.NoError(t, g.Login(context.Background(), credential.Hint{}))

	assert.True(t, g.IsAuthenticated())
	assert.Equal(t, 10, g.RemainingPrompts())
	_, asserts := prov.Calls()
	assert.Equal(t, 1, asserts)
}

func TestLogin_BeforeRegisterMustRegister(t *testing.T) {
	prov := &credential.Stub{}
	g := newTestGate(t, newMemStore(), prov)

	err := g.Login(context.Background(), credential.Hint{})

	assert.ErrorIs(t, err, ErrMustRegister)
	assert.False(t, g.IsAuthenticated())
	_, asserts := prov.Calls()
	assert.Zero(t, asserts, "provider must not be asked without a credential")
}

func TestLogin_CapabilityCheckedFirst(t *testing.T) {
	g := newTestGate(t, newMemStore(), &credential.Stub{Unavailable: true})

	err := g.Login(context.Background(), credential.Hint{})
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
}

func TestRegister_ProviderFailuresLeaveStateUnchanged(t *testing.T) {
	boom := errors.New("authenticator exploded")
	for _, tc := range []struct {
		name string
		prov credential.Provider
		want error
	}{
		{"nil provider", nil, ErrCapabilityUnavailable},
		{"unavailable", &credential.Stub{Unavailable: true}, ErrCapabilityUnavailable},
		{"none backend", credential.None{}, ErrCapabilityUnavailable},
		{"cancelled", &credential.Stub{CreateErr: credential.ErrCancelled}, ErrCancelled},
		{"provider error", &credential.Stub{CreateErr: boom}, ErrProviderFailed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			g := newTestGate(t, store, tc.prov)
			exhaust(t, g, 2)

			err := g.Register(context.Background(), credential.Hint{})

			assert.ErrorIs(t, err, tc.want)
			assert.False(t, g.IsAuthenticated())
			assert.Equal(t, 8, g.RemainingPrompts())
			_, refErr := store.Get(KeyCredentialRef)
			assert.ErrorIs(t, refErr, storage.ErrKeyNotFound)
		})
	}
}

func TestRegister_ProviderErrorIsWrapped(t *testing.T) {
	boom := errors.New("authenticator exploded")
	g := newTestGate(t, newMemStore(), &credential.Stub{CreateErr: boom})

	err := g.Register(context.Background(), credential.Hint{})
	assert.ErrorIs(t, err, boom)
}

func TestRegister_PendingEndsWithContext(t *testing.T) {
	prov := &credential.Stub{Block: true}
	g := newTestGate(t, newMemStore(), prov)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- g.Register(ctx, credential.Hint{}) }()

	require.Eventually(t, func() bool {
		creates, _ := prov.Calls()
		return creates == 1
	}, time.Second, 5*time.Millisecond)

	// A second flow is refused while the first is pending.
	assert.ErrorIs(t, g.Login(context.Background(), credential.Hint{}), ErrAuthInProgress)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("register did not return after cancel")
	}
	assert.False(t, g.IsAuthenticated())
}

func TestLogout_KeepsCounter(t *testing.T) {
	store := newMemStore()
	g := newTestGate(t, store, &credential.Stub{})
	exhaust(t, g, 6)
	require.NoError(t, g.Register(context.Background(), credential.Hint{}))

	require.NoError(t, g.Logout())

	assert.False(t, g.IsAuthenticated())
	assert.Equal(t, 10, g.RemainingPrompts())
	assert.Equal(t, StateAnonymousHasQuota, g.State())
	_, err := store.Get(KeyIdentity)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	_, err = store.Get(KeyCredentialRef)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestLogout_DoesNotRegrantQuota(t *testing.T) {
	store := newMemStore()
	g := newTestGate(t, store, &credential.Stub{})
	require.NoError(t, g.Register(context.Background(), credential.Hint{}))
	// Simulate a counter that was lower when the identity was restored.
	require.NoError(t, store.Set(KeyRemainingPrompts, "2"))
	g = newTestGate(t, store, &credential.Stub{})
	require.True(t, g.IsAuthenticated())

	require.NoError(t, g.Logout())
	assert.Equal(t, 2, g.RemainingPrompts())
}

// =============================================================================
// PERSISTED IDENTITY
// =============================================================================

func TestIdentityRestoredOnLoad(t *testing.T) {
	store := newMemStore()
	g := newTestGate(t, store, &credential.Stub{})
	require.NoError(t, g.Register(context.Background(), credential.Hint{Name: "Reem"}))

	g2 := newTestGate(t, store, &credential.Stub{})
	assert.True(t, g2.IsAuthenticated())
	assert.Equal(t, "Reem", g2.Identity().Name)
}

func TestTamperedIdentityTreatedAsAnonymous(t *testing.T) {
	store := newMemStore()
	g := newTestGate(t, store, &credential.Stub{})
	require.NoError(t, g.Register(context.Background(), credential.Hint{}))

	forged, err := signIdentity(Identity{
		CredentialID:    "stub-1",
		Provider:        credential.KindStub,
		AuthenticatedAt: time.Now().Truncate(time.Second),
	}, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	store.Set(KeyIdentity, forged)

	g2 := newTestGate(t, store, &credential.Stub{})
	assert.False(t, g2.IsAuthenticated())
	_, err = store.Get(KeyIdentity)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound, "bad identity should be discarded")
}

func TestIdentityForDifferentCredentialRejected(t *testing.T) {
	store := newMemStore()
	g := newTestGate(t, store, &credential.Stub{})
	require.NoError(t, g.Register(context.Background(), credential.Hint{}))
	store.Set(KeyCredentialRef, "someone-else")

	assert.False(t, newTestGate(t, store, nil).IsAuthenticated())
}

func TestExpiredIdentityTreatedAsAnonymous(t *testing.T) {
	store := newMemStore()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	opts := Options{Quota: 10, IdentityTTL: time.Hour, Now: func() time.Time { return base }}

	g, err := NewGate(store, &credential.Stub{}, opts)
	require.NoError(t, err)
	require.NoError(t, g.Register(context.Background(), credential.Hint{}))

	opts.Now = func() time.Time { return base.Add(30 * time.Minute) }
	g, err = NewGate(store, &credential.Stub{}, opts)
	require.NoError(t, err)
	assert.True(t, g.IsAuthenticated())

	opts.Now = func() time.Time { return base.Add(2 * time.Hour) }
	g, err = NewGate(store, &credential.Stub{}, opts)
	require.NoError(t, err)
	assert.False(t, g.IsAuthenticated())
}

// =============================================================================
// SUBSCRIPTIONS AND INTEGRATION
// =============================================================================

func TestSubscribe(t *testing.T) {
	g := newTestGate(t, newMemStore(), &credential.Stub{})

	var got []Snapshot
	unsubscribe := g.Subscribe(func(s Snapshot) { got = append(got, s) })

	require.NoError(t, g.IncrementPrompt())
	require.NoError(t, g.Register(context.Background(), credential.Hint{}))
	unsubscribe()
	require.NoError(t, g.Logout())

	require.Len(t, got, 2)
	assert.Equal(t, 9, got[0].RemainingPrompts)
	assert.Equal(t, StateAuthenticated, got[1].State)
	assert.Equal(t, credential.KindStub, got[1].Provider)
}

func TestQuotaScenarioWithSQLiteStore(t *testing.T) {
	kv, err := storage.OpenKV(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer kv.Close()

	g := newTestGate(t, kv, &credential.Stub{})
	for i := 0; i < 10; i++ {
		require.True(t, g.CanSend(), "send %d", i+1)
		require.NoError(t, g.IncrementPrompt())
	}
	assert.Equal(t, 0, g.RemainingPrompts())
	assert.False(t, g.CanSend())

	require.NoError(t, g.Register(context.Background(), credential.Hint{}))
	g2 := newTestGate(t, kv, &credential.Stub{})
	assert.True(t, g2.IsAuthenticated())
	assert.Equal(t, 10, g2.RemainingPrompts())
}

func TestIdentityDisplayName(t *testing.T) {
	assert.Equal(t, "Noura", Identity{Name: "Noura"}.DisplayName())
	assert.Equal(t, "credential 12345678", Identity{CredentialID: "1234567890"}.DisplayName())
}
