// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/credential"
	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/storage"
	"github.com/ksaregtech/regtech-tui/internal/usage"
)

const okStream = "data: {\"type\":\"token\",\"content\":\"Lo\"}\n" +
	"data: {\"type\":\"token\",\"content\":\"Ra\"}\n" +
	"data: {\"type\":\"done\",\"references\":[]}\n"

// answerServer counts requests and replies with status/body.
type answerServer struct {
	*httptest.Server
	requests atomic.Int32
	status   atomic.Int32
	release  chan struct{}
}

func newAnswerServer(t *testing.T) *answerServer {
	t.Helper()
	s := &answerServer{}
	s.status.Store(http.StatusOK)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if s.release != nil {
			<-s.release
		}
		status := int(s.status.Load())
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, okStream)
	}))
	t.Cleanup(s.Close)
	return s
}

type fixture struct {
	sess   *Session
	gate   *usage.Gate
	server *answerServer
	store  *storage.ConversationStore
	prov   *credential.Stub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	kv, err := storage.OpenKV(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	prov := &credential.Stub{}
	gate, err := usage.NewGate(kv, prov, usage.Options{Quota: 10})
	require.NoError(t, err)

	store, err := storage.NewConversationStore(dir)
	require.NoError(t, err)

	server := newAnswerServer(t)
	consumer := answer.NewConsumer(answer.NewClient(server.URL), store, answer.Hooks{}, nil)

	return &fixture{
		sess:   New(gate, consumer, store, nil),
		gate:   gate,
		server: server,
		store:  store,
		prov:   prov,
	}
}

func TestSubmit_Answers(t *testing.T) {
	f := newFixture(t)

	msg, err := f.sess.Submit(context.Background(), "What is LoRa?")

	require.NoError(t, err)
	assert.Equal(t, "LoRa", msg.Content)
	assert.Equal(t, 9, f.gate.RemainingPrompts())

	conv := f.sess.Conversation()
	require.Len(t, conv.Messages, 2)

	stored, err := f.store.Load(conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 2)
}

func TestSubmit_QuotaExhaustionBlocksEleventhBeforeNetwork(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 10; i++ {
		_, err := f.sess.Submit(context.Background(), "question")
		require.NoError(t, err, "send %d", i+1)
	}
	assert.Equal(t, 0, f.gate.RemainingPrompts())
	assert.False(t, f.gate.CanSend())
	require.EqualValues(t, 10, f.server.requests.Load())

	_, err := f.sess.Submit(context.Background(), "one more")

	assert.ErrorIs(t, err, ErrQuotaExhausted)
	assert.EqualValues(t, 10, f.server.requests.Load(), "blocked send must not reach the network")
	assert.Len(t, f.sess.Conversation().Messages, 20, "blocked send must not append a user turn")
}

func TestSubmit_FailedSendStillConsumesQuota(t *testing.T) {
	f := newFixture(t)
	f.server.status.Store(http.StatusBadGateway)

	_, err := f.sess.Submit(context.Background(), "q")

	var statusErr *answer.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 9, f.gate.RemainingPrompts())
	assert.False(t, f.sess.Busy(), "input must be re-enabled after a failure")

	conv := f.sess.Conversation()
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
}

func TestSubmit_AuthenticatedSendsAreNotCounted(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		_, err := f.sess.Submit(context.Background(), "q")
		require.NoError(t, err)
	}
	_, err := f.sess.Submit(context.Background(), "q")
	require.ErrorIs(t, err, ErrQuotaExhausted)

	require.NoError(t, f.gate.Register(context.Background(), credential.Hint{Name: "Analyst"}))
	for i := 0; i < 15; i++ {
		_, err := f.sess.Submit(context.Background(), "q")
		require.NoError(t, err)
	}
	assert.Equal(t, 10, f.gate.RemainingPrompts())

	require.NoError(t, f.gate.Logout())
	assert.Equal(t, 10, f.gate.RemainingPrompts())
	assert.True(t, f.gate.CanSend())
}

func TestSubmit_EmptyMessage(t *testing.T) {
	f := newFixture(t)

	_, err := f.sess.Submit(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 10, f.gate.RemainingPrompts())
	assert.Zero(t, f.server.requests.Load())
}

func TestSubmit_BusyWhileSending(t *testing.T) {
	f := newFixture(t)
	f.server.release = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.sess.Submit(context.Background(), "slow question")
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return f.server.requests.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := f.sess.Submit(context.Background(), "impatient")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.sess.New()
	assert.ErrorIs(t, err, ErrBusy)

	close(f.server.release)
	wg.Wait()
	assert.Equal(t, 9, f.gate.RemainingPrompts(), "busy rejection must not be charged")
}

func TestNewAndResume(t *testing.T) {
	f := newFixture(t)
	_, err := f.sess.Submit(context.Background(), "first conversation")
	require.NoError(t, err)
	firstID := f.sess.ConversationID()

	fresh, err := f.sess.New()
	require.NoError(t, err)
	assert.NotEqual(t, firstID, fresh.ID)
	assert.Empty(t, f.sess.Conversation().Messages)

	resumed, err := f.sess.Resume(storage.ShortID(firstID))
	require.NoError(t, err)
	assert.Equal(t, firstID, resumed.ID)
	assert.Len(t, resumed.Messages, 2)

	_, err = f.sess.Submit(context.Background(), "follow-up")
	require.NoError(t, err)
	assert.Len(t, f.sess.Conversation().Messages, 4)
}

func TestResume_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.sess.Resume("nope")
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)

	noStore := New(f.gate, answer.NewConsumer(answer.NewClient(f.server.URL), nil, answer.Hooks{}, nil), nil, nil)
	_, err = noStore.Resume("anything")
	assert.Error(t, err)
}
