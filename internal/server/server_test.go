// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/model"
)

// readEvents drains a stream body into parsed events.
func readEvents(t *testing.T, body io.Reader) []answer.Event {
	t.Helper()
	rr := answer.NewRecordReader(body)
	var events []answer.Event
	for {
		payload, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		ev, err := answer.ParseEvent(payload)
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func postChat(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// ENDPOINT TESTS
// =============================================================================

func TestHealth(t *testing.T) {
	srv := New(Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	srv := New(Options{})
	for _, body := range []string{`{"message":""}`, `{"message":"   "}`, `{}`} {
		rec := postChat(t, srv, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, int64(0), srv.Stats().Requests)
}

func TestChat_InvalidJSONRejected(t *testing.T) {
	srv := New(Options{})
	rec := postChat(t, srv, `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_StreamsTokensThenDone(t *testing.T) {
	srv := New(Options{})
	rec := postChat(t, srv, `{"message":"When must a data breach be notified?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readEvents(t, rec.Body)
	require.GreaterOrEqual(t, len(events), 2)

	last := events[len(events)-1]
	require.Equal(t, answer.EventDone, last.Type)
	require.NotEmpty(t, last.References)
	assert.Equal(t, "sample-pdpl-1", last.References[0].ID)
	assert.Equal(t, 3, last.References[0].Page)

	var text strings.Builder
	for i, ev := range events[:len(events)-1] {
		require.Equal(t, answer.EventToken, ev.Type)
		if i == 0 {
			assert.False(t, strings.HasPrefix(ev.Content, " "), "first token has no leading space")
		} else {
			assert.True(t, strings.HasPrefix(ev.Content, " "), "later tokens start with a space")
		}
		text.WriteString(ev.Content)
	}
	assert.True(t, strings.HasPrefix(text.String(), "According to sample-personal-data-protection.pdf (page 3):"))

	stats := srv.Stats()
	assert.Equal(t, int64(1), stats.Requests)
	assert.Equal(t, int64(len(events)-1), stats.Tokens)
}

func TestChat_NoMatchHasEmptyReferences(t *testing.T) {
	srv := New(Options{})
	rec := postChat(t, srv, `{"message":"xyzzy plugh"}`)

	events := readEvents(t, rec.Body)
	last := events[len(events)-1]
	assert.Equal(t, answer.EventDone, last.Type)
	assert.NotNil(t, last.References)
	assert.Empty(t, last.References)

	raw := rec.Body.String()
	assert.Contains(t, raw, `"references":[]`)
}

func TestCORS(t *testing.T) {
	srv := New(Options{})

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:3000", true},
		{"https://regtech-preview.vercel.app", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", tt.origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed {
			assert.Equal(t, tt.origin, got, tt.origin)
		} else {
			assert.Empty(t, got, tt.origin)
		}
	}
}

func TestChat_TokenPacing(t *testing.T) {
	corpus := NewCorpus([]Document{{ID: "d1", Source: "a.pdf", Page: 1, Text: "Reports are filed yearly."}})
	delay := 20 * time.Millisecond
	srv := New(Options{Corpus: corpus, Delay: delay})

	start := time.Now()
	rec := postChat(t, srv, `{"message":"reports"}`)
	elapsed := time.Since(start)

	events := readEvents(t, rec.Body)
	tokens := len(events) - 1
	require.Greater(t, tokens, 2)
	assert.GreaterOrEqual(t, elapsed, time.Duration(tokens-1)*delay/2)
}

// =============================================================================
// CORPUS TESTS
// =============================================================================

func TestCorpus_SearchRanksByOverlap(t *testing.T) {
	c := NewCorpus([]Document{
		{ID: "a", Source: "x.pdf", Text: "capital requirements for banks"},
		{ID: "b", Source: "y.pdf", Text: "capital and liquidity requirements for banks and insurers"},
		{ID: "c", Source: "z.pdf", Text: "unrelated text about tourism"},
	})

	got := c.Search("liquidity requirements for banks", 5)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	assert.Len(t, c.Search("banks", 1), 1)
	assert.Empty(t, c.Search("of is", 5), "short words are ignored")
}

func TestCorpus_TiesKeepOrder(t *testing.T) {
	c := NewCorpus([]Document{
		{Text: "zakat filing"},
		{Text: "zakat assessment"},
	})
	got := c.Search("zakat", 5)
	require.Len(t, got, 2)
	assert.Equal(t, "chunk-1", got[0].ID)
	assert.Equal(t, "chunk-2", got[1].ID)
}

func TestCorpus_ArabicTerms(t *testing.T) {
	c := NewCorpus([]Document{{ID: "ar", Source: "nizam.pdf", Text: "حماية البيانات الشخصية"}})
	got := c.Search("ما هي حماية البيانات؟", 5)
	require.Len(t, got, 1)
	assert.Equal(t, "ar", got[0].ID)
}

func TestReferences_SnippetTruncation(t *testing.T) {
	long := strings.Repeat("ع", 250)
	refs := References([]Document{
		{ID: "long", Source: "a.pdf", Page: 4, Text: long},
		{ID: "short", Source: "b.pdf", Page: 1, Text: "short text"},
	})

	assert.Equal(t, strings.Repeat("ع", SnippetLength)+"...", refs[0].Snippet)
	assert.Equal(t, "short text", refs[1].Snippet)
	assert.Equal(t, model.Reference{ID: "short", Source: "b.pdf", Page: 1, Snippet: "short text"}, refs[1])
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.json")
	docs := []Document{{ID: "k1", Source: "k.pdf", Page: 9, Text: "licensing of fintech sandboxes"}}
	data, err := json.Marshal(docs)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	c, err := LoadCorpus(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "k1", c.Search("fintech", 5)[0].ID)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("[]"), 0600))
	_, err = LoadCorpus(empty)
	assert.Error(t, err)

	_, err = LoadCorpus(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

// =============================================================================
// END-TO-END
// =============================================================================

func TestEndToEnd_ConsumerCommitsStubAnswer(t *testing.T) {
	srv := New(Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := answer.NewClient(ts.URL)
	require.NoError(t, client.Health(context.Background()))

	var partials int
	consumer := answer.NewConsumer(client, nil, answer.Hooks{
		Partial: func(string, string) { partials++ },
	}, nil)

	conv := model.NewConversation()
	msg, err := consumer.Send(context.Background(), conv, "Which records must financial institutions keep?")
	require.NoError(t, err)

	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Contains(t, msg.Content, "sample-anti-money-laundering-rules.pdf")
	require.NotEmpty(t, msg.References)
	assert.Equal(t, "sample-aml-1", msg.References[0].ID)
	assert.Equal(t, partials, len(strings.Split(msg.Content, " ")))

	snap := consumer.Snapshot(conv)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, model.RoleUser, snap.Messages[0].Role)
}
