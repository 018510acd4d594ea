// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ksaregtech/regtech-tui/internal/logging"
	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyMessage indicates the question was blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrEmptyCompletion indicates the stream ended with no tokens and no done event.
	ErrEmptyCompletion = errors.New("answer stream ended without content")
	// ErrSendInProgress indicates a send is already running for the conversation.
	ErrSendInProgress = errors.New("a send is already in progress for this conversation")
)

// StreamError is a read failure mid-stream. Partial holds the text received
// before the failure; it is never committed.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Streamer opens an answer stream for a question.
type Streamer interface {
	Stream(ctx context.Context, text string) (io.ReadCloser, error)
}

// Saver persists a conversation.
type Saver interface {
	Save(conv *model.Conversation) error
}

// Hooks receive progress for each send. Any hook may be nil. Hooks run on the
// sending goroutine.
type Hooks struct {
	// UserMessage fires once the optimistic user turn is appended.
	UserMessage func(convID string, msg *model.Message)
	// Partial fires after every token with the full text so far.
	Partial func(convID string, content string)
	// Committed fires once the assistant turn is appended.
	Committed func(convID string, msg *model.Message)
	// Failed fires when a send ends without an assistant turn.
	Failed func(convID string, err error)
}

// Stats are cumulative counters for a Consumer.
type Stats struct {
	Sends     int
	Committed int
	Failed    int
	Tokens    int
	Skipped   int // Malformed or oversized records
}

// =============================================================================
// CONSUMER
// =============================================================================

// Consumer runs sends against the answer service and reconciles the stream
// with the conversation. The user turn is appended before any network
// activity and is never rolled back; the assistant turn is appended only
// when the stream completes.
type Consumer struct {
	client Streamer
	store  Saver
	hooks  Hooks
	log    *logging.Logger

	// convMu guards appends to, and snapshots of, conversations passed to Send.
	convMu sync.Mutex

	mu       sync.Mutex
	inFlight map[string]bool
	stats    Stats
}

// NewConsumer creates a consumer. store may be nil to skip persistence.
func NewConsumer(client Streamer, store Saver, hooks Hooks, logger *logging.Logger) *Consumer {
	return &Consumer{
		client:   client,
		store:    store,
		hooks:    hooks,
		log:      logger.With("answer"),
		inFlight: make(map[string]bool),
	}
}

// Send asks one question in conv and blocks until the answer is committed or
// the send fails. Progress is reported through the consumer's Hooks.
func (c *Consumer) Send(ctx context.Context, conv *model.Conversation, text string) (*model.Message, error) {
	text = util.NormalizeInput(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !c.begin(conv.ID) {
		return nil, ErrSendInProgress
	}
	defer c.end(conv.ID)

	userMsg := model.NewUserMessage(text)
	c.append(conv, userMsg)
	if c.hooks.UserMessage != nil {
		c.hooks.UserMessage(conv.ID, userMsg)
	}

	content, refs, err := c.stream(ctx, conv.ID, text)
	if err != nil {
		return nil, c.fail(conv.ID, err)
	}

	assistant := model.NewAssistantMessage(content, refs)
	c.append(conv, assistant)

	c.mu.Lock()
	c.stats.Committed++
	c.mu.Unlock()
	c.log.Info("committed answer for %s (%d chars, %d references)", conv.ID, len(content), len(refs))

	if c.hooks.Committed != nil {
		c.hooks.Committed(conv.ID, assistant)
	}
	return assistant, nil
}

// stream reads one answer. It returns the accumulated content and the
// references of the last done event.
func (c *Consumer) stream(ctx context.Context, convID, text string) (string, []model.Reference, error) {
	body, err := c.client.Stream(ctx, text)
	if err != nil {
		return "", nil, err
	}
	defer body.Close()

	reader := NewRecordReader(body)
	var (
		acc     strings.Builder
		refs    []model.Reference
		sawDone bool
		tokens  int
		skipped int
	)
	defer func() {
		c.mu.Lock()
		c.stats.Tokens += tokens
		c.stats.Skipped += skipped + reader.Oversized()
		c.mu.Unlock()
	}()

	for {
		payload, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, &StreamError{Partial: acc.String(), Err: err}
		}

		ev, err := ParseEvent(payload)
		if err != nil {
			skipped++
			c.log.Debug("skipping record: %v", err)
			continue
		}

		switch ev.Type {
		case EventToken:
			tokens++
			acc.WriteString(ev.Content)
			if c.hooks.Partial != nil {
				c.hooks.Partial(convID, acc.String())
			}
		case EventDone:
			// The last done wins; the loop only ends at transport EOF.
			refs = ev.References
			sawDone = true
		}
	}

	if acc.Len() == 0 && !sawDone {
		return "", nil, ErrEmptyCompletion
	}
	return acc.String(), refs, nil
}

// append adds msg to conv and saves a snapshot. Save failures are logged;
// the in-memory turn stands.
func (c *Consumer) append(conv *model.Conversation, msg *model.Message) {
	c.convMu.Lock()
	conv.AddMessage(msg)
	snapshot := conv.Clone()
	c.convMu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Save(snapshot); err != nil {
		c.log.Warn("failed to save conversation %s: %v", conv.ID, err)
	}
}

// Snapshot returns a copy of conv that is safe to read while sends run.
func (c *Consumer) Snapshot(conv *model.Conversation) *model.Conversation {
	c.convMu.Lock()
	defer c.convMu.Unlock()
	return conv.Clone()
}

func (c *Consumer) fail(convID string, err error) error {
	c.mu.Lock()
	c.stats.Failed++
	c.mu.Unlock()

	c.log.Error("send failed for %s: %v", convID, err)
	if c.hooks.Failed != nil {
		c.hooks.Failed(convID, err)
	}
	return err
}

func (c *Consumer) begin(convID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[convID] {
		return false
	}
	c.inFlight[convID] = true
	c.stats.Sends++
	return true
}

func (c *Consumer) end(convID string) {
	c.mu.Lock()
	delete(c.inFlight, convID)
	c.mu.Unlock()
}

// Busy reports whether a send is running for convID.
func (c *Consumer) Busy(convID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[convID]
}

// Stats returns a copy of the cumulative counters.
func (c *Consumer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
