// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ksaregtech/regtech-tui/internal/model"
)

// EventType discriminates stream events.
type EventType string

const (
	EventToken EventType = "token"
	EventDone  EventType = "done"
)

// ErrMalformedRecord indicates a record that is not a known event.
var ErrMalformedRecord = errors.New("malformed stream record")

// Event is one decoded stream record.
type Event struct {
	Type       EventType         `json:"type"`
	Content    string            `json:"content,omitempty"`
	References []model.Reference `json:"references,omitempty"`
}

// TokenEvent returns a token event carrying fragment.
func TokenEvent(fragment string) Event {
	return Event{Type: EventToken, Content: fragment}
}

// DoneEvent returns a terminal event carrying refs.
func DoneEvent(refs []model.Reference) Event {
	if refs == nil {
		refs = []model.Reference{}
	}
	return Event{Type: EventDone, References: refs}
}

// ParseEvent decodes a record payload (the text after "data: ").
func ParseEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	switch ev.Type {
	case EventToken:
	case EventDone:
		if ev.References == nil {
			ev.References = []model.Reference{}
		}
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedRecord, ev.Type)
	}
	return ev, nil
}

// MarshalJSON always emits the references array on done events.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	if e.Type == EventDone {
		refs := e.References
		if refs == nil {
			refs = []model.Reference{}
		}
		return json.Marshal(struct {
			Type       EventType         `json:"type"`
			References []model.Reference `json:"references"`
		}{e.Type, refs})
	}
	if e.Type == EventToken {
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{e.Type, e.Content})
	}
	return json.Marshal(alias(e))
}

// FormatRecord encodes ev as a framed record terminated by a blank line.
func FormatRecord(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(dataPrefix)+len(data)+2)
	out = append(out, dataPrefix...)
	out = append(out, data...)
	out = append(out, '\n', '\n')
	return out, nil
}
