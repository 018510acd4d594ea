// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksaregtech/regtech-tui/internal/model"
)

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"token","content":"Lo"}`))
	require.NoError(t, err)
	assert.Equal(t, TokenEvent("Lo"), ev)

	ev, err = ParseEvent([]byte(`{"type":"done","references":[{"id":"4","source":"cma.pdf","page":12,"snippet":"Issuers must..."}]}`))
	require.NoError(t, err)
	assert.Equal(t, EventDone, ev.Type)
	require.Len(t, ev.References, 1)
	assert.Equal(t, model.Reference{ID: "4", Source: "cma.pdf", Page: 12, Snippet: "Issuers must..."}, ev.References[0])
}

func TestParseEvent_DoneWithoutReferences(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"done"}`))
	require.NoError(t, err)
	assert.NotNil(t, ev.References)
	assert.Empty(t, ev.References)
}

func TestParseEvent_Malformed(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"type":"token","content":`,
		`{"type":"progress","value":3}`,
		`{"content":"no type"}`,
		`[]`,
	} {
		_, err := ParseEvent([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedRecord, payload)
	}
}

func TestFormatRecord(t *testing.T) {
	data, err := FormatRecord(TokenEvent(" world"))
	require.NoError(t, err)
	assert.Equal(t, "data: {\"type\":\"token\",\"content\":\" world\"}\n\n", string(data))

	data, err = FormatRecord(DoneEvent(nil))
	require.NoError(t, err)
	assert.Equal(t, "data: {\"type\":\"done\",\"references\":[]}\n\n", string(data))
}
