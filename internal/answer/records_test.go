// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns its chunks one Read at a time.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func readAll(t *testing.T, r io.Reader) []string {
	t.Helper()
	rr := NewRecordReader(r)
	var out []string
	for {
		payload, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, string(payload))
	}
}

const loraStream = "data: {\"type\":\"token\",\"content\":\"Lo\"}\n" +
	"data: {\"type\":\"token\",\"content\":\"Ra\"}\n" +
	"data: {\"type\":\"done\",\"references\":[]}\n"

func TestRecordReader_WholeRecords(t *testing.T) {
	got := readAll(t, strings.NewReader(loraStream))

	assert.Equal(t, []string{
		`{"type":"token","content":"Lo"}`,
		`{"type":"token","content":"Ra"}`,
		`{"type":"done","references":[]}`,
	}, got)
}

func TestRecordReader_SplitAcrossChunks(t *testing.T) {
	whole := readAll(t, strings.NewReader(loraStream))

	// Newline of the first record arrives with the next chunk.
	split := &chunkReader{chunks: []string{
		"data: {\"type\":\"token\",\"content\":\"Lo\"}",
		"\ndata: {\"type\":\"tok",
		"en\",\"content\":\"Ra\"}\nda",
		"ta: {\"type\":\"done\",\"references\":[]}\n",
	}}
	assert.Equal(t, whole, readAll(t, split))

	assert.Equal(t, whole, readAll(t, iotest.OneByteReader(strings.NewReader(loraStream))))
}

func TestRecordReader_IgnoresNonDataLines(t *testing.T) {
	input := "\n: keep-alive\nevent: message\nid: 7\ndata:no-space\r\ndata: {\"a\":1}\r\n\n"

	assert.Equal(t, []string{`{"a":1}`}, readAll(t, strings.NewReader(input)))
}

func TestRecordReader_TrailingRecordWithoutNewline(t *testing.T) {
	input := "data: first\ndata: last"

	assert.Equal(t, []string{"first", "last"}, readAll(t, strings.NewReader(input)))
}

func TestRecordReader_SkipsOversizedLines(t *testing.T) {
	huge := "data: " + strings.Repeat("x", MaxRecordSize*2) + "\n"
	input := "data: before\n" + huge + "data: after\n"

	rr := NewRecordReader(strings.NewReader(input))
	var got []string
	for {
		payload, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, string(payload))
	}

	assert.Equal(t, []string{"before", "after"}, got)
	assert.Equal(t, 1, rr.Oversized())
}

func TestRecordReader_PropagatesReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	rr := NewRecordReader(io.MultiReader(strings.NewReader("data: ok\n"), iotest.ErrReader(boom)))

	payload, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(payload))

	_, err = rr.Next()
	assert.ErrorIs(t, err, boom)
}

func TestRecordReader_EmptyStream(t *testing.T) {
	assert.Empty(t, readAll(t, strings.NewReader("")))
}
