// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MaxRecordSize is the largest accepted record line (64KB). Longer lines are
// discarded whole.
const MaxRecordSize = 64 * 1024

const dataPrefix = "data: "

// =============================================================================
// RECORD READER
// =============================================================================

// RecordReader splits a byte stream into newline-delimited records and
// yields the payload of each "data: " line. Partial lines are buffered
// across reads, so records may arrive split over any number of chunks.
type RecordReader struct {
	reader    *bufio.Reader
	oversized int
	eof       bool
}

// NewRecordReader creates a record reader over r.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{reader: bufio.NewReaderSize(r, MaxRecordSize)}
}

// Next returns the next record payload. The slice is only valid until the
// following call. Returns io.EOF when the stream ends; a final line without
// a trailing newline is still delivered.
func (rr *RecordReader) Next() ([]byte, error) {
	for {
		if rr.eof {
			return nil, io.EOF
		}

		line, err := rr.reader.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			rr.oversized++
			if err := rr.discardLine(); err != nil {
				return nil, err
			}
			continue
		case errors.Is(err, io.EOF):
			rr.eof = true
			if len(line) == 0 {
				return nil, io.EOF
			}
		case err != nil:
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if bytes.HasPrefix(line, []byte(dataPrefix)) {
			return line[len(dataPrefix):], nil
		}
		// Blank keep-alives, comments and other fields are ignored.
	}
}

// Oversized returns how many lines exceeded MaxRecordSize.
func (rr *RecordReader) Oversized() int {
	return rr.oversized
}

// discardLine drops input up to and including the next newline.
func (rr *RecordReader) discardLine() error {
	for {
		_, err := rr.reader.ReadSlice('\n')
		switch {
		case err == nil:
			return nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			rr.eof = true
			return nil
		default:
			return err
		}
	}
}
