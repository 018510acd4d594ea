// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		" warn ":  LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.True(t, ValidLevel("Debug"))
	assert.False(t, ValidLevel("trace"))
}

func TestLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)
	l.Error("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 2")
	assert.Contains(t, out, "[ERROR] also shown")

	l.SetLevel(LevelDebug)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] now visible")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo).With("answer").With("client")

	l.Info("dial ok")
	assert.Contains(t, buf.String(), "[INFO] answer.client: dial ok")
}

func TestLogger_NilAndDiscard(t *testing.T) {
	var l *Logger
	l.Info("no panic")
	assert.Nil(t, l.With("x"))
	assert.NoError(t, l.Close())

	Discard().Error("dropped")
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "regtech.log")
	l, err := Open(path, LevelInfo)
	require.NoError(t, err)

	l.Info("written to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
