// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ksaregtech/regtech-tui/internal/util"
)

// recordPath returns dir/<id>.json, rejecting IDs that would leave dir.
func recordPath(dir, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: invalid reference %q", ErrUnknownCredential, id)
	}
	return filepath.Join(dir, id+".json"), nil
}

// writeRecord stores v as JSON readable only by the owner.
func writeRecord(dir, id string, v any) error {
	path, err := recordPath(dir, id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential record: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write credential record: %w", err)
	}
	return nil
}

// readRecord loads dir/<id>.json into v.
func readRecord(dir, id string, v any) error {
	path, err := recordPath(dir, id)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrUnknownCredential, id)
		}
		return fmt.Errorf("read credential record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode credential record %s: %w", id, err)
	}
	return nil
}

// dirUsable reports whether dir exists or can be created.
func dirUsable(dir string) bool {
	if dir == "" {
		return false
	}
	return os.MkdirAll(dir, 0700) == nil
}

// zeroBytes clears key material.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
