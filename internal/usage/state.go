// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package usage

import (
	"fmt"
	"time"
)

// State is the gate's position in its state machine.
type State int

const (
	StateAnonymousHasQuota State = iota
	StateAnonymousExhausted
	StateAuthenticated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAnonymousHasQuota:
		return "Anonymous-HasQuota"
	case StateAnonymousExhausted:
		return "Anonymous-Exhausted"
	case StateAuthenticated:
		return "Authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Identity is the record bound to a successful registration or login.
type Identity struct {
	Name            string    `json:"name,omitempty"`
	CredentialID    string    `json:"credential_id"`
	Provider        string    `json:"provider"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	ExpiresAt       time.Time `json:"expires_at,omitempty"`
}

// DisplayName returns the name or a short credential label.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	id := i.CredentialID
	if len(id) > 8 {
		id = id[:8]
	}
	return "credential " + id
}

// Snapshot is a point-in-time copy of the gate's state.
type Snapshot struct {
	State            State     `json:"state"`
	RemainingPrompts int       `json:"remaining_prompts"`
	Quota            int       `json:"quota"`
	IsAuthenticated  bool      `json:"is_authenticated"`
	Identity         *Identity `json:"identity,omitempty"`
	Provider         string    `json:"provider"`
	ProviderReady    bool      `json:"provider_available"`
}

// CanSend reports whether the snapshot would allow a send.
func (s Snapshot) CanSend() bool {
	return s.IsAuthenticated || s.RemainingPrompts > 0
}
