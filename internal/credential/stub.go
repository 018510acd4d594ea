// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"context"
	"fmt"
	"sync"
)

// Stub is a scripted Provider for tests.
type Stub struct {
	mu sync.Mutex

	Unavailable bool  // Available() returns false
	CreateErr   error // Returned by Create when set
	AssertErr   error // Returned by Assert when set
	Block       bool  // Calls wait for ctx to be done
	Strict      bool  // Assert rejects references Create never issued

	issued  map[string]bool
	creates int
	asserts int
}

// Kind returns "stub".
func (s *Stub) Kind() string { return KindStub }

// Available reports !Unavailable.
func (s *Stub) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.Unavailable
}

// Create issues a new sequential handle.
func (s *Stub) Create(ctx context.Context, hint Hint) (Handle, error) {
	if err := s.enter(ctx, &s.creates); err != nil {
		return Handle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return Handle{}, s.CreateErr
	}
	if s.issued == nil {
		s.issued = make(map[string]bool)
	}
	id := fmt.Sprintf("stub-%d", s.creates)
	s.issued[id] = true
	return Handle{ID: id, Kind: KindStub, Name: hint.Name}, nil
}

// Assert returns a handle for ref.
func (s *Stub) Assert(ctx context.Context, ref string) (Handle, error) {
	if err := s.enter(ctx, &s.asserts); err != nil {
		return Handle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AssertErr != nil {
		return Handle{}, s.AssertErr
	}
	if s.Strict && !s.issued[ref] {
		return Handle{}, fmt.Errorf("%w: %s", ErrUnknownCredential, ref)
	}
	return Handle{ID: ref, Kind: KindStub}, nil
}

// Calls returns how many times Create and Assert were invoked.
func (s *Stub) Calls() (creates, asserts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.asserts
}

func (s *Stub) enter(ctx context.Context, counter *int) error {
	s.mu.Lock()
	*counter++
	unavailable, block := s.Unavailable, s.Block
	s.mu.Unlock()

	if unavailable {
		return ErrUnavailable
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}
