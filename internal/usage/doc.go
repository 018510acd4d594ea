// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package usage implements the prompt quota and the credential-backed sign-in
// that lifts it.
//
// The Gate owns three durable facts: the remaining anonymous prompts, the
// signed identity record and the credential reference. It moves between
// three states:
//
//	Anonymous-HasQuota --IncrementPrompt to 0--> Anonymous-Exhausted
//	either Anonymous   --Register / Login------> Authenticated (quota reset)
//	Authenticated      --Logout----------------> Anonymous (counter kept)
//
// # Usage
//
//	gate, err := usage.NewGate(kv, provider, usage.Options{Quota: 10})
//	if !gate.CanSend() {
//		// show register / login
//	}
//	_ = gate.IncrementPrompt()
package usage
