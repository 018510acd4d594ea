// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session composes the usage gate with the answer consumer.
//
// Every submit asks the gate first. A closed gate returns ErrQuotaExhausted
// before any network activity; an open one is charged one prompt and the
// question is dispatched. A failed send is not refunded.
//
// # Usage
//
//	sess := session.New(gate, consumer, store, logger)
//	msg, err := sess.Submit(ctx, "What does SAMA require for KYC?")
//	if errors.Is(err, session.ErrQuotaExhausted) {
//		// route to register / login
//	}
package session
