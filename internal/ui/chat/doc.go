// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the main chat view for the regtech TUI.

# Key Components

## Model (model.go)

The Model is the Bubble Tea model holding all view state:
  - the transcript of committed turns plus the live partial answer
  - the usage snapshot shown in the status bar
  - the gate surface shown when no free prompts remain
  - the masked prompt used by credential providers

## Events (events.go)

Answer streams and sign-in flows run on tea.Cmd goroutines. Events forwards
their callbacks into the running program with Program.Send, and Prompter
implements credential.Prompter on top of the same channel.

## View Rendering (view.go)

Header, transcript (glamour-rendered answers with numbered citations),
sources panel, input or spinner, gate surface and status bar.

# Usage

	events := chat.NewEvents()
	consumer := answer.NewConsumer(client, store, events.Hooks(), logger)
	m := chat.New(chat.Options{Session: sess, Gate: gate, Events: events})
	p := tea.NewProgram(m, tea.WithAltScreen())
	events.Attach(p)
	_, err := p.Run()
*/
package chat
