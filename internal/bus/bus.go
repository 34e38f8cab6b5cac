// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus carries job progress events from producers to any number of watchers.
package bus

import "context"

// Message is an opaque event payload.
type Message any

// Subscriber receives the messages of one topic.
type Subscriber interface {
	// C returns the message channel. It is closed by Close.
	C() <-chan Message
	// Close unsubscribes. It is safe to call more than once.
	Close() error
}

// Bus is the event transport abstraction.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}
