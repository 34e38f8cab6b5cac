// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/adreel/internal/log"
	"github.com/ManuGH/adreel/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

const dropLogEvery = 100

// MemoryBus is an in-process pub/sub. Delivery blocks on a full subscriber until
// the publish context ends, so producers bound their wait with a deadline.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	buffer int
	drops  atomic.Uint64
}

// NewMemoryBus returns a bus with DefaultBuffer sized subscriptions.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub), buffer: DefaultBuffer}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// Publish delivers msg to every current subscriber of topic. A subscriber whose
// buffer stays full until ctx ends misses msg; the others still receive it, and
// the misses are returned joined.
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return errors.New("publish context is nil")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var errs []error
	for _, s := range b.subs[topic] {
		if err := s.deliver(ctx, msg); err != nil {
			b.recordDrop(topic, err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish topic %q: %w", topic, errors.Join(errs...))
	}
	return nil
}

func (b *MemoryBus) recordDrop(topic string, err error) {
	reason := publishDropReason(err)
	metrics.IncEventDrop(topic, reason)
	if count := b.drops.Add(1); count%dropLogEvery == 1 {
		log.L().Warn().
			Str("topic", topic).
			Str("reason", reason).
			Uint64("dropped", count).
			Msg("memory bus dropped message for slow subscriber")
	}
}

// Subscribe registers a subscriber on topic. The subscription is closed when ctx ends.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memSub{b: b, topic: topic, ch: make(chan Message, b.buffer), done: make(chan struct{})}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = s.Close()
			case <-s.done:
			}
		}()
	}
	return s, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once
}

func (s *memSub) C() <-chan Message { return s.ch }

// deliver hands msg over, waiting on ctx only while the buffer is full. A closed
// subscription swallows msg.
func (s *memSub) deliver(ctx context.Context, msg Message) error {
	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return nil
	default:
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memSub) Close() error {
	s.once.Do(func() {
		// Unblock publishers waiting on this subscriber before taking the write lock.
		close(s.done)

		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		close(s.ch)
	})
	return nil
}

var _ Bus = (*MemoryBus)(nil)
