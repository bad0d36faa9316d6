package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Broadcaster fans every message sent on its input channel out to all
// subscriber channels. Subscribers attach before Run and never stall
// the fan-out loop: a subscriber that cannot take a message under its
// delivery policy loses that message, counted per subscriber.
//
// The input channel is owned by the broadcaster. On context
// cancellation it is closed and the messages already accepted are
// still delivered before the fan-out loop exits.
type Broadcaster[T any] struct {
	subs    []subscriber[T]
	input   chan T
	started atomic.Bool
	wg      sync.WaitGroup
}

// subscriber pairs one outbound channel with its delivery policy. A
// nil timeout means non-blocking delivery.
type subscriber[T any] struct {
	ch      chan<- T
	timeout *time.Duration
	closed  atomic.Bool
	dropped atomic.Int32
}

// deliver hands msg to the subscriber under its policy. A subscriber
// whose channel turns out to be closed is deactivated for good.
func (s *subscriber[T]) deliver(msg T) {
	if s.closed.Load() {
		s.dropped.Add(1)
		return
	}

	var err error
	if s.timeout != nil {
		err = SendWithTimeout(s.ch, msg, *s.timeout)
	} else {
		err = SendNonBlock(s.ch, msg)
	}
	if err == nil {
		return
	}

	s.dropped.Add(1)
	if errors.Is(err, ErrChannelClosed) {
		s.closed.Store(true)
	}
}

// NewBroadcaster creates a broadcaster with no subscribers attached.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe attaches ch with non-blocking delivery: messages the
// channel cannot take immediately are dropped for this subscriber.
// Attach subscribers before Run; Subscribe is not safe to call
// concurrently with Run.
func (b *Broadcaster[T]) Subscribe(ch chan<- T) error {
	if ch == nil {
		return fmt.Errorf("subscriber channel cannot be nil")
	}

	b.subs = append(b.subs, subscriber[T]{ch: ch})

	return nil
}

// SubscribeWithTimeout attaches ch with blocking delivery bounded by
// timeout; a delivery that times out is dropped for this subscriber.
// Attach subscribers before Run; not safe to call concurrently with
// Run.
func (b *Broadcaster[T]) SubscribeWithTimeout(ch chan<- T, timeout time.Duration) error {
	if ch == nil {
		return fmt.Errorf("subscriber channel cannot be nil")
	}
	if timeout <= 0 {
		return fmt.Errorf("send timeout must be positive")
	}

	b.subs = append(b.subs, subscriber[T]{ch: ch, timeout: &timeout})

	return nil
}

// Run starts the fan-out loop and returns the input channel. The
// channel accepts messages until ctx is cancelled; whatever was
// accepted before cancellation is still delivered. Run fails when
// called twice or with no subscribers attached.
func (b *Broadcaster[T]) Run(ctx context.Context) (chan<- T, error) {
	if b.started.Load() {
		return nil, fmt.Errorf("broadcaster already started")
	}
	if len(b.subs) == 0 {
		return nil, fmt.Errorf("no subscribers available")
	}

	b.input = make(chan T, len(b.subs)*2)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range b.input {
			for i := range b.subs {
				b.subs[i].deliver(msg)
			}
		}
	}()

	b.started.Store(true)

	go func() {
		<-ctx.Done()
		close(b.input)
		b.wg.Wait()
	}()

	return b.input, nil
}

// Wait blocks until the fan-out loop has drained and exited after
// context cancellation. Safe to call from multiple goroutines.
func (b *Broadcaster[T]) Wait() {
	b.wg.Wait()
}

// SubscriberStats reports one subscriber's delivery counters.
type SubscriberStats struct {
	Dropped  int
	Inactive bool
}

// Stats returns per-subscriber delivery counters in subscription order.
func (b *Broadcaster[T]) Stats() []SubscriberStats {
	stats := make([]SubscriberStats, 0, len(b.subs))
	for i := range b.subs {
		stats = append(stats, SubscriberStats{
			Dropped:  int(b.subs[i].dropped.Load()),
			Inactive: b.subs[i].closed.Load(),
		})
	}

	return stats
}
