package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// subscriber is one fan-out target. A nil timeout means sends never block.
type subscriber[T any] struct {
	ch       chan<- T
	timeout  *time.Duration
	inactive atomic.Bool
	dropped  atomic.Int32
}

func (s *subscriber[T]) send(msg T) {
	if s.inactive.Load() {
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
		s.inactive.Store(true)
	}
}

// Broadcaster copies every message from one input channel to each
// subscriber. A slow subscriber loses messages instead of stalling the
// producer: non-blocking subscribers drop when their buffer is full, timed
// subscribers drop once the timeout expires. A subscriber whose channel was
// closed is marked inactive and skipped.
//
// The input channel belongs to the Broadcaster. It is closed when the Run
// context ends, and whatever is still buffered is delivered before Wait
// returns.
type Broadcaster[T any] struct {
	subscribers []*subscriber[T]
	input       chan T
	started     atomic.Bool
	wg          sync.WaitGroup
}

// NewBroadcaster returns a Broadcaster with no subscribers.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe registers ch as a non-blocking subscriber. It must be called
// before Run.
func (f *Broadcaster[T]) Subscribe(ch chan<- T) error {
	return f.add(ch, nil)
}

// SubscribeWithTimeout registers ch as a subscriber that may block for up to
// timeout per message. It must be called before Run.
func (f *Broadcaster[T]) SubscribeWithTimeout(ch chan<- T, timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", timeout)
	}

	return f.add(ch, &timeout)
}

func (f *Broadcaster[T]) add(ch chan<- T, timeout *time.Duration) error {
	if ch == nil {
		return errors.New("subscriber channel cannot be nil")
	}

	if f.started.Load() {
		return errors.New("cannot subscribe after broadcaster started")
	}

	f.subscribers = append(f.subscribers, &subscriber[T]{ch: ch, timeout: timeout})

	return nil
}

// Run starts delivery and returns the input channel. It fails when there
// are no subscribers or when called twice.
func (f *Broadcaster[T]) Run(ctx context.Context) (chan<- T, error) {
	if len(f.subscribers) == 0 {
		return nil, errors.New("no subscribers registered")
	}

	if !f.started.CompareAndSwap(false, true) {
		return nil, errors.New("broadcaster already started")
	}

	f.input = make(chan T, len(f.subscribers)*2)

	f.wg.Go(func() {
		for msg := range f.input {
			for _, s := range f.subscribers {
				s.send(msg)
			}
		}
	})

	go func() {
		<-ctx.Done()
		close(f.input)
	}()

	return f.input, nil
}

// Wait blocks until the input channel is closed and drained.
func (f *Broadcaster[T]) Wait() {
	f.wg.Wait()
}

// SubscriberStats reports delivery health for one subscriber, in
// subscription order.
type SubscriberStats struct {
	Dropped  int
	Inactive bool
}

// Stats returns per-subscriber counters.
func (f *Broadcaster[T]) Stats() []SubscriberStats {
	stats := make([]SubscriberStats, len(f.subscribers))
	for i, s := range f.subscribers {
		stats[i] = SubscriberStats{
			Dropped:  int(s.dropped.Load()),
			Inactive: s.inactive.Load(),
		}
	}

	return stats
}
