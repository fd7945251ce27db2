// Package event implements a generic one-to-many publish/subscribe
// primitive, adapted from go-ethereum's event.Feed for the notifications
// the coordinator and scheduler exchange: worker-idle, partition-rolled,
// and partition-persisted.
package event

import "sync"

// Feed implements one-to-many notification: a value sent to the feed is
// delivered to every currently subscribed channel. A Feed must not be
// copied after first use.
type Feed[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]chan T
}

// Subscription represents a channel subscribed to a Feed.
type Subscription[T any] struct {
	feed *Feed[T]
	ch   chan T
	once sync.Once
	done chan struct{}
}

// Subscribe adds ch as a recipient of future Send calls. The returned
// Subscription must be closed with Unsubscribe to release it.
func (f *Feed[T]) Subscribe(ch chan T) *Subscription[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[*Subscription[T]]chan T)
	}
	sub := &Subscription[T]{feed: f, ch: ch, done: make(chan struct{})}
	f.subs[sub] = ch
	return sub
}

// Send delivers value to every current subscriber, blocking until each
// has accepted it or been unsubscribed. It returns the number of
// subscribers the value was delivered to.
func (f *Feed[T]) Send(value T) int {
	f.mu.Lock()
	subs := make([]*Subscription[T], 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	delivered := 0
	for _, sub := range subs {
		select {
		case sub.ch <- value:
			delivered++
		case <-sub.done:
		}
	}
	return delivered
}

// Unsubscribe removes the subscription from its feed. Safe to call more
// than once.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
	})
}
