package bridge

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Subscription is a push-topic listener whose setup may still be in flight
type Subscription struct {
	topic string

	mu       sync.Mutex
	resolved bool
	unlisten func()
	err      error

	disposed atomic.Bool
	once     sync.Once
	cancel   func()
	ready    chan struct{}
}

func newSubscription(topic string, cancel func()) *Subscription {
	return &Subscription{
		topic:  topic,
		cancel: cancel,
		ready:  make(chan struct{}),
	}
}

// Topic returns the subscribed topic
func (s *Subscription) Topic() string {
	return s.topic
}

// Ready is closed once the listen round trip has completed
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// Err returns the listen failure, if any, after Ready is closed
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Active reports whether events are currently being delivered
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved && s.err == nil && !s.disposed.Load()
}

// Disposed reports whether Dispose has been called
func (s *Subscription) Disposed() bool {
	return s.disposed.Load()
}

// Dispose tears the subscription down. Before resolution the request is
// recorded and applied when the listener arrives. Safe to call repeatedly.
func (s *Subscription) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	resolved := s.resolved
	s.mu.Unlock()

	if resolved {
		s.runUnlisten()
	}
}

// resolve records the outcome of the listen call
func (s *Subscription) resolve(unlisten func(), err error) {
	s.mu.Lock()
	s.resolved = true
	s.unlisten = unlisten
	s.err = err
	s.mu.Unlock()
	close(s.ready)

	if s.disposed.Load() {
		s.runUnlisten()
	}
}

func (s *Subscription) runUnlisten() {
	s.once.Do(func() {
		s.mu.Lock()
		unlisten := s.unlisten
		s.mu.Unlock()
		if unlisten != nil {
			unlisten()
		}
	})
}

// gate wraps fn so nothing is delivered after Dispose
func (s *Subscription) gate(fn Listener) Listener {
	return func(payload json.RawMessage) {
		if s.disposed.Load() {
			return
		}
		fn(payload)
	}
}
