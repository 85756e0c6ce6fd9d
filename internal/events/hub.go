package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const defaultQueueSize = 256

// Handler receives the encoded payload of one event
type Handler func(payload json.RawMessage)

// Options configures a Hub
type Options struct {
	QueueSize int
	Logger    *zap.Logger
}

// Hub fans published events out to topic subscribers
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*subscriber
	nextID atomic.Uint64
	closed bool

	queueSize int
	logger    *zap.Logger
	published atomic.Int64
	stalled   atomic.Int64
}

type subscriber struct {
	id      uint64
	topic   string
	queue   chan json.RawMessage
	done    chan struct{}
	once    sync.Once
	handler Handler
}

// NewHub creates an empty hub
func NewHub(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics:    make(map[string]map[uint64]*subscriber),
		queueSize: opts.QueueSize,
		logger:    logger,
	}
}

// Subscribe registers fn for topic. The returned cancel func may be called
// any number of times; fn is not invoked once cancel returns, except for a
// delivery already in progress.
func (h *Hub) Subscribe(topic string, fn Handler) (cancel func()) {
	sub := &subscriber{
		id:      h.nextID.Add(1),
		topic:   topic,
		queue:   make(chan json.RawMessage, h.queueSize),
		done:    make(chan struct{}),
		handler: fn,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[uint64]*subscriber)
		h.topics[topic] = subs
	}
	subs[sub.id] = sub
	h.mu.Unlock()

	go sub.run()

	return func() { h.remove(sub) }
}

// Publish encodes v and queues it for every subscriber of topic
func (h *Hub) Publish(topic string, v interface{}) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	h.PublishRaw(topic, payload)
	return nil
}

// PublishRaw queues an already encoded payload. When a subscriber's queue
// is full the call blocks until it drains or the subscription ends, so
// a slow consumer throttles the publisher instead of losing events.
func (h *Hub) PublishRaw(topic string, payload json.RawMessage) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.published.Add(1)
	subs := make([]*subscriber, 0, len(h.topics[topic]))
	for _, sub := range h.topics[topic] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- payload:
			continue
		case <-sub.done:
			continue
		default:
		}

		if h.stalled.Add(1) == 1 {
			h.logger.Warn("Subscriber queue full, publisher waiting", zap.String("topic", topic))
		}
		select {
		case sub.queue <- payload:
		case <-sub.done:
		}
	}
}

// Subscribers returns the number of subscribers on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Published returns the number of events published
func (h *Hub) Published() int64 {
	return h.published.Load()
}

// Stalled returns the number of deliveries that waited on a full queue
func (h *Hub) Stalled() int64 {
	return h.stalled.Load()
}

// Close cancels every subscription; later publishes are ignored
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	topics := h.topics
	h.topics = make(map[string]map[uint64]*subscriber)
	h.mu.Unlock()

	for _, subs := range topics {
		for _, sub := range subs {
			sub.stop()
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	h.mu.Unlock()

	sub.stop()
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.queue:
			// done wins over a queued payload
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(payload)
		}
	}
}
