package chat

import (
	"context"
	"sync"

	"github.com/desertthunder/harmony/internal/shared"
	"github.com/google/uuid"
)

// Transport is the pub/sub primitive a [Client] runs on.
//
// Subscribe returns once the subscription is confirmed. status is called
// afterwards when the underlying connection drops or recovers. Publishers never
// receive their own messages.
type Transport interface {
	Subscribe(ctx context.Context, channel string, deliver func([]byte), status func(State)) (Subscription, error)
	Publish(ctx context.Context, channel string, data []byte) error
	Close() error
}

// Subscription is an active transport subscription.
type Subscription interface {
	Unsubscribe() error
}

// MemoryHub routes messages between in-process transports.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[*memorySubscription]struct{})}
}

// Transport returns a new participant attached to the hub.
func (h *MemoryHub) Transport() *MemoryTransport {
	return &MemoryTransport{hub: h, peer: uuid.NewString()}
}

func (h *MemoryHub) add(s *memorySubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[s.channel] == nil {
		h.subs[s.channel] = make(map[*memorySubscription]struct{})
	}
	h.subs[s.channel][s] = struct{}{}
}

func (h *MemoryHub) remove(s *memorySubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[s.channel], s)
	if len(h.subs[s.channel]) == 0 {
		delete(h.subs, s.channel)
	}
}

func (h *MemoryHub) publish(peer, channel string, data []byte) {
	h.mu.RLock()
	targets := make([]*memorySubscription, 0, len(h.subs[channel]))
	for s := range h.subs[channel] {
		if s.peer != peer {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.deliver(append([]byte(nil), data...))
	}
}

// MemoryTransport is one participant on a [MemoryHub].
//
// Delivery is synchronous on the publisher's goroutine.
type MemoryTransport struct {
	hub    *MemoryHub
	peer   string
	mu     sync.Mutex
	subs   []*memorySubscription
	closed bool
}

type memorySubscription struct {
	hub     *MemoryHub
	peer    string
	channel string
	deliver func([]byte)
	once    sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() { s.hub.remove(s) })
	return nil
}

func (t *MemoryTransport) Subscribe(ctx context.Context, channel string, deliver func([]byte), _ func(State)) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, shared.ErrNotSubscribed
	}

	sub := &memorySubscription{hub: t.hub, peer: t.peer, channel: channel, deliver: deliver}
	t.hub.add(sub)
	t.subs = append(t.subs, sub)
	return sub, nil
}

func (t *MemoryTransport) Publish(ctx context.Context, channel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return shared.ErrNotSubscribed
	}

	t.hub.publish(t.peer, channel, data)
	return nil
}

// Close drops every subscription made through t.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.closed = true
	t.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	return nil
}
