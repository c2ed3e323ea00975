package chat

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/desertthunder/harmony/internal/shared"
)

type recorder struct {
	mu     sync.Mutex
	events []Envelope
	states []State
}

func (r *recorder) onBroadcast(env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
}

func (r *recorder) onState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newMemoryClients(n int) []*Client {
	hub := NewMemoryHub()
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = NewClient(hub.Transport(), shared.NewLogger(&bytes.Buffer{}))
	}
	return clients
}

type failingTransport struct{}

func (failingTransport) Subscribe(context.Context, string, func([]byte), func(State)) (Subscription, error) {
	return nil, errors.New("broker unavailable")
}

func (failingTransport) Publish(context.Context, string, []byte) error { return errors.New("broker unavailable") }
func (failingTransport) Close() error                                  { return nil }

func TestChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("state transitions", func(t *testing.T) {
		clients := newMemoryClients(1)
		ch, err := clients[0].Channel("lobby")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ch.State() != Connecting {
			t.Fatalf("new channel should be connecting, got %s", ch.State())
		}

		rec := &recorder{}
		ch.OnStateChange(rec.onState)
		if err := ch.Subscribe(ctx); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		if ch.State() != Subscribed {
			t.Fatalf("expected subscribed, got %s", ch.State())
		}
		if len(rec.states) != 1 || rec.states[0] != Subscribed {
			t.Errorf("unexpected transitions %v", rec.states)
		}

		ch.Leave()
		if ch.State() != Disconnected {
			t.Errorf("expected disconnected after leave, got %s", ch.State())
		}
		if len(rec.states) != 1 {
			t.Error("leave should not fire state callbacks")
		}
	})

	t.Run("broadcast reaches other participants only", func(t *testing.T) {
		clients := newMemoryClients(2)
		a, _ := clients[0].Channel("lobby")
		b, _ := clients[1].Channel("lobby")
		recA, recB := &recorder{}, &recorder{}
		a.OnBroadcast(EventNewMessage, recA.onBroadcast)
		b.OnBroadcast(EventNewMessage, recB.onBroadcast)
		a.Subscribe(ctx)
		b.Subscribe(ctx)

		if err := a.Send(ctx, EventNewMessage, map[string]string{"content": "hi"}); err != nil {
			t.Fatalf("send failed: %v", err)
		}
		if recA.count() != 0 {
			t.Error("sender should not receive its own broadcast")
		}
		if recB.count() != 1 {
			t.Fatalf("expected 1 broadcast, got %d", recB.count())
		}

		var body map[string]string
		if err := recB.events[0].Decode(&body); err != nil || body["content"] != "hi" {
			t.Errorf("unexpected payload %v %v", body, err)
		}
	})

	t.Run("handlers registered during delivery apply to later broadcasts", func(t *testing.T) {
		clients := newMemoryClients(2)
		a, _ := clients[0].Channel("lobby")
		b, _ := clients[1].Channel("lobby")
		late := &recorder{}
		var once sync.Once
		b.OnBroadcast(EventNewMessage, func(Envelope) {
			once.Do(func() { b.OnBroadcast(EventNewMessage, late.onBroadcast) })
		})
		a.Subscribe(ctx)
		b.Subscribe(ctx)

		a.Send(ctx, EventNewMessage, map[string]string{"content": "one"})
		if late.count() != 0 {
			t.Fatalf("late handler should miss the broadcast that added it, got %d", late.count())
		}
		a.Send(ctx, EventNewMessage, map[string]string{"content": "two"})
		if late.count() != 1 {
			t.Errorf("expected late handler to see the next broadcast, got %d", late.count())
		}
	})

	t.Run("rooms are isolated", func(t *testing.T) {
		clients := newMemoryClients(2)
		a, _ := clients[0].Join(ctx, "lobby")
		b, _ := clients[1].Join(ctx, "other")
		rec := &recorder{}
		b.OnBroadcast(EventNewMessage, rec.onBroadcast)

		a.Send(ctx, EventNewMessage, "x")
		if rec.count() != 0 {
			t.Error("broadcast leaked across rooms")
		}
	})

	t.Run("send before subscribe is dropped", func(t *testing.T) {
		clients := newMemoryClients(2)
		a, _ := clients[0].Channel("lobby")
		b, _ := clients[1].Join(ctx, "lobby")
		rec := &recorder{}
		b.OnBroadcast(EventNewMessage, rec.onBroadcast)

		if err := a.Send(ctx, EventNewMessage, "early"); !errors.Is(err, shared.ErrNotSubscribed) {
			t.Fatalf("expected ErrNotSubscribed, got %v", err)
		}
		if rec.count() != 0 {
			t.Error("dropped send was delivered")
		}
	})

	t.Run("no callbacks after leave", func(t *testing.T) {
		clients := newMemoryClients(2)
		a, _ := clients[0].Join(ctx, "lobby")
		b, _ := clients[1].Join(ctx, "lobby")
		rec := &recorder{}
		b.OnBroadcast(EventNewMessage, rec.onBroadcast)

		b.Leave()
		a.Send(ctx, EventNewMessage, "after")
		if rec.count() != 0 {
			t.Error("left channel received a broadcast")
		}
		if err := b.Subscribe(ctx); !errors.Is(err, shared.ErrNotSubscribed) {
			t.Errorf("resubscribing a left channel should fail, got %v", err)
		}
	})

	t.Run("rejoin opens a fresh handle", func(t *testing.T) {
		clients := newMemoryClients(1)
		first, _ := clients[0].Join(ctx, "lobby")
		first.Leave()
		second, err := clients[0].Join(ctx, "lobby")
		if err != nil || second == first || second.State() != Subscribed {
			t.Fatalf("expected a fresh subscribed handle, got %v", err)
		}
	})

	t.Run("subscription failure disconnects", func(t *testing.T) {
		client := NewClient(failingTransport{}, shared.NewLogger(&bytes.Buffer{}))
		ch, err := client.Join(ctx, "lobby")
		if err == nil {
			t.Fatal("expected subscribe error")
		}
		if ch.State() != Disconnected {
			t.Errorf("expected disconnected, got %s", ch.State())
		}
	})

	t.Run("malformed frames are ignored", func(t *testing.T) {
		clients := newMemoryClients(1)
		ch, _ := clients[0].Join(ctx, "lobby")
		rec := &recorder{}
		ch.OnBroadcast(EventNewMessage, rec.onBroadcast)

		ch.deliver([]byte(`not json`))
		ch.deliver([]byte(`{"type":"broadcast"}`))
		ch.deliver([]byte(`{"type":"presence","event":"new_message","payload":{}}`))
		if rec.count() != 0 {
			t.Errorf("expected no deliveries, got %d", rec.count())
		}
	})

	t.Run("room name validation", func(t *testing.T) {
		clients := newMemoryClients(1)
		for _, name := range []string{"", "two words", "a.b", "wild*", "tail>"} {
			if _, err := clients[0].Channel(name); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput for %q, got %v", name, err)
			}
		}
	})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Connecting, "connecting"},
		{Subscribed, "subscribed"},
		{Disconnected, "disconnected"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
