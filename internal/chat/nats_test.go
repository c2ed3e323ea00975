package chat

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/desertthunder/harmony/internal/shared"
)

func runBroker(t *testing.T) string {
	t.Helper()
	b, err := StartBroker("127.0.0.1", -1, shared.NewLogger(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("failed to start broker: %v", err)
	}
	t.Cleanup(b.Shutdown)
	return b.ClientURL()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNATSTransport(t *testing.T) {
	url := runBroker(t)
	logger := shared.NewLogger(&bytes.Buffer{})
	ctx := context.Background()

	connect := func() *Client {
		tr, err := NewNATSTransport(url, logger)
		if err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		t.Cleanup(func() { tr.Close() })
		return NewClient(tr, logger)
	}

	t.Run("broadcast between connections", func(t *testing.T) {
		a, _ := connect().Join(ctx, "lobby")
		b, err := connect().Channel("lobby")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		recA, recB := &recorder{}, &recorder{}
		a.OnBroadcast(EventNewMessage, recA.onBroadcast)
		b.OnBroadcast(EventNewMessage, recB.onBroadcast)
		if err := b.Subscribe(ctx); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := a.Send(ctx, EventNewMessage, map[string]int{"n": 1}); err != nil {
			t.Fatalf("send failed: %v", err)
		}
		waitFor(t, func() bool { return recB.count() == 1 })

		time.Sleep(50 * time.Millisecond)
		if recA.count() != 0 {
			t.Error("sender received its own broadcast")
		}
	})

	t.Run("room over nats", func(t *testing.T) {
		store := newMemoryStore()
		ada := NewRoom("studio", adaAuthor, connect(), store, WithRoomLogger(logger))
		bob := NewRoom("studio", bobAuthor, connect(), store, WithRoomLogger(logger))
		for _, r := range []*Room{ada, bob} {
			if err := r.Open(ctx, nil); err != nil {
				t.Fatalf("open failed: %v", err)
			}
			t.Cleanup(func() { r.Close() })
		}

		msg, err := ada.Send(ctx, "over the wire")
		if err != nil {
			t.Fatalf("send failed: %v", err)
		}
		waitFor(t, func() bool { return bob.reconciler.Len() == 1 })
		equalIDs(t, bob.Messages(), msg.ID.String())
	})
}
