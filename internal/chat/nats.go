package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// SubjectPrefix namespaces room subjects on the broker.
	SubjectPrefix = "harmony.rooms."

	senderHeader = "Harmony-Sender"
	flushTimeout = 5 * time.Second
)

// NATSTransport carries rooms over a NATS connection, one subject per room.
type NATSTransport struct {
	conn     *nats.Conn
	sender   string
	logger   *log.Logger
	mu       sync.Mutex
	watchers map[int]func(State)
	next     int
}

// NewNATSTransport connects to the broker at url.
//
// The connection retries on failure and reconnects on its own; subscribers are
// told about drops and recoveries through their status callback.
func NewNATSTransport(url string, logger *log.Logger, opts ...nats.Option) (*NATSTransport, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	t := &NATSTransport{sender: uuid.NewString(), logger: logger, watchers: make(map[int]func(State))}

	base := []nats.Option{
		nats.Name("harmony-chat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("chat broker disconnected", "error", err)
			t.notify(Disconnected)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("chat broker reconnected", "url", nc.ConnectedUrl())
			t.notify(Subscribed)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			t.notify(Disconnected)
		}),
	}

	conn, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chat broker: %w", err)
	}
	t.conn = conn
	return t, nil
}

func (t *NATSTransport) notify(s State) {
	t.mu.Lock()
	watchers := make([]func(State), 0, len(t.watchers))
	for _, fn := range t.watchers {
		watchers = append(watchers, fn)
	}
	t.mu.Unlock()

	for _, fn := range watchers {
		fn(s)
	}
}

func (t *NATSTransport) Subscribe(ctx context.Context, channel string, deliver func([]byte), status func(State)) (Subscription, error) {
	sub, err := t.conn.Subscribe(SubjectPrefix+channel, func(m *nats.Msg) {
		if m.Header.Get(senderHeader) == t.sender {
			return
		}
		deliver(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := t.conn.FlushWithContext(ctx); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("subscription to %s not confirmed: %w", channel, err)
	}

	t.mu.Lock()
	id := t.next
	t.next++
	if status != nil {
		t.watchers[id] = status
	}
	t.mu.Unlock()

	return &natsSubscription{sub: sub, transport: t, id: id}, nil
}

func (t *NATSTransport) Publish(ctx context.Context, channel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := nats.NewMsg(SubjectPrefix + channel)
	msg.Header.Set(senderHeader, t.sender)
	msg.Data = data
	if err := t.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (t *NATSTransport) Close() error {
	if err := t.conn.Drain(); err != nil {
		t.conn.Close()
		return err
	}
	return nil
}

type natsSubscription struct {
	sub       *nats.Subscription
	transport *NATSTransport
	id        int
	once      sync.Once
	err       error
}

func (s *natsSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.transport.mu.Lock()
		delete(s.transport.watchers, s.id)
		s.transport.mu.Unlock()
		s.err = s.sub.Unsubscribe()
	})
	return s.err
}
