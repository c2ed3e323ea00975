package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/metrics"
	"github.com/desertthunder/harmony/internal/shared"
)

// State is the connection state of a [Channel].
type State int

const (
	Connecting State = iota
	Subscribed
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client opens room channels on a [Transport].
type Client struct {
	transport Transport
	logger    *log.Logger
}

func NewClient(transport Transport, logger *log.Logger) *Client {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Client{transport: transport, logger: logger}
}

// Channel returns an unsubscribed handle for room.
//
// Register handlers before calling [Channel.Subscribe] so no broadcast is missed.
// Each call returns a fresh handle.
func (c *Client) Channel(room string) (*Channel, error) {
	if err := validateRoom(room); err != nil {
		return nil, err
	}
	return &Channel{
		name:      room,
		transport: c.transport,
		logger:    shared.WithLogger(c.logger, "room", room),
		handlers:  make(map[string][]func(Envelope)),
	}, nil
}

// Join opens and subscribes a channel for room.
func (c *Client) Join(ctx context.Context, room string) (*Channel, error) {
	ch, err := c.Channel(room)
	if err != nil {
		return nil, err
	}
	if err := ch.Subscribe(ctx); err != nil {
		return ch, err
	}
	return ch, nil
}

func validateRoom(room string) error {
	if room == "" {
		return fmt.Errorf("%w: room name is required", shared.ErrInvalidInput)
	}
	if strings.ContainsAny(room, " \t\r\n.*>") {
		return fmt.Errorf("%w: room name %q contains reserved characters", shared.ErrInvalidInput, room)
	}
	return nil
}

// Channel is one subscription to a room.
//
// It moves from Connecting to Subscribed once the transport confirms the
// subscription, and to Disconnected when the connection drops or the channel is
// left. Sends only go out while Subscribed.
type Channel struct {
	name      string
	transport Transport
	logger    *log.Logger

	mu            sync.Mutex
	state         State
	sub           Subscription
	handlers      map[string][]func(Envelope)
	stateHandlers []func(State)
	left          bool
}

// Name returns the room name.
func (ch *Channel) Name() string { return ch.name }

// State reports the current connection state.
func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// OnBroadcast registers fn for broadcasts of event.
func (ch *Channel) OnBroadcast(event string, fn func(Envelope)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.handlers[event] = append(ch.handlers[event], fn)
}

// OnStateChange registers fn for state transitions.
func (ch *Channel) OnStateChange(fn func(State)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.stateHandlers = append(ch.stateHandlers, fn)
}

// Subscribe asks the transport for the room subscription and waits for confirmation.
func (ch *Channel) Subscribe(ctx context.Context) error {
	ch.mu.Lock()
	if ch.left {
		ch.mu.Unlock()
		return fmt.Errorf("%w: channel %s was left", shared.ErrNotSubscribed, ch.name)
	}
	if ch.sub != nil {
		ch.mu.Unlock()
		return nil
	}
	ch.mu.Unlock()

	ch.setState(Connecting)
	sub, err := ch.transport.Subscribe(ctx, ch.name, ch.deliver, ch.setState)
	if err != nil {
		ch.logger.Error("channel subscription failed", "error", err)
		ch.setState(Disconnected)
		return err
	}

	ch.mu.Lock()
	if ch.left {
		ch.mu.Unlock()
		sub.Unsubscribe()
		return fmt.Errorf("%w: channel %s was left", shared.ErrNotSubscribed, ch.name)
	}
	ch.sub = sub
	ch.mu.Unlock()

	ch.setState(Subscribed)
	ch.logger.Debug("channel subscribed")
	return nil
}

// Send broadcasts payload under event to the other participants.
//
// Sends while not Subscribed are dropped and return [shared.ErrNotSubscribed].
func (ch *Channel) Send(ctx context.Context, event string, payload any) error {
	if s := ch.State(); s != Subscribed {
		metrics.SendsDropped.Inc()
		ch.logger.Debug("dropping send on unsubscribed channel", "event", event, "state", s)
		return fmt.Errorf("%w: channel %s is %s", shared.ErrNotSubscribed, ch.name, s)
	}

	data, err := encodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	return ch.transport.Publish(ctx, ch.name, data)
}

// Leave releases the subscription. No callbacks fire afterwards.
func (ch *Channel) Leave() error {
	ch.mu.Lock()
	if ch.left {
		ch.mu.Unlock()
		return nil
	}
	ch.left = true
	ch.state = Disconnected
	sub := ch.sub
	ch.sub = nil
	ch.handlers = nil
	ch.stateHandlers = nil
	ch.mu.Unlock()

	metrics.ChannelStates.WithLabelValues(Disconnected.String()).Inc()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (ch *Channel) setState(s State) {
	ch.mu.Lock()
	if ch.left || ch.state == s {
		ch.mu.Unlock()
		return
	}
	ch.state = s
	handlers := slices.Clone(ch.stateHandlers)
	ch.mu.Unlock()

	metrics.ChannelStates.WithLabelValues(s.String()).Inc()
	for _, fn := range handlers {
		fn(s)
	}
}

func (ch *Channel) deliver(data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		ch.logger.Warn("dropping malformed broadcast", "error", err, "payload", shared.Truncate(string(data), 256))
		return
	}
	if env.Type != TypeBroadcast {
		return
	}

	ch.mu.Lock()
	if ch.left {
		ch.mu.Unlock()
		return
	}
	handlers := slices.Clone(ch.handlers[env.Event])
	ch.mu.Unlock()

	for _, fn := range handlers {
		fn(env)
	}
}
