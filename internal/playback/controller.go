package playback

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/session"
	"github.com/desertthunder/harmony/internal/shared"
)

const (
	defaultUnmuteVolume = 0.5
	eventBuffer         = 64
)

// Option configures a [Controller].
type Option func(*Controller)

// WithNotifier sets where user-facing notices go.
func WithNotifier(n Notifier) Option { return func(c *Controller) { c.notifier = n } }

// WithLogger sets the controller's logger.
func WithLogger(l *log.Logger) Option { return func(c *Controller) { c.logger = l } }

// Snapshot is a copy of the controller's state for display.
type Snapshot struct {
	State            State
	DeviceID         string
	Playback         PlayerState
	Volume           float64
	Queue            []models.RankedCandidate
	Cursor           int
	Current          *models.Candidate
	TrackSaved       bool
	PlaylistFollowed bool
}

// Controller owns one player handle and the ranked playlist queue.
type Controller struct {
	provider Provider
	factory  PlayerFactory
	tokens   TokenFunc
	notifier Notifier
	logger   *log.Logger
	events   chan Event

	mu          sync.Mutex
	state       State
	generation  uint64
	player      Player
	deviceID    string
	playback    PlayerState
	volume      float64
	unmuted     float64
	queue       []models.RankedCandidate
	cursor      int
	current     *models.Candidate
	trackSaved  bool
	following   bool
	lastTrackID string
}

func NewController(provider Provider, factory PlayerFactory, tokens TokenFunc, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		factory:  factory,
		tokens:   tokens,
		events:   make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = shared.NewLogger(nil)
	}
	if c.notifier == nil {
		logger := c.logger
		c.notifier = NotifierFunc(func(n Notice) { logger.Info(n.Message, "error", n.Err) })
	}
	return c
}

// State reports the current readiness.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:            c.state,
		DeviceID:         c.deviceID,
		Playback:         c.playback,
		Volume:           c.volume,
		Queue:            slices.Clone(c.queue),
		Cursor:           c.cursor,
		TrackSaved:       c.trackSaved,
		PlaylistFollowed: c.following,
	}
	if c.current != nil {
		current := *c.current
		s.Current = &current
	}
	return s
}

// Connect creates a player and starts connecting it.
//
// It is a no-op while already Connecting or Ready.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Ready {
		c.mu.Unlock()
		return nil
	}
	c.generation++
	gen := c.generation
	c.state = Connecting
	c.mu.Unlock()

	player, err := c.factory(c.tokens, func(ev Event) {
		ev.generation = gen
		c.Post(ev)
	})
	if err != nil {
		c.Dispatch(ctx, Event{Kind: EventInitializationError, Err: err, generation: gen})
		return fmt.Errorf("failed to create player: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		player.Disconnect()
		return shared.ErrSessionLost
	}
	c.player = player
	c.mu.Unlock()

	if err := player.Connect(ctx); err != nil {
		c.Dispatch(ctx, Event{Kind: EventInitializationError, Err: err, generation: gen})
		return fmt.Errorf("failed to connect player: %w", err)
	}
	return nil
}

// Disconnect releases the player and discards all playback and queue state.
func (c *Controller) Disconnect() {
	c.reset(Disconnected)
}

// Post queues ev for [Controller.Run]. A full queue drops the event.
func (c *Controller) Post(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("player event queue full, dropping event", "event", ev.Kind)
	}
}

// Run applies posted events in order until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.Dispatch(ctx, ev)
		}
	}
}

// HandleSession reacts to session changes; it matches [session.Listener].
func (c *Controller) HandleSession(_ models.UserSession, ev session.Event) {
	if ev == session.SignedOut {
		c.Post(Event{Kind: EventSessionLost})
	}
}

// Dispatch applies one event. Events from a replaced player are ignored.
func (c *Controller) Dispatch(ctx context.Context, ev Event) {
	if ev.generation != 0 && ev.generation != c.currentGeneration() {
		c.logger.Debug("ignoring event from replaced player", "event", ev.Kind)
		return
	}

	switch ev.Kind {
	case EventReady:
		c.onReady(ctx, ev)
	case EventNotReady:
		c.onNotReady(ev)
	case EventStateChanged:
		c.onStateChanged(ctx, ev)
	case EventInitializationError:
		c.degrade("Player failed to initialize", ev)
	case EventAuthenticationError:
		c.degrade("Playback session expired, sign in again", ev)
	case EventAccountError:
		c.degrade("Your account cannot use the player", ev)
	case EventPlaybackError:
		c.logger.Error("playback error", "error", ev.Err)
		c.notify(NoticeError, "Playback failed", ev.Err)
	case EventSessionLost:
		c.reset(Disconnected)
	default:
		c.logger.Warn("unknown player event", "event", ev.Kind)
	}
}

func (c *Controller) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Controller) onReady(ctx context.Context, ev Event) {
	if ev.DeviceID == "" {
		c.logger.Warn("ready event without device id")
		return
	}

	gen := c.currentGeneration()
	if _, err := c.tokens(ctx); err != nil {
		c.degrade("Playback session expired, sign in again", Event{Kind: EventAuthenticationError, Err: err, generation: gen})
		return
	}

	c.mu.Lock()
	if c.generation != gen || (c.state != Connecting && c.state != Ready) {
		c.mu.Unlock()
		return
	}
	c.state = Ready
	c.deviceID = ev.DeviceID
	player := c.player
	c.mu.Unlock()

	c.logger.Info("player ready", "device", ev.DeviceID)
	if player == nil {
		return
	}

	volume, err := player.Volume(ctx)
	if err != nil {
		c.logger.Warn("failed to read device volume", "device", ev.DeviceID, "error", err)
		return
	}
	c.mu.Lock()
	if c.generation == gen {
		c.volume = volume
	}
	c.mu.Unlock()
}

func (c *Controller) onNotReady(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Ready {
		return
	}
	c.state = Connecting
	c.deviceID = ""
	c.logger.Warn("player device went offline", "device", ev.DeviceID)
}

func (c *Controller) onStateChanged(ctx context.Context, ev Event) {
	if ev.State == nil {
		return
	}

	c.mu.Lock()
	if c.state != Ready {
		c.mu.Unlock()
		return
	}
	c.playback = *ev.State
	if ev.State.HasVolume {
		c.volume = ev.State.Volume
	}
	trackID := ev.State.TrackID
	changed := trackID != "" && trackID != c.lastTrackID
	if changed {
		c.lastTrackID = trackID
	}
	gen := c.generation
	c.mu.Unlock()

	if changed {
		c.resolveTrack(ctx, gen, trackID)
	}
}

// resolveTrack fetches full metadata for a newly current track and skips it when unplayable.
func (c *Controller) resolveTrack(ctx context.Context, gen uint64, trackID string) {
	track, err := c.provider.Track(ctx, trackID)
	if err != nil {
		c.logger.Error("failed to resolve track", "track", trackID, "error", err)
		return
	}

	saved := false
	if flags, err := c.provider.CheckSavedTracks(ctx, trackID); err != nil {
		c.logger.Warn("failed to check saved track", "track", trackID, "error", err)
	} else {
		saved = len(flags) == 1 && flags[0]
	}

	c.mu.Lock()
	if c.generation != gen || c.lastTrackID != trackID {
		c.mu.Unlock()
		c.logger.Debug("discarding stale track resolution", "track", trackID)
		return
	}
	c.trackSaved = saved
	c.mu.Unlock()

	if !track.Playable() {
		c.notify(NoticeInfo, fmt.Sprintf("%q is not available, skipping", track.Name), nil)
		if err := c.NextTrack(ctx); err != nil {
			c.logger.Warn("failed to skip unplayable track", "track", trackID, "error", err)
		}
	}
}

// degrade moves to Degraded and discards the player.
func (c *Controller) degrade(message string, ev Event) {
	c.mu.Lock()
	if ev.generation != 0 && ev.generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.state = Degraded
	c.generation++
	player := c.player
	c.player = nil
	c.deviceID = ""
	c.mu.Unlock()

	if player != nil {
		player.Disconnect()
	}
	c.logger.Error("player degraded", "event", ev.Kind, "error", ev.Err)
	c.notify(NoticeError, message, ev.Err)
}

func (c *Controller) reset(to State) {
	c.mu.Lock()
	c.state = to
	c.generation++
	player := c.player
	c.player = nil
	c.deviceID = ""
	c.playback = PlayerState{}
	c.volume = 0
	c.unmuted = 0
	c.queue = nil
	c.cursor = 0
	c.current = nil
	c.trackSaved = false
	c.following = false
	c.lastTrackID = ""
	c.mu.Unlock()

	if player != nil {
		player.Disconnect()
	}
	c.logger.Info("playback session reset", "state", to)
}

func (c *Controller) notify(level NoticeLevel, message string, err error) {
	c.notifier.Notify(Notice{Level: level, Message: message, Err: err})
}

// ready returns the bound player and device, or [shared.ErrNotReady].
func (c *Controller) ready(op string) (Player, string, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Ready || c.deviceID == "" || c.player == nil {
		c.logger.Warn("control ignored, player not ready", "op", op, "state", c.state)
		return nil, "", 0, fmt.Errorf("%w: %s while %s", shared.ErrNotReady, op, c.state)
	}
	return c.player, c.deviceID, c.generation, nil
}
