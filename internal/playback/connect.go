package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/services"
	"github.com/desertthunder/harmony/internal/shared"
)

// DefaultPollInterval is how often a [ConnectPlayer] reads the device state.
const DefaultPollInterval = time.Second

// Remote controls the user's active Spotify Connect device.
type Remote interface {
	PlaybackState(ctx context.Context) (*services.PlaybackState, error)
	Pause(ctx context.Context, deviceID string) error
	Resume(ctx context.Context, deviceID string) error
	SkipNext(ctx context.Context, deviceID string) error
	SkipPrevious(ctx context.Context, deviceID string) error
	SetVolume(ctx context.Context, deviceID string, percent int) error
}

var _ Remote = (*services.SpotifyService)(nil)

// ConnectFactory builds [ConnectPlayer]s over remote. A non-positive interval uses [DefaultPollInterval].
func ConnectFactory(remote Remote, interval time.Duration, logger *log.Logger) PlayerFactory {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return func(tokens TokenFunc, emit func(Event)) (Player, error) {
		if remote == nil {
			return nil, fmt.Errorf("%w: no playback remote", shared.ErrServiceUnavailable)
		}
		return &ConnectPlayer{remote: remote, tokens: tokens, emit: emit, interval: interval, logger: logger}, nil
	}
}

// ConnectPlayer remote-controls whichever device is active on the user's account.
//
// The device state is polled; Ready fires when a device appears, NotReady when it
// goes away and StateChanged whenever the track, context or pause state differs.
type ConnectPlayer struct {
	remote   Remote
	tokens   TokenFunc
	emit     func(Event)
	interval time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	device string
	last   *services.PlaybackState
	seen   *PlayerState
	cancel context.CancelFunc
}

// Connect checks the token and starts polling. Failures are reported as events.
func (p *ConnectPlayer) Connect(ctx context.Context) error {
	if _, err := p.tokens(ctx); err != nil {
		p.emit(Event{Kind: EventAuthenticationError, Err: err})
		return nil
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil
	}
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.mu.Unlock()

	go p.loop(pollCtx)
	return nil
}

// Disconnect stops polling; the device keeps playing.
func (p *ConnectPlayer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *ConnectPlayer) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if !p.poll(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll reads the device once and emits what changed. It returns false once polling should stop.
func (p *ConnectPlayer) poll(ctx context.Context) bool {
	state, err := p.remote.PlaybackState(ctx)
	if ctx.Err() != nil {
		return false
	}

	var apiErr *services.APIError
	switch {
	case services.IsUnauthorized(err) || errors.Is(err, shared.ErrNotAuthenticated):
		p.emit(Event{Kind: EventAuthenticationError, Err: err})
		return false
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden:
		p.emit(Event{Kind: EventAccountError, Err: err})
		return false
	case err != nil:
		p.logger.Warn("failed to read playback state", "error", err)
		return true
	}

	p.mu.Lock()
	prevDevice := p.device
	p.last = state
	if state == nil {
		p.device = ""
	} else {
		p.device = state.Device.ID
	}
	changed := p.observe(state)
	p.mu.Unlock()

	switch {
	case state == nil && prevDevice != "":
		p.emit(Event{Kind: EventNotReady, DeviceID: prevDevice})
	case state != nil && state.Device.ID != prevDevice:
		p.emit(Event{Kind: EventReady, DeviceID: state.Device.ID})
	}
	if changed != nil {
		p.emit(Event{Kind: EventStateChanged, State: changed})
	}
	return true
}

// observe returns the new player state if it differs from the last one emitted.
// Progress alone does not count as a change.
func (p *ConnectPlayer) observe(state *services.PlaybackState) *PlayerState {
	next := toPlayerState(state)
	if next == nil {
		p.seen = nil
		return nil
	}
	if p.seen != nil {
		prev := *p.seen
		prev.Position = next.Position
		if prev == *next {
			return nil
		}
	}
	p.seen = next
	copied := *next
	return &copied
}

func toPlayerState(state *services.PlaybackState) *PlayerState {
	if state == nil || state.Item == nil {
		return nil
	}
	ps := &PlayerState{
		TrackID:    state.Item.ID,
		TrackName:  state.Item.Name,
		ContextURI: state.ContextURI(),
		Position:   time.Duration(state.ProgressMS) * time.Millisecond,
		Duration:   time.Duration(state.Item.DurationMS) * time.Millisecond,
		Paused:     !state.IsPlaying,
		Shuffle:    state.ShuffleState,
	}
	if v := state.Device.VolumePercent; v != nil {
		ps.Volume = float64(*v) / 100
		ps.HasVolume = true
	}
	return ps
}

func (p *ConnectPlayer) bound() (string, *services.PlaybackState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == "" {
		return "", nil, fmt.Errorf("%w: no active device", shared.ErrNotReady)
	}
	return p.device, p.last, nil
}

func (p *ConnectPlayer) TogglePlay(ctx context.Context) error {
	device, last, err := p.bound()
	if err != nil {
		return err
	}
	if last != nil && last.IsPlaying {
		return p.remote.Pause(ctx, device)
	}
	return p.remote.Resume(ctx, device)
}

func (p *ConnectPlayer) NextTrack(ctx context.Context) error {
	device, _, err := p.bound()
	if err != nil {
		return err
	}
	return p.remote.SkipNext(ctx, device)
}

func (p *ConnectPlayer) PreviousTrack(ctx context.Context) error {
	device, _, err := p.bound()
	if err != nil {
		return err
	}
	return p.remote.SkipPrevious(ctx, device)
}

// SetVolume takes a volume in [0,1].
func (p *ConnectPlayer) SetVolume(ctx context.Context, volume float64) error {
	device, _, err := p.bound()
	if err != nil {
		return err
	}
	if err := p.remote.SetVolume(ctx, device, int(math.Round(volume*100))); err != nil {
		return err
	}

	p.mu.Lock()
	if p.last != nil {
		percent := int(math.Round(volume * 100))
		p.last.Device.VolumePercent = &percent
	}
	p.mu.Unlock()
	return nil
}

// Volume returns the last polled volume in [0,1]. Devices that hide their volume report 1.
func (p *ConnectPlayer) Volume(context.Context) (float64, error) {
	_, last, err := p.bound()
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if last == nil || last.Device.VolumePercent == nil {
		return 1, nil
	}
	return float64(*last.Device.VolumePercent) / 100, nil
}

// CurrentState reads the device now rather than returning the last poll.
func (p *ConnectPlayer) CurrentState(ctx context.Context) (*PlayerState, error) {
	state, err := p.remote.PlaybackState(ctx)
	if err != nil {
		return nil, err
	}
	return toPlayerState(state), nil
}
