package services

import (
	"context"
	"net/http"
	"strconv"
)

// PlaybackState returns the current playback, or nil when no device is active.
func (s *SpotifyService) PlaybackState(ctx context.Context) (*PlaybackState, error) {
	var state PlaybackState
	if err := s.do(ctx, request{method: http.MethodGet, endpoint: "/me/player", name: "player_state"}, &state); err != nil {
		return nil, err
	}
	// 204 leaves state empty
	if state.Device.ID == "" {
		return nil, nil
	}
	return &state, nil
}

// Pause pauses playback on deviceID.
func (s *SpotifyService) Pause(ctx context.Context, deviceID string) error {
	return s.do(ctx, request{method: http.MethodPut, endpoint: "/me/player/pause", name: "pause", query: deviceQuery(deviceID)}, nil)
}

// Resume resumes the current context on deviceID.
func (s *SpotifyService) Resume(ctx context.Context, deviceID string) error {
	return s.do(ctx, request{method: http.MethodPut, endpoint: "/me/player/play", name: "resume", query: deviceQuery(deviceID)}, nil)
}

// SkipNext skips to the next track.
func (s *SpotifyService) SkipNext(ctx context.Context, deviceID string) error {
	return s.do(ctx, request{method: http.MethodPost, endpoint: "/me/player/next", name: "next", query: deviceQuery(deviceID)}, nil)
}

// SkipPrevious skips to the previous track.
func (s *SpotifyService) SkipPrevious(ctx context.Context, deviceID string) error {
	return s.do(ctx, request{method: http.MethodPost, endpoint: "/me/player/previous", name: "previous", query: deviceQuery(deviceID)}, nil)
}

// SetVolume sets deviceID's volume, clamped to 0..100 percent.
func (s *SpotifyService) SetVolume(ctx context.Context, deviceID string, percent int) error {
	q := deviceQuery(deviceID)
	q.Set("volume_percent", strconv.Itoa(min(100, max(0, percent))))
	return s.do(ctx, request{method: http.MethodPut, endpoint: "/me/player/volume", name: "volume", query: q}, nil)
}
