package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrSessionLost      = fmt.Errorf("session lost")
	ErrForbidden        = fmt.Errorf("not permitted")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrMalformedPayload   = fmt.Errorf("malformed upstream payload")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Chat errors
	ErrNotSubscribed   = fmt.Errorf("channel not subscribed")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrEmptyContent    = fmt.Errorf("message content is empty")
	ErrContentTooLong  = fmt.Errorf("message content too long")

	// Playback errors
	ErrNotReady           = fmt.Errorf("player not ready")
	ErrNoPlaylists        = fmt.Errorf("no playlists queued")
	ErrPlaybackRestricted = fmt.Errorf("playback restricted")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ConfigError reports a required configuration value that is absent.
//
// Server-side routines return it before attempting any outbound call.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s is required", ErrMissingConfig, e.Field)
}

func (e *ConfigError) Unwrap() error {
	return ErrMissingConfig
}

// IsConfigError reports whether err is (or wraps) a [ConfigError].
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
