package playback

import (
	"context"

	"github.com/desertthunder/harmony/internal/services"
)

// TokenFunc supplies an access token on demand.
type TokenFunc func(ctx context.Context) (string, error)

// Player is the external playback client.
type Player interface {
	Connect(ctx context.Context) error
	Disconnect()
	TogglePlay(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error
	SetVolume(ctx context.Context, volume float64) error
	Volume(ctx context.Context) (float64, error)
	CurrentState(ctx context.Context) (*PlayerState, error)
}

// PlayerFactory builds a [Player]. The player reports its callbacks through emit
// and asks tokens for an access token whenever it needs one.
type PlayerFactory func(tokens TokenFunc, emit func(Event)) (Player, error)

// Provider is the catalog and playback-control API the controller calls.
//
// [services.SpotifyService] satisfies it.
type Provider interface {
	Track(ctx context.Context, trackID string) (*services.Track, error)
	PlaylistItems(ctx context.Context, playlistID string, offset, limit int) (*services.Page[services.PlaylistItem], error)
	PlayContext(ctx context.Context, deviceID, contextURI string, offset int) error
	SetShuffle(ctx context.Context, deviceID string, state bool) error
	SaveTracks(ctx context.Context, trackIDs ...string) error
	RemoveTracks(ctx context.Context, trackIDs ...string) error
	CheckSavedTracks(ctx context.Context, trackIDs ...string) ([]bool, error)
	FollowPlaylist(ctx context.Context, playlistID string) error
	UnfollowPlaylist(ctx context.Context, playlistID string) error
	CheckFollowingPlaylist(ctx context.Context, playlistID string) (bool, error)
}

var _ Provider = (*services.SpotifyService)(nil)
