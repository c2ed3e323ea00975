// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/

package services

import (
	"fmt"

	"github.com/desertthunder/harmony/internal/shared"
)

// Image represents an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// User represents a Spotify user profile.
type User struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	Country     string  `json:"country"`
	Product     string  `json:"product"` // premium, free, etc.
	Images      []Image `json:"images"`
}

func (u User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: user without id", shared.ErrMalformedPayload)
	}
	return nil
}

// AvatarURL returns the first image, if any.
func (u User) AvatarURL() string {
	if len(u.Images) == 0 {
		return ""
	}
	return u.Images[0].URL
}

// Artist represents a Spotify artist.
type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	URI    string   `json:"uri"`
}

func (a Artist) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: artist %q without id", shared.ErrMalformedPayload, a.Name)
	}
	return nil
}

// Album represents a simplified Spotify album.
type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
	URI    string  `json:"uri"`
}

// Restrictions explains why content is unavailable: "market", "product", "explicit" or "payment_required".
type Restrictions struct {
	Reason string `json:"reason"`
}

// LinkedTrack is the originally requested track when the provider relinked it.
type LinkedTrack struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// Track represents a Spotify track.
//
// IsPlayable is only present when a market was supplied with the request.
type Track struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Artists      []Artist      `json:"artists"`
	Album        Album         `json:"album"`
	DurationMS   int           `json:"duration_ms"`
	URI          string        `json:"uri"`
	IsLocal      bool          `json:"is_local"`
	IsPlayable   *bool         `json:"is_playable,omitempty"`
	Restrictions *Restrictions `json:"restrictions,omitempty"`
	LinkedFrom   *LinkedTrack  `json:"linked_from,omitempty"`
}

// Validate rejects catalog tracks with no id. Local files legitimately have none.
func (t Track) Validate() error {
	if t.ID == "" && !t.IsLocal {
		return fmt.Errorf("%w: track %q without id", shared.ErrMalformedPayload, t.Name)
	}
	return nil
}

// Restricted reports an explicit restriction reason.
func (t Track) Restricted() bool {
	return t.Restrictions != nil && t.Restrictions.Reason != ""
}

// Playable reports whether the provider will start this track.
func (t Track) Playable() bool {
	if t.IsLocal || t.Restricted() {
		return false
	}
	return t.IsPlayable == nil || *t.IsPlayable
}

// ArtistIDs returns the ids of the track's credited artists.
func (t Track) ArtistIDs() []string {
	ids := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// PlaylistItem represents a track within a playlist context.
//
// Position is the item's index in the playlist, filled in by the client.
type PlaylistItem struct {
	AddedAt  string `json:"added_at"`
	IsLocal  bool   `json:"is_local"`
	Track    *Track `json:"track"`
	Position int    `json:"-"`
}

func (i *PlaylistItem) setPosition(n int) { i.Position = n }

func (i PlaylistItem) Validate() error {
	if i.Track == nil {
		return fmt.Errorf("%w: playlist item without track", shared.ErrMalformedPayload)
	}
	return i.Track.Validate()
}

// Local reports whether the item is a local file on the owner's device.
func (i PlaylistItem) Local() bool {
	return i.IsLocal || (i.Track != nil && i.Track.IsLocal)
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

// Playlist represents playlist metadata.
type Playlist struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
	URI    string  `json:"uri"`
	Owner  struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"owner"`
}

func (p Playlist) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: playlist without id", shared.ErrMalformedPayload)
	}
	return nil
}

// ImageURL returns the first image, if any.
func (p Playlist) ImageURL() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// Device is a Spotify Connect device.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	IsRestricted  bool   `json:"is_restricted"`
	VolumePercent *int   `json:"volume_percent"`
}

// PlaybackContext is the collection playback was started from.
type PlaybackContext struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// PlaybackState is the user's current playback as reported by /me/player.
type PlaybackState struct {
	Device       Device           `json:"device"`
	ShuffleState bool             `json:"shuffle_state"`
	Context      *PlaybackContext `json:"context"`
	ProgressMS   int              `json:"progress_ms"`
	IsPlaying    bool             `json:"is_playing"`
	Item         *Track           `json:"item"`
}

// ContextURI returns the playing collection's URI, if any.
func (p PlaybackState) ContextURI() string {
	if p.Context == nil {
		return ""
	}
	return p.Context.URI
}
