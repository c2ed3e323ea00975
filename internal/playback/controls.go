package playback

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

// TogglePlay pauses or resumes playback.
func (c *Controller) TogglePlay(ctx context.Context) error {
	player, _, _, err := c.ready("toggle_play")
	if err != nil {
		return err
	}
	if err := player.TogglePlay(ctx); err != nil {
		c.logger.Error("toggle play failed", "error", err)
		return fmt.Errorf("failed to toggle playback: %w", err)
	}
	return nil
}

// NextTrack skips to the next track.
func (c *Controller) NextTrack(ctx context.Context) error {
	player, _, _, err := c.ready("next_track")
	if err != nil {
		return err
	}
	if err := player.NextTrack(ctx); err != nil {
		c.logger.Error("next track failed", "error", err)
		return fmt.Errorf("failed to skip track: %w", err)
	}
	return nil
}

// PreviousTrack returns to the previous track.
func (c *Controller) PreviousTrack(ctx context.Context) error {
	player, _, _, err := c.ready("previous_track")
	if err != nil {
		return err
	}
	if err := player.PreviousTrack(ctx); err != nil {
		c.logger.Error("previous track failed", "error", err)
		return fmt.Errorf("failed to go back a track: %w", err)
	}
	return nil
}

// SetVolume sets the volume, clamped to [0, 1].
//
// A non-zero volume also becomes the level restored by [Controller.ToggleMute].
func (c *Controller) SetVolume(ctx context.Context, volume float64) error {
	player, _, _, err := c.ready("set_volume")
	if err != nil {
		return err
	}
	return c.setVolume(ctx, player, volume)
}

func (c *Controller) setVolume(ctx context.Context, player Player, volume float64) error {
	volume = min(1, max(0, volume))
	if err := player.SetVolume(ctx, volume); err != nil {
		c.logger.Error("set volume failed", "volume", volume, "error", err)
		return fmt.Errorf("failed to set volume: %w", err)
	}

	c.mu.Lock()
	c.volume = volume
	if volume > 0 {
		c.unmuted = volume
	}
	c.mu.Unlock()
	return nil
}

// ToggleMute mutes, or restores the remembered volume (0.5 when none).
func (c *Controller) ToggleMute(ctx context.Context) error {
	player, _, _, err := c.ready("toggle_mute")
	if err != nil {
		return err
	}

	current, err := player.Volume(ctx)
	if err != nil {
		return fmt.Errorf("failed to read volume: %w", err)
	}
	if current > 0 {
		c.mu.Lock()
		c.unmuted = current
		c.mu.Unlock()
		return c.setVolume(ctx, player, 0)
	}

	c.mu.Lock()
	restore := c.unmuted
	c.mu.Unlock()
	if restore <= 0 {
		restore = defaultUnmuteVolume
	}
	return c.setVolume(ctx, player, restore)
}

// ToggleShuffle asks the provider for the opposite of the reported shuffle state.
//
// The local state only changes when the next player_state_changed arrives.
func (c *Controller) ToggleShuffle(ctx context.Context) error {
	_, device, _, err := c.ready("toggle_shuffle")
	if err != nil {
		return err
	}

	c.mu.Lock()
	want := !c.playback.Shuffle
	c.mu.Unlock()

	if err := c.provider.SetShuffle(ctx, device, want); err != nil {
		c.logger.Error("set shuffle failed", "shuffle", want, "error", err)
		c.notify(NoticeError, "Could not change shuffle", err)
		return fmt.Errorf("failed to set shuffle: %w", err)
	}
	return nil
}

// SaveCurrentTrack adds the current track to the library.
func (c *Controller) SaveCurrentTrack(ctx context.Context) error { return c.setSaved(ctx, true) }

// UnsaveCurrentTrack removes the current track from the library.
func (c *Controller) UnsaveCurrentTrack(ctx context.Context) error { return c.setSaved(ctx, false) }

func (c *Controller) setSaved(ctx context.Context, want bool) error {
	op := "save_track"
	if !want {
		op = "unsave_track"
	}
	_, _, gen, err := c.ready(op)
	if err != nil {
		return err
	}

	c.mu.Lock()
	trackID := c.playback.TrackID
	previous := c.trackSaved
	if trackID == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: no current track", shared.ErrInvalidInput)
	}
	c.trackSaved = want
	c.mu.Unlock()

	if want {
		err = c.provider.SaveTracks(ctx, trackID)
	} else {
		err = c.provider.RemoveTracks(ctx, trackID)
	}
	if err != nil {
		c.mu.Lock()
		if c.generation == gen && c.playback.TrackID == trackID {
			c.trackSaved = previous
		}
		c.mu.Unlock()

		c.logger.Error("library update failed", "op", op, "track", trackID, "error", err)
		c.notify(NoticeError, "Could not update your library", err)
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// FollowCurrentPlaylist follows the playing playlist.
func (c *Controller) FollowCurrentPlaylist(ctx context.Context) error { return c.setFollowing(ctx, true) }

// UnfollowCurrentPlaylist unfollows the playing playlist.
func (c *Controller) UnfollowCurrentPlaylist(ctx context.Context) error {
	return c.setFollowing(ctx, false)
}

func (c *Controller) setFollowing(ctx context.Context, want bool) error {
	op := "follow_playlist"
	if !want {
		op = "unfollow_playlist"
	}
	_, _, gen, err := c.ready(op)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: no current playlist", shared.ErrInvalidInput)
	}
	playlistID := c.current.ID
	previous := c.following
	c.following = want
	c.mu.Unlock()

	if want {
		err = c.provider.FollowPlaylist(ctx, playlistID)
	} else {
		err = c.provider.UnfollowPlaylist(ctx, playlistID)
	}
	if err != nil {
		c.mu.Lock()
		if c.generation == gen && c.current != nil && c.current.ID == playlistID {
			c.following = previous
		}
		c.mu.Unlock()

		c.logger.Error("follow update failed", "op", op, "playlist", playlistID, "error", err)
		c.notify(NoticeError, "Could not update followed playlists", err)
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// NextPlaylist plays the next queued playlist, wrapping at the end.
func (c *Controller) NextPlaylist(ctx context.Context) error { return c.stepPlaylist(ctx, 1) }

// PreviousPlaylist plays the previous queued playlist, wrapping at the start.
func (c *Controller) PreviousPlaylist(ctx context.Context) error { return c.stepPlaylist(ctx, -1) }

// stepPlaylist only moves the cursor once the target playlist has started.
func (c *Controller) stepPlaylist(ctx context.Context, step int) error {
	_, _, gen, err := c.ready("step_playlist")
	if err != nil {
		return err
	}

	c.mu.Lock()
	n := len(c.queue)
	if n < 1 {
		c.mu.Unlock()
		return shared.ErrNoPlaylists
	}
	target := (c.cursor + step + n) % n
	next := c.queue[target].Candidate
	c.mu.Unlock()

	if err := c.PlayPlaylist(ctx, next, 0); err != nil {
		return err
	}

	c.mu.Lock()
	if c.generation == gen && target < len(c.queue) && c.queue[target].ID == next.ID {
		c.cursor = target
	}
	c.mu.Unlock()
	return nil
}

// SetQueue replaces the playlist queue and rewinds the cursor.
func (c *Controller) SetQueue(queue []models.RankedCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = slices.Clone(queue)
	c.cursor = 0
}
