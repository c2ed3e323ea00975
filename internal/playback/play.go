package playback

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/harmony/internal/metrics"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/services"
	"github.com/desertthunder/harmony/internal/shared"
)

const fallbackPageSize = 50

// PlayPlaylist starts candidate at startIndex, clamped to zero.
//
// When the provider rejects the playlist with a restriction error, the page of
// items from startIndex is scanned and each playable item is tried as the
// start offset in turn until one plays.
func (c *Controller) PlayPlaylist(ctx context.Context, candidate models.Candidate, startIndex int) error {
	_, device, gen, err := c.ready("play_playlist")
	if err != nil {
		return err
	}

	uri := contextURI(candidate)
	offset := max(0, startIndex)

	err = c.provider.PlayContext(ctx, device, uri, offset)
	switch {
	case err == nil:
	case services.IsRestriction(err):
		c.logger.Warn("playlist restricted, scanning for a playable item", "playlist", candidate.ID, "offset", offset, "error", err)
		if err := c.playFirstAvailable(ctx, device, candidate, offset); err != nil {
			c.notify(NoticeError, fmt.Sprintf("Could not play %q", candidate.Name), err)
			return err
		}
	default:
		c.logger.Error("play playlist failed", "playlist", candidate.ID, "error", err)
		c.notify(NoticeError, fmt.Sprintf("Could not play %q", candidate.Name), err)
		return fmt.Errorf("failed to play %s: %w", candidate.ID, err)
	}

	c.playlistStarted(ctx, gen, candidate)
	return nil
}

func (c *Controller) playFirstAvailable(ctx context.Context, device string, candidate models.Candidate, offset int) error {
	uri := contextURI(candidate)

	page, err := c.provider.PlaylistItems(ctx, candidate.ID, offset, fallbackPageSize)
	if err != nil {
		metrics.FallbackAttempts.WithLabelValues("exhausted").Inc()
		return fmt.Errorf("%w: %q at offset %d: failed to list items: %v", shared.ErrPlaybackRestricted, candidate.Name, offset, err)
	}

	for _, item := range page.Items {
		if !available(item) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.provider.PlayContext(ctx, device, uri, item.Position)
		if err == nil {
			metrics.FallbackAttempts.WithLabelValues("success").Inc()
			c.logger.Info("fallback play succeeded", "playlist", candidate.ID, "offset", item.Position, "track", item.Track.ID)
			return nil
		}
		metrics.FallbackAttempts.WithLabelValues("failure").Inc()
		c.logger.Debug("fallback play failed", "playlist", candidate.ID, "offset", item.Position, "error", err)
	}

	metrics.FallbackAttempts.WithLabelValues("exhausted").Inc()
	return fmt.Errorf("%w: no playable item in %q from offset %d", shared.ErrPlaybackRestricted, candidate.Name, offset)
}

// available filters out local files and tracks the provider will not start.
func available(item services.PlaylistItem) bool {
	return item.Track != nil && !item.Local() && item.Track.Playable()
}

func (c *Controller) playlistStarted(ctx context.Context, gen uint64, candidate models.Candidate) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	if i := slices.IndexFunc(c.queue, func(r models.RankedCandidate) bool { return r.ID == candidate.ID }); i >= 0 {
		c.cursor = i
	}
	current := candidate
	c.current = &current
	c.following = false
	c.mu.Unlock()

	following, err := c.provider.CheckFollowingPlaylist(ctx, candidate.ID)
	if err != nil {
		c.logger.Warn("failed to check playlist follow", "playlist", candidate.ID, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen && c.current != nil && c.current.ID == candidate.ID {
		c.following = following
	}
}

func contextURI(candidate models.Candidate) string {
	if candidate.URI != "" {
		return candidate.URI
	}
	return "spotify:playlist:" + candidate.ID
}
