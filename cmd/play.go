package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/harmony/internal/formatter"
	"github.com/desertthunder/harmony/internal/playback"
	"github.com/desertthunder/harmony/internal/services"
	"github.com/desertthunder/harmony/internal/session"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const volumeStep = 0.1

const playHelp = `Controls:
  enter  play the current playlist    space  play/pause
  n      next track                   b      previous track
  >      next playlist                <      previous playlist
  +/-    volume up/down               m      mute
  s      shuffle                      l      save/unsave track
  f      follow/unfollow playlist     i      status
  q      quit
`

// Play ranks the user's matches and drives their active Spotify device through them.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	user, err := r.user(cmd.String("user"))
	if err != nil {
		return err
	}
	db, err := r.database()
	if err != nil {
		return err
	}

	manager := session.NewManager(r.logger)
	cache, err := r.tokens(ctx, user.ID(), session.OnRefresh(func(*oauth2.Token) { manager.TokenRefreshed() }))
	if err != nil {
		return err
	}
	tokens := sessionTokens{tokens: cache, manager: manager}

	result, err := r.engine(db, nil).FindMatches(ctx, user.ID(), nil)
	if err != nil {
		return err
	}
	if len(result.Ranked) == 0 {
		return fmt.Errorf("%w: no matches for %s yet, try 'harmony sync' and 'harmony submit'", shared.ErrNoPlaylists, user.Username())
	}

	spotify := r.spotify(tokens)
	controller := playback.NewController(spotify, playback.ConnectFactory(spotify, cmd.Duration("poll"), r.logger), tokens.Token,
		playback.WithLogger(r.logger),
		playback.WithNotifier(playback.NotifierFunc(func(n playback.Notice) {
			if n.Err != nil {
				r.writePlain("⚠ %s: %v\n", n.Message, n.Err)
				return
			}
			r.writePlain("→ %s\n", n.Message)
		})),
	)
	defer controller.Disconnect()

	defer manager.Subscribe(controller.HandleSession)()
	manager.SignIn(user.ID(), user.ProviderUserID())

	controller.SetQueue(result.Ranked)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go controller.Run(ctx)

	if err := controller.Connect(ctx); err != nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("%d matched playlists for %s", len(result.Ranked), user.Username()))
	r.writePlain(playHelp)

	scanner := bufio.NewScanner(r.input)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "q" {
			break
		}
		if err := r.control(ctx, controller, line); err != nil {
			if errors.Is(err, shared.ErrNotReady) {
				r.logger.Warn("player not ready yet, is a Spotify device active?", "input", line)
				continue
			}
			r.writePlain("⚠ %v\n", err)
		}
	}
	return scanner.Err()
}

// sessionTokens ends the session when the refresh token is refused, so the
// controller drops its player and queue instead of retrying.
type sessionTokens struct {
	tokens  services.TokenProvider
	manager *session.Manager
}

func (s sessionTokens) Token(ctx context.Context) (string, error) {
	return s.check(s.tokens.Token(ctx))
}

func (s sessionTokens) ForceRefresh(ctx context.Context) (string, error) {
	return s.check(s.tokens.ForceRefresh(ctx))
}

func (s sessionTokens) check(tok string, err error) (string, error) {
	if errors.Is(err, shared.ErrNotAuthenticated) && s.manager.Current().SignedIn() {
		s.manager.Fail(err)
	}
	return tok, err
}

// control applies one line of player input.
func (r *Runner) control(ctx context.Context, c *playback.Controller, line string) error {
	snap := c.Snapshot()

	switch strings.TrimRight(line, "\r\n") {
	case "":
		if len(snap.Queue) == 0 {
			return shared.ErrNoPlaylists
		}
		return c.PlayPlaylist(ctx, snap.Queue[snap.Cursor].Candidate, 0)
	case " ":
		return c.TogglePlay(ctx)
	case "n":
		return c.NextTrack(ctx)
	case "b":
		return c.PreviousTrack(ctx)
	case ">":
		return c.NextPlaylist(ctx)
	case "<":
		return c.PreviousPlaylist(ctx)
	case "+":
		return c.SetVolume(ctx, snap.Volume+volumeStep)
	case "-":
		return c.SetVolume(ctx, snap.Volume-volumeStep)
	case "m":
		return c.ToggleMute(ctx)
	case "s":
		return c.ToggleShuffle(ctx)
	case "l":
		if snap.TrackSaved {
			return c.UnsaveCurrentTrack(ctx)
		}
		return c.SaveCurrentTrack(ctx)
	case "f":
		if snap.PlaylistFollowed {
			return c.UnfollowCurrentPlaylist(ctx)
		}
		return c.FollowCurrentPlaylist(ctx)
	case "i":
		return r.writeStatus(snap)
	case "h", "?":
		return r.writePlain(playHelp)
	default:
		return fmt.Errorf("%w: unknown control %q, press h for help", shared.ErrInvalidInput, line)
	}
}

func (r *Runner) writeStatus(snap playback.Snapshot) error {
	r.writePlain("State: %s\n", snap.State)
	if snap.Current != nil && snap.Cursor < len(snap.Queue) {
		r.writePlain("Playlist: %s (%d/%d, %s)\n", snap.Current.Name, snap.Cursor+1, len(snap.Queue), formatter.Percent(snap.Queue[snap.Cursor].Score))
	}
	if snap.Playback.TrackID != "" {
		state := "playing"
		if snap.Playback.Paused {
			state = "paused"
		}
		r.writePlain("Track: %s (%s)\n", snap.Playback.TrackName, state)
	}
	return r.writePlain("Volume: %.0f%%\n", snap.Volume*100)
}
