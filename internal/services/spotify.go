package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/metrics"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"

	// playlistPageSize is the largest page the items endpoint returns.
	playlistPageSize = 100
)

// SpotifyService is an authenticated client for the Spotify Web API.
type SpotifyService struct {
	client  *resty.Client
	tokens  TokenProvider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	logger  *log.Logger
}

type options struct {
	baseURL         string
	httpClient      *http.Client
	rps             float64
	breakerFailures uint32
	logger          *log.Logger
}

// Option configures a [SpotifyService].
type Option func(*options)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option { return func(o *options) { o.baseURL = u } }

// WithHTTPClient sets the underlying [http.Client].
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithRateLimit paces requests; zero or negative disables pacing.
func WithRateLimit(rps float64) Option { return func(o *options) { o.rps = rps } }

// WithBreakerFailures sets how many consecutive failures open the breaker.
func WithBreakerFailures(n uint32) Option { return func(o *options) { o.breakerFailures = n } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(o *options) { o.logger = l } }

// FromConfig applies the [shared.ProviderConfig] section.
func FromConfig(cfg shared.ProviderConfig) Option {
	return func(o *options) {
		if cfg.BaseURL != "" {
			o.baseURL = cfg.BaseURL
		}
		o.rps = cfg.RequestsPerSecond
		if cfg.BreakerFailures > 0 {
			o.breakerFailures = cfg.BreakerFailures
		}
	}
}

// NewSpotifyService creates a client that authenticates with tokens.
func NewSpotifyService(tokens TokenProvider, opts ...Option) *SpotifyService {
	o := options{baseURL: spotifyBaseURL, httpClient: &http.Client{Timeout: 15 * time.Second}, breakerFailures: 5}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = shared.NewLogger(nil)
	}

	client := resty.NewWithClient(o.httpClient).
		SetBaseURL(strings.TrimRight(o.baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	limit := rate.Inf
	if o.rps > 0 {
		limit = rate.Limit(o.rps)
	}

	logger := o.logger
	threshold := o.breakerFailures
	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "spotify",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &SpotifyService{
		client:  client,
		tokens:  tokens,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
		logger:  logger,
	}
}

// Name returns the name of the service
func (s *SpotifyService) Name() string { return "Spotify" }

type request struct {
	method   string
	endpoint string
	name     string
	query    url.Values
	body     any
}

// do performs an authenticated request and decodes a 2xx body into result.
//
// A 401 triggers exactly one forced token refresh and retry.
func (s *SpotifyService) do(ctx context.Context, req request, result any) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	resp, err := s.send(ctx, req, token)
	if IsUnauthorized(err) {
		s.logger.Debug("access token rejected, refreshing", "endpoint", req.name)
		if token, err = s.tokens.ForceRefresh(ctx); err != nil {
			return fmt.Errorf("failed to refresh access token: %w", err)
		}
		resp, err = s.send(ctx, req, token)
	}
	if err != nil {
		return err
	}

	if result == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		s.logger.Error("malformed response", "endpoint", req.name, "body", shared.Truncate(string(resp.Body()), maxErrorBody))
		return fmt.Errorf("%w: %s: %v", shared.ErrMalformedPayload, req.name, err)
	}
	return nil
}

func (s *SpotifyService) send(ctx context.Context, req request, token string) (*resty.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.breaker.Execute(func() (*resty.Response, error) {
		r := s.client.R().SetContext(ctx).SetAuthToken(token)
		if req.query != nil {
			r.SetQueryParamsFromValues(req.query)
		}
		if req.body != nil {
			r.SetHeader("Content-Type", "application/json").SetBody(req.body)
		}

		resp, err := r.Execute(req.method, req.endpoint)
		if err != nil {
			metrics.RecordProviderRequest(req.name, 0)
			return nil, fmt.Errorf("%w: %s: %w", shared.ErrAPIRequest, req.name, err)
		}

		metrics.RecordProviderRequest(req.name, resp.StatusCode())
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return resp, newAPIError(resp.StatusCode(), resp.Body())
		}
		return resp, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrServiceUnavailable, req.name, err)
	}
	return resp, err
}

// CurrentUser retrieves the signed-in user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := s.do(ctx, request{method: http.MethodGet, endpoint: "/me", name: "me"}, &user); err != nil {
		return nil, err
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	return &user, nil
}

// Track resolves full track metadata against the user's market, including relinking and restrictions.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*Track, error) {
	var track Track
	err := s.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "/tracks/" + url.PathEscape(trackID),
		name:     "track",
		query:    url.Values{"market": {"from_token"}},
	}, &track)
	if err != nil {
		return nil, err
	}
	if err := track.Validate(); err != nil {
		return nil, err
	}
	return &track, nil
}

// Playlist retrieves playlist metadata.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*Playlist, error) {
	var pl Playlist
	err := s.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "/playlists/" + url.PathEscape(playlistID),
		name:     "playlist",
		query:    url.Values{"fields": {"id,name,images,uri,owner(id,display_name)"}},
	}, &pl)
	if err != nil {
		return nil, err
	}
	if err := pl.Validate(); err != nil {
		return nil, err
	}
	return &pl, nil
}

// PlaylistItems fetches one page of a playlist's items starting at offset.
//
// Items that fail validation are logged and dropped from the page.
func (s *SpotifyService) PlaylistItems(ctx context.Context, playlistID string, offset, limit int) (*Page[PlaylistItem], error) {
	if limit <= 0 || limit > playlistPageSize {
		limit = playlistPageSize
	}

	var raw Page[json.RawMessage]
	err := s.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "/playlists/" + url.PathEscape(playlistID) + "/tracks",
		name:     "playlist_items",
		query: url.Values{
			"offset": {strconv.Itoa(max(0, offset))},
			"limit":  {strconv.Itoa(limit)},
			"market": {"from_token"},
		},
	}, &raw)
	if err != nil {
		return nil, err
	}

	page := &Page[PlaylistItem]{Total: raw.Total, Limit: raw.Limit, Offset: raw.Offset, Next: raw.Next}
	page.Items = decodeItems[PlaylistItem](s.logger, "playlist_items", raw.Items)
	for i := range page.Items {
		page.Items[i].Position += max(0, offset)
	}
	return page, nil
}

// AllPlaylistItems pages through every item of a playlist.
//
// Paging stops when the next cursor is absent, unparseable or does not advance.
func (s *SpotifyService) AllPlaylistItems(ctx context.Context, playlistID string) ([]PlaylistItem, error) {
	var items []PlaylistItem
	offset := 0
	for {
		page, err := s.PlaylistItems(ctx, playlistID, offset, playlistPageSize)
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)

		next, ok := nextOffset(page.Next)
		if !ok {
			if page.Next != nil {
				s.logger.Warn("malformed pagination cursor, stopping", "playlist", playlistID, "next", *page.Next)
			}
			return items, nil
		}
		if next <= offset {
			s.logger.Warn("pagination cursor did not advance, stopping", "playlist", playlistID, "offset", offset, "next", next)
			return items, nil
		}
		offset = next
	}
}

// TopArtists returns the user's top artists for the medium term.
func (s *SpotifyService) TopArtists(ctx context.Context, limit int) ([]Artist, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	var raw Page[json.RawMessage]
	err := s.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "/me/top/artists",
		name:     "top_artists",
		query:    url.Values{"limit": {strconv.Itoa(limit)}, "time_range": {"medium_term"}},
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeItems[Artist](s.logger, "top_artists", raw.Items), nil
}

type playRequest struct {
	ContextURI string    `json:"context_uri"`
	Offset     *position `json:"offset,omitempty"`
}

type position struct {
	Position int `json:"position"`
}

// PlayContext starts playback of contextURI on deviceID at item offset.
func (s *SpotifyService) PlayContext(ctx context.Context, deviceID, contextURI string, offset int) error {
	return s.do(ctx, request{
		method:   http.MethodPut,
		endpoint: "/me/player/play",
		name:     "play",
		query:    deviceQuery(deviceID),
		body:     playRequest{ContextURI: contextURI, Offset: &position{Position: max(0, offset)}},
	}, nil)
}

// SetShuffle requests a shuffle state; the player confirms it asynchronously.
func (s *SpotifyService) SetShuffle(ctx context.Context, deviceID string, state bool) error {
	q := deviceQuery(deviceID)
	q.Set("state", strconv.FormatBool(state))
	return s.do(ctx, request{method: http.MethodPut, endpoint: "/me/player/shuffle", name: "shuffle", query: q}, nil)
}

// SaveTracks adds tracks to the user's library.
func (s *SpotifyService) SaveTracks(ctx context.Context, trackIDs ...string) error {
	return s.do(ctx, request{method: http.MethodPut, endpoint: "/me/tracks", name: "save_tracks", query: idsQuery(trackIDs)}, nil)
}

// RemoveTracks removes tracks from the user's library.
func (s *SpotifyService) RemoveTracks(ctx context.Context, trackIDs ...string) error {
	return s.do(ctx, request{method: http.MethodDelete, endpoint: "/me/tracks", name: "remove_tracks", query: idsQuery(trackIDs)}, nil)
}

// CheckSavedTracks reports, per id, whether the track is in the user's library.
func (s *SpotifyService) CheckSavedTracks(ctx context.Context, trackIDs ...string) ([]bool, error) {
	var out []bool
	err := s.do(ctx, request{method: http.MethodGet, endpoint: "/me/tracks/contains", name: "check_saved", query: idsQuery(trackIDs)}, &out)
	if err != nil {
		return nil, err
	}
	if len(out) != len(trackIDs) {
		return nil, fmt.Errorf("%w: expected %d flags, got %d", shared.ErrMalformedPayload, len(trackIDs), len(out))
	}
	return out, nil
}

// FollowPlaylist follows a playlist as the current user.
func (s *SpotifyService) FollowPlaylist(ctx context.Context, playlistID string) error {
	return s.do(ctx, request{
		method:   http.MethodPut,
		endpoint: "/playlists/" + url.PathEscape(playlistID) + "/followers",
		name:     "follow",
		body:     map[string]bool{"public": true},
	}, nil)
}

// UnfollowPlaylist unfollows a playlist.
func (s *SpotifyService) UnfollowPlaylist(ctx context.Context, playlistID string) error {
	return s.do(ctx, request{
		method:   http.MethodDelete,
		endpoint: "/playlists/" + url.PathEscape(playlistID) + "/followers",
		name:     "unfollow",
	}, nil)
}

// CheckFollowingPlaylist reports whether the current user follows a playlist.
func (s *SpotifyService) CheckFollowingPlaylist(ctx context.Context, playlistID string) (bool, error) {
	var out []bool
	err := s.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "/playlists/" + url.PathEscape(playlistID) + "/followers/contains",
		name:     "check_following",
	}, &out)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, fmt.Errorf("%w: expected 1 flag, got %d", shared.ErrMalformedPayload, len(out))
	}
	return out[0], nil
}

type validator interface {
	Validate() error
}

type positioned interface {
	setPosition(int)
}

// decodeItems decodes each raw entry, logging and skipping the ones that do not fit T.
func decodeItems[T validator](logger *log.Logger, endpoint string, raw []json.RawMessage) []T {
	items := make([]T, 0, len(raw))
	for i, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			logger.Warn("skipping undecodable entry", "endpoint", endpoint, "index", i, "error", err, "payload", shared.Truncate(string(r), 120))
			continue
		}
		if err := item.Validate(); err != nil {
			logger.Warn("skipping malformed entry", "endpoint", endpoint, "index", i, "error", err, "payload", shared.Truncate(string(r), 120))
			continue
		}
		if p, ok := any(&item).(positioned); ok {
			p.setPosition(i)
		}
		items = append(items, item)
	}
	return items
}

func nextOffset(next *string) (int, bool) {
	if next == nil || *next == "" {
		return 0, false
	}
	u, err := url.Parse(*next)
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(u.Query().Get("offset"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func deviceQuery(deviceID string) url.Values {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	return q
}

func idsQuery(ids []string) url.Values {
	return url.Values{"ids": {strings.Join(ids, ",")}}
}
