package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/matching"
	"github.com/desertthunder/harmony/internal/metrics"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/services"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/desertthunder/harmony/internal/similarity"
)

// MatchResult contains the outcome of a match run.
type MatchResult struct {
	Profile  models.TasteProfile      // Profile the candidates were scored against
	Scored   int                      // Candidates scored (self-submitted ones excluded)
	Ranked   []models.RankedCandidate // Retained candidates, best first
	Recorded bool                     // Whether the ranked list was saved
}

// Similarity reports how close two users' profiles are.
type Similarity struct {
	Score   float64
	Similar bool
}

// Engine defines the matching and sync operations.
type Engine interface {
	// FindMatches builds the user's profile and ranks every candidate playlist against it.
	FindMatches(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*MatchResult, error)

	// CompareUsers reports whether two users' profiles meet the ranker's threshold.
	CompareUsers(ctx context.Context, userA, userB string) (Similarity, error)

	// SyncTopArtists replaces the stored top artists with the provider's current list.
	SyncTopArtists(ctx context.Context, userID string, progress chan<- ProgressUpdate) (int, error)

	// SubmitPlaylist reads a provider playlist and stores it as a candidate submitted by userID.
	SubmitPlaylist(ctx context.Context, userID, playlistID string, progress chan<- ProgressUpdate) (*models.Submission, error)
}

// CandidateSource lists every candidate playlist.
type CandidateSource interface {
	Candidates() ([]models.Candidate, error)
}

// MatchRecorder saves ranked results.
type MatchRecorder interface {
	Record(ctx context.Context, userID string, ranked []models.RankedCandidate) error
}

// TopArtistStore stores a user's top artists.
type TopArtistStore interface {
	ReplaceTopArtists(ctx context.Context, userID string, artistIDs []string) error
}

// SubmissionStore persists submitted playlists.
type SubmissionStore interface {
	Get(id string) (*models.Submission, error)
	Create(sub *models.Submission) error
	Update(sub *models.Submission) error
}

// Catalog is the provider API used by the sync jobs.
type Catalog interface {
	TopArtists(ctx context.Context, limit int) ([]services.Artist, error)
	Playlist(ctx context.Context, playlistID string) (*services.Playlist, error)
	AllPlaylistItems(ctx context.Context, playlistID string) ([]services.PlaylistItem, error)
}

// Option configures a [MatchEngine].
type Option func(*MatchEngine)

// WithRecorder saves every ranked result.
func WithRecorder(r MatchRecorder) Option { return func(e *MatchEngine) { e.recorder = r } }

// WithCatalog enables the provider sync jobs.
func WithCatalog(c Catalog) Option { return func(e *MatchEngine) { e.catalog = c } }

// WithTopArtistStore sets where [MatchEngine.SyncTopArtists] writes.
func WithTopArtistStore(s TopArtistStore) Option { return func(e *MatchEngine) { e.topArtists = s } }

// WithSubmissionStore sets where [MatchEngine.SubmitPlaylist] writes.
func WithSubmissionStore(s SubmissionStore) Option { return func(e *MatchEngine) { e.submissions = s } }

// WithLogger sets the engine's logger.
func WithLogger(l *log.Logger) Option { return func(e *MatchEngine) { e.logger = l } }

// MatchEngine implements [Engine].
type MatchEngine struct {
	builder     *matching.Builder
	ranker      *matching.Ranker
	candidates  CandidateSource
	recorder    MatchRecorder
	catalog     Catalog
	topArtists  TopArtistStore
	submissions SubmissionStore
	logger      *log.Logger
}

var _ Engine = (*MatchEngine)(nil)

// NewMatchEngine creates a MatchEngine over builder, ranker and candidates.
func NewMatchEngine(builder *matching.Builder, ranker *matching.Ranker, candidates CandidateSource, opts ...Option) *MatchEngine {
	e := &MatchEngine{builder: builder, ranker: ranker, candidates: candidates}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = shared.NewLogger(nil)
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func (e *MatchEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// FindMatches builds the profile for userID and ranks the candidate playlists.
func (e *MatchEngine) FindMatches(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*MatchResult, error) {
	if e.builder == nil || e.ranker == nil || e.candidates == nil {
		return nil, fmt.Errorf("%w: match engine not initialized", shared.ErrServiceUnavailable)
	}

	const total = 4
	e.sendProgress(progress, buildProfileUpdate(1, total, nil))
	profile := e.builder.Build(ctx, userID)
	result := &MatchResult{Profile: profile}
	e.sendProgress(progress, buildProfileUpdate(1, total, &profile))

	if profile.Empty() {
		e.logger.Info("empty taste profile, no matches possible", "user", userID)
		return result, nil
	}

	e.sendProgress(progress, fetchCandidatesUpdate(2, total, -1))
	candidates, err := e.candidates.Candidates()
	if err != nil {
		return result, fmt.Errorf("failed to load candidates: %w", err)
	}
	e.sendProgress(progress, fetchCandidatesUpdate(2, total, len(candidates)))

	for _, c := range candidates {
		if c.SubmittedBy != userID {
			result.Scored++
		}
	}
	result.Ranked = e.ranker.Rank(profile, candidates)
	metrics.RecordScored(result.Scored, len(result.Ranked))
	e.sendProgress(progress, scoreUpdate(3, total, result.Scored, len(result.Ranked)))

	if e.recorder != nil {
		e.sendProgress(progress, recordUpdate(4, total, len(result.Ranked)))
		if err := e.recorder.Record(ctx, userID, result.Ranked); err != nil {
			e.logger.Warn("failed to record matches", "user", userID, "error", err)
		} else {
			result.Recorded = true
		}
	}
	return result, nil
}

// CompareUsers builds both profiles and applies the ranker's threshold.
func (e *MatchEngine) CompareUsers(ctx context.Context, userA, userB string) (Similarity, error) {
	if e.builder == nil || e.ranker == nil {
		return Similarity{}, fmt.Errorf("%w: match engine not initialized", shared.ErrServiceUnavailable)
	}

	a := e.builder.Build(ctx, userA)
	b := a
	if userB != userA {
		b = e.builder.Build(ctx, userB)
	}

	return Similarity{
		Score:   similarity.Jaccard(a.Artists, b.Artists),
		Similar: similarity.IsTasteSimilar(userA, userB, a.Artists, b.Artists, e.ranker.Threshold(), nil),
	}, nil
}

// SyncTopArtists fetches the user's top artists and stores them.
func (e *MatchEngine) SyncTopArtists(ctx context.Context, userID string, progress chan<- ProgressUpdate) (int, error) {
	if e.catalog == nil || e.topArtists == nil {
		return 0, fmt.Errorf("%w: sync not configured", shared.ErrServiceUnavailable)
	}

	e.sendProgress(progress, topArtistsUpdate(1, 2, -1))
	artists, err := e.catalog.TopArtists(ctx, 50)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get top artists: %w", shared.ErrAPIRequest, err)
	}

	ids := make([]string, 0, len(artists))
	for _, a := range artists {
		ids = append(ids, a.ID)
	}
	if err := e.topArtists.ReplaceTopArtists(ctx, userID, ids); err != nil {
		return 0, fmt.Errorf("failed to store top artists: %w", err)
	}

	e.sendProgress(progress, topArtistsUpdate(2, 2, len(ids)))
	return len(ids), nil
}

// SubmitPlaylist stores playlistID as a candidate submitted by userID.
//
// Resubmitting refreshes the stored items. A playlist submitted by someone else
// cannot be taken over.
func (e *MatchEngine) SubmitPlaylist(ctx context.Context, userID, playlistID string, progress chan<- ProgressUpdate) (*models.Submission, error) {
	if e.catalog == nil || e.submissions == nil {
		return nil, fmt.Errorf("%w: sync not configured", shared.ErrServiceUnavailable)
	}

	const total = 3
	e.sendProgress(progress, fetchPlaylistUpdate(1, total, ""))
	playlist, err := e.catalog.Playlist(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrPlaylistNotFound, playlistID, err)
	}
	e.sendProgress(progress, fetchPlaylistUpdate(1, total, playlist.Name))

	entries, err := e.catalog.AllPlaylistItems(ctx, playlist.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read playlist items: %w", shared.ErrAPIRequest, err)
	}
	items := candidateItems(entries)
	e.sendProgress(progress, fetchItemsUpdate(2, total, len(items)))

	sub, err := e.submissions.Get(playlist.ID)
	switch {
	case err == nil:
		if sub.SubmittedBy() != userID {
			return nil, fmt.Errorf("%w: playlist %s was submitted by another user", shared.ErrForbidden, playlist.ID)
		}
		sub.SetName(playlist.Name)
		sub.SetImageURL(playlist.ImageURL())
		sub.SetItems(items)
		err = e.submissions.Update(sub)
	case errors.Is(err, shared.ErrPlaylistNotFound):
		sub = models.NewSubmission(playlist.ID, playlist.Name, playlist.ImageURL(), userID, items)
		err = e.submissions.Create(sub)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}

	e.sendProgress(progress, saveSubmissionUpdate(3, total, sub))
	return sub, nil
}

// candidateItems keeps catalog tracks; local files carry no artist ids.
func candidateItems(entries []services.PlaylistItem) []models.CandidateItem {
	items := make([]models.CandidateItem, 0, len(entries))
	for _, entry := range entries {
		if entry.Track == nil || entry.Track.ID == "" || entry.Local() {
			continue
		}
		items = append(items, models.CandidateItem{TrackID: entry.Track.ID, ArtistIDs: entry.Track.ArtistIDs()})
	}
	return items
}
