package matching

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

// Source yields artist ids associated with a user.
type Source interface {
	Name() string
	Artists(ctx context.Context, userID string) ([]string, error)
}

// SourceFunc adapts a function to [Source].
type SourceFunc struct {
	Label string
	Fn    func(ctx context.Context, userID string) ([]string, error)
}

func (s SourceFunc) Name() string { return s.Label }

func (s SourceFunc) Artists(ctx context.Context, userID string) ([]string, error) {
	return s.Fn(ctx, userID)
}

// Builder aggregates a [models.TasteProfile] from its sources.
type Builder struct {
	sources []Source
	logger  *log.Logger
}

// NewBuilder creates a [Builder]. A nil logger writes to stderr.
func NewBuilder(logger *log.Logger, sources ...Source) *Builder {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Builder{sources: sources, logger: logger}
}

// Build fetches every source concurrently and unions the results.
//
// A failing source is logged and contributes nothing. The profile is empty only
// when every source is empty or failed, and callers should skip ranking in that case.
func (b *Builder) Build(ctx context.Context, userID string) models.TasteProfile {
	results := make([][]string, len(b.sources))

	var wg sync.WaitGroup
	for i, src := range b.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := src.Artists(ctx, userID)
			if err != nil {
				b.logger.Warn("taste source failed, continuing without it", "source", src.Name(), "user", userID, "error", err)
				return
			}
			results[i] = ids
		}()
	}
	wg.Wait()

	profile := models.TasteProfile{UserID: userID, Artists: make(models.IDSet)}
	for _, ids := range results {
		profile.Artists.Add(ids...)
	}

	b.logger.Debug("built taste profile", "user", userID, "artists", profile.Artists.Len())
	return profile
}
