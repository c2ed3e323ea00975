package main

import (
	"context"

	"github.com/desertthunder/harmony/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync replaces the user's stored top artists with the provider's current list.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	engine, userID, err := r.providerEngine(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	updates, stop := r.progress()
	n, err := engine.SyncTopArtists(ctx, userID, updates)
	stop()
	if err != nil {
		return err
	}

	r.logger.Info("synced top artists", "user", cmd.String("user"), "count", n)
	return r.writePlain("✓ Stored %d top artists\n", n)
}

// Submit stores a provider playlist as a candidate submitted by the user.
func (r *Runner) Submit(ctx context.Context, cmd *cli.Command) error {
	engine, userID, err := r.providerEngine(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	updates, stop := r.progress()
	sub, err := engine.SubmitPlaylist(ctx, userID, cmd.String("playlist"), updates)
	stop()
	if err != nil {
		return err
	}

	artists := sub.Candidate().Artists()
	r.writePlain("✓ Submitted %s\n", sub.Name())
	r.writePlain("  Tracks: %d\n", len(sub.Items()))
	r.writePlain("  Artists: %d\n", len(artists))
	return nil
}

// providerEngine resolves the user and wires the engine to a provider client using their session.
func (r *Runner) providerEngine(ctx context.Context, username string) (*tasks.MatchEngine, string, error) {
	user, err := r.user(username)
	if err != nil {
		return nil, "", err
	}
	tokens, err := r.tokens(ctx, user.ID())
	if err != nil {
		return nil, "", err
	}
	db, err := r.database()
	if err != nil {
		return nil, "", err
	}
	return r.engine(db, r.spotify(tokens)), user.ID(), nil
}
