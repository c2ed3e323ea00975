package main

import (
	"context"
	"time"

	"github.com/desertthunder/harmony/internal/formatter"
	"github.com/desertthunder/harmony/internal/matching"
	"github.com/urfave/cli/v3"
)

// Match ranks submitted playlists against the user's taste and prints or writes the report.
func (r *Runner) Match(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	user, err := r.user(cmd.String("user"))
	if err != nil {
		return err
	}
	db, err := r.database()
	if err != nil {
		return err
	}

	engine := r.engine(db, nil)
	updates, stop := r.progress()
	result, err := engine.FindMatches(ctx, user.ID(), updates)
	stop()
	if err != nil {
		return err
	}

	r.logger.Info("match complete", "user", user.Username(), "scored", result.Scored, "retained", len(result.Ranked))

	report := &formatter.MatchReport{
		UserID:      user.Username(),
		Threshold:   r.rankerThreshold(),
		GeneratedAt: time.Now(),
		Matches:     result.Ranked,
	}

	if path := cmd.String("output"); path != "" {
		var cover string
		if len(result.Ranked) > 0 {
			cover = result.Ranked[0].ImageURL
		}
		written, err := formatter.WriteExport(report, format, path, cover)
		if err != nil {
			return err
		}
		return r.writePlain("✓ %d matches written to %s\n", len(result.Ranked), written)
	}

	return formatter.Render(r.output, format, report)
}

// Compare reports how similar two users' profiles are.
func (r *Runner) Compare(ctx context.Context, cmd *cli.Command) error {
	a, err := r.user(cmd.String("a"))
	if err != nil {
		return err
	}
	b, err := r.user(cmd.String("b"))
	if err != nil {
		return err
	}
	db, err := r.database()
	if err != nil {
		return err
	}

	sim, err := r.engine(db, nil).CompareUsers(ctx, a.ID(), b.ID())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"a":       a.Username(),
			"b":       b.Username(),
			"score":   sim.Score,
			"similar": sim.Similar,
		}, false)
	}

	verdict := "not similar"
	if sim.Similar {
		verdict = "similar"
	}
	return r.writePlain("%s and %s: %s (%s)\n", a.Username(), b.Username(), formatter.Percent(sim.Score), verdict)
}

func (r *Runner) rankerThreshold() float64 {
	if t := r.config.Matching.Threshold; t > 0 {
		return t
	}
	return matching.DefaultThreshold
}
