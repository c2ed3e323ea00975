package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/matching"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/repositories"
	"github.com/desertthunder/harmony/internal/services"
	"github.com/desertthunder/harmony/internal/session"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/desertthunder/harmony/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	db         *sql.DB
	ownsDB     bool
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	DB         *sql.DB // Opened from the config on first use when nil
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		db:         opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, dbCommand, authCommand, syncCommand, submitCommand,
		matchCommand, compareCommand, chatCommand, playCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by subsequent commands.
func (r *Runner) SetLogger(l *log.Logger) { r.logger = l }

// Close releases the database if the runner opened it.
func (r *Runner) Close() error {
	if r.db == nil || !r.ownsDB {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// database opens the configured database on first use and applies pending migrations.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db, r.ownsDB = db, true
	return db, nil
}

// user resolves a username to a stored user.
func (r *Runner) user(username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: --user is required", shared.ErrMissingArgument)
	}
	db, err := r.database()
	if err != nil {
		return nil, err
	}

	user, err := repositories.NewUserRepository(db).GetByUsername(username)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: unknown user %q, run 'harmony auth' first", shared.ErrNotAuthenticated, username)
	}
	return user, err
}

// tokens builds the refreshing token cache for a signed-in user.
func (r *Runner) tokens(ctx context.Context, userID string, opts ...session.CacheOption) (*session.TokenCache, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}

	store := repositories.NewSessionRepository(db)
	stored, err := store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	refresher := session.NewOAuthRefresher(r.config.Credentials.Spotify, store, userID, session.WithHTTPClient(r.httpClient))
	opts = append([]session.CacheOption{
		session.WithBuffer(r.config.Session.RefreshBuffer()),
		session.WithInitialToken(session.TokenFromSession(stored)),
		session.WithCacheLogger(r.logger),
	}, opts...)
	return session.NewTokenCache(refresher, opts...), nil
}

func (r *Runner) spotify(tokens services.TokenProvider) *services.SpotifyService {
	return services.NewSpotifyService(tokens,
		services.FromConfig(r.config.Provider),
		services.WithHTTPClient(r.httpClient),
		services.WithLogger(r.logger),
	)
}

// engine wires the match engine over the database. A nil catalog leaves the sync jobs disabled.
func (r *Runner) engine(db *sql.DB, catalog tasks.Catalog) *tasks.MatchEngine {
	tastes := repositories.NewTasteRepository(db)
	submissions := repositories.NewSubmissionRepository(db)

	builder := matching.NewBuilder(r.logger,
		matching.SourceFunc{Label: "top_artists", Fn: tastes.TopArtists},
		matching.SourceFunc{Label: "submitted", Fn: tastes.SubmittedArtists},
	)

	opts := []tasks.Option{
		tasks.WithRecorder(repositories.NewMatchRepository(db)),
		tasks.WithTopArtistStore(tastes),
		tasks.WithSubmissionStore(submissions),
		tasks.WithLogger(r.logger),
	}
	if catalog != nil {
		opts = append(opts, tasks.WithCatalog(catalog))
	}

	return tasks.NewMatchEngine(builder, matching.NewRanker(matching.WithThreshold(r.rankerThreshold())), submissions, opts...)
}

// progress logs engine updates until the returned stop func is called.
func (r *Runner) progress() (chan tasks.ProgressUpdate, func()) {
	updates := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range updates {
			r.logger.Debug(u.Message, "phase", u.Phase.String(), "step", u.Step, "total", u.Total)
		}
	}()
	return updates, func() {
		close(updates)
		<-done
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
