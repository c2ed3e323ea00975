package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/playback"
	"github.com/desertthunder/harmony/internal/repositories"
	"github.com/desertthunder/harmony/internal/session"
	"github.com/desertthunder/harmony/internal/shared"
	tu "github.com/desertthunder/harmony/internal/testing"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

func newTestRunner(t *testing.T, db *sql.DB, config *shared.Config) (*Runner, *bytes.Buffer) {
	t.Helper()
	if config == nil {
		config = shared.DefaultConfig()
	}
	output := &bytes.Buffer{}
	return NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Output: output,
		DB:     db,
	}), output
}

func run(r *Runner, args ...string) error {
	app := &cli.Command{Name: "harmony", Commands: r.register(), Writer: &bytes.Buffer{}}
	return app.Run(context.Background(), append([]string{"harmony"}, args...))
}

func mustCreateUser(t *testing.T, db *sql.DB, username string) *models.User {
	t.Helper()
	user := models.NewUser(0, username, "")
	if err := repositories.NewUserRepository(db).Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// seedMatch gives alice two top artists and bob a playlist built from them.
func seedMatch(t *testing.T, db *sql.DB) (alice, bob *models.User) {
	t.Helper()
	alice = mustCreateUser(t, db, "alice")
	bob = mustCreateUser(t, db, "bob")

	if err := repositories.NewTasteRepository(db).ReplaceTopArtists(context.Background(), alice.ID(), []string{"a1", "a2"}); err != nil {
		t.Fatalf("failed to store top artists: %v", err)
	}

	sub := models.NewSubmission("p1", "Bob Mix", "", bob.ID(), []models.CandidateItem{
		{TrackID: "t1", ArtistIDs: []string{"a1"}},
		{TrackID: "t2", ArtistIDs: []string{"a2"}},
	})
	if err := repositories.NewSubmissionRepository(db).Create(sub); err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}
	return alice, bob
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			input := strings.NewReader("")
			httpClient := &http.Client{}
			db := tu.MustOpenDatabase(t)

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				Input:      input,
				HTTPClient: httpClient,
				DB:         db,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.input != input {
				t.Error("expected input to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if got, err := runner.database(); err != nil || got != db {
				t.Errorf("expected provided database, got %v (%v)", got, err)
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("database", func(t *testing.T) {
		t.Run("opens and migrates the configured path", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Database.Path = filepath.Join(t.TempDir(), "harmony.db")
			runner, _ := newTestRunner(t, nil, config)

			db, err := runner.database()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if again, _ := runner.database(); again != db {
				t.Error("expected the database to be reused")
			}
			tu.AssertFileExists(t, config.Database.Path)

			if err := runner.Close(); err != nil {
				t.Errorf("expected clean close, got %v", err)
			}
		})

		t.Run("does not close a provided database", func(t *testing.T) {
			db := tu.MustOpenDatabase(t)
			runner, _ := newTestRunner(t, db, nil)
			runner.Close()

			if err := db.Ping(); err != nil {
				t.Errorf("expected database to stay open, got %v", err)
			}
		})
	})

	t.Run("user", func(t *testing.T) {
		db := tu.MustOpenDatabase(t)
		runner, _ := newTestRunner(t, db, nil)
		mustCreateUser(t, db, "alice")

		if _, err := runner.user(""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if _, err := runner.user("nobody"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if u, err := runner.user("alice"); err != nil || u.Username() != "alice" {
			t.Errorf("expected alice, got %v (%v)", u, err)
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		if len(commands) == 0 {
			t.Error("expected at least one command to be registered")
		}

		seen := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
				continue
			}
			if seen[cmd.Name] {
				t.Errorf("duplicate command %q", cmd.Name)
			}
			seen[cmd.Name] = true
		}
		for _, name := range []string{"setup", "db", "auth", "sync", "submit", "match", "compare", "chat", "play", "serve"} {
			if !seen[name] {
				t.Errorf("expected %q to be registered", name)
			}
		}
	})
}

func TestMatchCommands(t *testing.T) {
	t.Run("match renders csv", func(t *testing.T) {
		db := tu.MustOpenDatabase(t)
		seedMatch(t, db)
		runner, output := newTestRunner(t, db, nil)

		if err := run(runner, "match", "--user", "alice", "--format", "csv"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		result := output.String()
		if !strings.HasPrefix(result, "Rank,Playlist ID,Name,Submitted By,Score,Tracks") {
			t.Errorf("expected csv header, got %q", result)
		}
		if !strings.Contains(result, "1,p1,Bob Mix,") || !strings.Contains(result, "1.0000,2") {
			t.Errorf("expected bob's playlist ranked first, got %q", result)
		}
	})

	t.Run("match records results", func(t *testing.T) {
		db := tu.MustOpenDatabase(t)
		alice, _ := seedMatch(t, db)
		runner, _ := newTestRunner(t, db, nil)

		if err := run(runner, "match", "--user", "alice", "--format", "json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		saved, err := repositories.NewMatchRepository(db).Matches(context.Background(), alice.ID())
		if err != nil || len(saved) != 1 || saved[0].PlaylistID != "p1" {
			t.Errorf("expected saved match for p1, got %v (%v)", saved, err)
		}
	})

	t.Run("match writes to a file", func(t *testing.T) {
		db := tu.MustOpenDatabase(t)
		seedMatch(t, db)
		runner, output := newTestRunner(t, db, nil)
		path := filepath.Join(t.TempDir(), "matches.csv")

		if err := run(runner, "match", "--user", "alice", "--format", "csv", "--output", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(output.String(), "1 matches written to") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("match rejects unknown format", func(t *testing.T) {
		db := tu.MustOpenDatabase(t)
		seedMatch(t, db)
		runner, _ := newTestRunner(t, db, nil)

		if err := run(runner, "match", "--user", "alice", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("compare", func(t *testing.T) {
		db := tu.MustOpenDatabase(t)
		seedMatch(t, db)
		runner, output := newTestRunner(t, db, nil)

		if err := run(runner, "compare", "--a", "alice", "--b", "bob", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), `"similar":true`) {
			t.Errorf("expected similar users, got %q", output.String())
		}
	})
}

func providerServer(t *testing.T, handler http.HandlerFunc) *shared.Config {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	config := shared.DefaultConfig()
	config.Credentials.Spotify.ClientID = "id"
	config.Credentials.Spotify.ClientSecret = "secret"
	config.Provider.BaseURL = srv.URL
	config.Provider.RequestsPerSecond = 0
	return config
}

func TestProviderCommands(t *testing.T) {
	t.Run("saveSession creates the user and stores the token", func(t *testing.T) {
		config := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/me" || r.Header.Get("Authorization") != "Bearer tok" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"sp-alice","display_name":"Alice","images":[{"url":"http://img/a.jpg"}]}`))
		})
		db := tu.MustOpenDatabase(t)
		runner, _ := newTestRunner(t, db, config)
		ctx := context.Background()

		tok := &oauth2.Token{AccessToken: "tok", RefreshToken: "ref", Expiry: time.Now().Add(time.Hour)}
		user, err := runner.saveSession(ctx, tok)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if user.Username() != "sp-alice" || user.AvatarURL() != "http://img/a.jpg" {
			t.Errorf("unexpected user %s %s", user.Username(), user.AvatarURL())
		}

		stored, err := repositories.NewSessionRepository(db).Load(ctx, user.ID())
		if err != nil || stored.RefreshToken != "ref" || stored.ProviderUserID != "sp-alice" {
			t.Errorf("unexpected session %+v (%v)", stored, err)
		}

		again, err := runner.saveSession(ctx, tok)
		if err != nil || again.ID() != user.ID() {
			t.Errorf("expected the same user on second sign-in, got %v (%v)", again, err)
		}
	})

	t.Run("saveSession rejects an empty token", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.MustOpenDatabase(t), nil)
		if _, err := runner.saveSession(context.Background(), &oauth2.Token{}); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("sync stores top artists", func(t *testing.T) {
		config := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/me/top/artists" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"items":[{"id":"x1","name":"X1"},{"id":"x2","name":"X2"}],"total":2}`))
		})
		db := tu.MustOpenDatabase(t)
		alice := mustCreateUser(t, db, "alice")
		err := repositories.NewSessionRepository(db).Save(context.Background(), models.ProviderSession{
			UserID:      alice.ID(),
			AccessToken: "tok",
			ExpiresAt:   time.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("failed to save session: %v", err)
		}
		runner, output := newTestRunner(t, db, config)

		if err := run(runner, "sync", "--user", "alice"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Stored 2 top artists") {
			t.Errorf("unexpected output %q", output.String())
		}

		ids, _ := repositories.NewTasteRepository(db).TopArtists(context.Background(), alice.ID())
		if len(ids) != 2 {
			t.Errorf("expected 2 stored artists, got %v", ids)
		}
	})

	t.Run("sync without a session", func(t *testing.T) {
		db := tu.MustOpenDatabase(t)
		mustCreateUser(t, db, "alice")
		runner, _ := newTestRunner(t, db, nil)

		if err := run(runner, "sync", "--user", "alice"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestDatabaseCommands(t *testing.T) {
	db := tu.MustOpenDatabase(t)
	runner, output := newTestRunner(t, db, nil)

	if err := run(runner, "db", "status"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(output.String(), "✓ 000") {
		t.Errorf("expected applied migrations, got %q", output.String())
	}

	output.Reset()
	if err := run(runner, "db", "rollback"); err != nil {
		t.Fatalf("expected rollback to succeed, got %v", err)
	}
	if !strings.Contains(output.String(), "Rolled back") {
		t.Errorf("unexpected output %q", output.String())
	}
}

func TestControl(t *testing.T) {
	runner, output := newTestRunner(t, nil, nil)
	controller := playback.NewController(nil, nil, nil, playback.WithLogger(shared.NewLogger(&bytes.Buffer{})))
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		if err := runner.control(ctx, controller, ""); !errors.Is(err, shared.ErrNoPlaylists) {
			t.Errorf("expected ErrNoPlaylists, got %v", err)
		}
	})

	t.Run("controls before connecting", func(t *testing.T) {
		for _, key := range []string{" ", "n", "b", "+", "m", "s"} {
			if err := runner.control(ctx, controller, key); !errors.Is(err, shared.ErrNotReady) {
				t.Errorf("%q: expected ErrNotReady, got %v", key, err)
			}
		}
	})

	t.Run("unknown input", func(t *testing.T) {
		if err := runner.control(ctx, controller, "zz"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("status", func(t *testing.T) {
		output.Reset()
		if err := runner.control(ctx, controller, "i"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "State: uninitialized") {
			t.Errorf("unexpected status %q", output.String())
		}
	})
}

type stubTokens struct{ err error }

func (s *stubTokens) Token(context.Context) (string, error)        { return "tok", s.err }
func (s *stubTokens) ForceRefresh(context.Context) (string, error) { return "tok", s.err }

func TestSessionTokens(t *testing.T) {
	ctx := context.Background()

	setup := func() (*stubTokens, *session.Manager, *[]session.Event) {
		stub := &stubTokens{}
		manager := session.NewManager(shared.NewLogger(&bytes.Buffer{}))
		manager.SignIn("u1", "spotify-u1")
		var events []session.Event
		manager.Subscribe(func(_ models.UserSession, ev session.Event) { events = append(events, ev) })
		return stub, manager, &events
	}

	t.Run("transient failures keep the session", func(t *testing.T) {
		stub, manager, events := setup()
		tokens := sessionTokens{tokens: stub, manager: manager}

		stub.err = shared.ErrRefreshFailed
		if _, err := tokens.Token(ctx); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}
		if !manager.Current().SignedIn() || len(*events) != 0 {
			t.Errorf("expected session to survive, got %+v %v", manager.Current(), *events)
		}
	})

	t.Run("refused refresh signs out once", func(t *testing.T) {
		stub, manager, events := setup()
		tokens := sessionTokens{tokens: stub, manager: manager}

		stub.err = shared.ErrNotAuthenticated
		tokens.Token(ctx)
		tokens.ForceRefresh(ctx)
		if manager.Current().SignedIn() || !errors.Is(manager.Current().Err, shared.ErrNotAuthenticated) {
			t.Errorf("expected failed session, got %+v", manager.Current())
		}
		if len(*events) != 1 || (*events)[0] != session.SignedOut {
			t.Errorf("expected a single sign-out, got %v", *events)
		}
	})

	t.Run("refused refresh disconnects the controller", func(t *testing.T) {
		stub, manager, _ := setup()
		tokens := sessionTokens{tokens: stub, manager: manager}
		controller := playback.NewController(nil, nil, tokens.Token, playback.WithLogger(shared.NewLogger(&bytes.Buffer{})))
		controller.SetQueue([]models.RankedCandidate{{Candidate: models.Candidate{ID: "p1"}, Score: 1}})
		defer manager.Subscribe(controller.HandleSession)()

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go controller.Run(runCtx)

		stub.err = shared.ErrNotAuthenticated
		tokens.Token(ctx)

		deadline := time.Now().Add(2 * time.Second)
		for controller.State() != playback.Disconnected && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		snap := controller.Snapshot()
		if snap.State != playback.Disconnected || len(snap.Queue) != 0 {
			t.Errorf("expected disconnected with empty queue, got %s with %d queued", snap.State, len(snap.Queue))
		}
	})
}
