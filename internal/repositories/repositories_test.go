package repositories

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(shared.MemoryDatabase)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func createUser(t *testing.T, db *sql.DB, username string) *models.User {
	t.Helper()

	user := models.NewUser(0, username, "https://img/"+username)
	if err := NewUserRepository(db).Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestUserRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		user := createUser(t, db, "ada")
		if user.ID() == "" {
			t.Error("user ID should be set after creation")
		}
		if user.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", user.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := createUser(t, db, "ada")

		got, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.Username() != "ada" || got.AvatarURL() != "https://img/ada" {
			t.Errorf("unexpected user %s %s", got.Username(), got.AvatarURL())
		}

		byName, err := repo.GetByUsername("ada")
		if err != nil {
			t.Fatalf("failed to get user by username: %v", err)
		}
		if byName.ID() != user.ID() {
			t.Errorf("expected %s, got %s", user.ID(), byName.ID())
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := createUser(t, db, "ada")
		user.SetProviderUserID("spotify-ada")

		if err := repo.Update(user); err != nil {
			t.Fatalf("failed to update user: %v", err)
		}

		got, _ := repo.Get(user.ID())
		if got.ProviderUserID() != "spotify-ada" {
			t.Errorf("expected provider id spotify-ada, got %s", got.ProviderUserID())
		}
	})

	t.Run("Delete And List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		ada := createUser(t, db, "ada")
		createUser(t, db, "bob")

		if err := repo.Delete(ada.ID()); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}

		users, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list users: %v", err)
		}
		if len(users) != 1 || users[0].Username() != "bob" {
			t.Errorf("expected only bob, got %d users", len(users))
		}

		if _, err := repo.Get(ada.ID()); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound for deleted user, got %v", err)
		}
	})
}

func submission(id, by string, items ...models.CandidateItem) *models.Submission {
	return models.NewSubmission(id, "playlist "+id, "https://img/"+id, by, items)
}

func TestSubmissionRepository(t *testing.T) {
	items := []models.CandidateItem{
		{TrackID: "t1", ArtistIDs: []string{"a1", "a2"}},
		{TrackID: "t2", ArtistIDs: []string{"a2"}},
		{TrackID: "t3"},
	}

	t.Run("Create And Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSubmissionRepository(db)
		if err := repo.Create(submission("pl1", "u1", items...)); err != nil {
			t.Fatalf("failed to create submission: %v", err)
		}

		got, err := repo.Get("pl1")
		if err != nil {
			t.Fatalf("failed to get submission: %v", err)
		}
		if got.SubmittedBy() != "u1" || len(got.Items()) != 3 {
			t.Fatalf("unexpected submission %s with %d items", got.SubmittedBy(), len(got.Items()))
		}
		if !slices.Equal(got.Items()[0].ArtistIDs, []string{"a1", "a2"}) {
			t.Errorf("unexpected first item artists %v", got.Items()[0].ArtistIDs)
		}
		if len(got.Items()[2].ArtistIDs) != 0 {
			t.Errorf("track without artists should have none, got %v", got.Items()[2].ArtistIDs)
		}
	})

	t.Run("Update replaces items", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSubmissionRepository(db)
		sub := submission("pl1", "u1", items...)
		if err := repo.Create(sub); err != nil {
			t.Fatalf("failed to create submission: %v", err)
		}

		sub.SetName("renamed")
		sub.SetItems(items[:1])
		if err := repo.Update(sub); err != nil {
			t.Fatalf("failed to update submission: %v", err)
		}

		got, _ := repo.Get("pl1")
		if got.Name() != "renamed" || len(got.Items()) != 1 {
			t.Errorf("unexpected submission %s with %d items", got.Name(), len(got.Items()))
		}
	})

	t.Run("List criteria", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSubmissionRepository(db)
		for _, s := range []*models.Submission{
			submission("pl1", "u1", items[0]),
			submission("pl2", "u2", items[1]),
			submission("pl3", "u1", items[2]),
		} {
			if err := repo.Create(s); err != nil {
				t.Fatalf("failed to create submission: %v", err)
			}
		}

		mine, err := repo.List(map[string]any{"submitted_by": "u1"})
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(mine) != 2 || mine[0].ID() != "pl1" || mine[1].ID() != "pl3" {
			t.Errorf("expected pl1,pl3 in sequence order, got %d", len(mine))
		}

		others, _ := repo.List(map[string]any{"exclude_submitted_by": "u1"})
		if len(others) != 1 || others[0].ID() != "pl2" {
			t.Errorf("expected only pl2")
		}

		if err := repo.Delete("pl2"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		candidates, err := repo.Candidates()
		if err != nil {
			t.Fatalf("failed to list candidates: %v", err)
		}
		if len(candidates) != 2 {
			t.Errorf("deleted submissions should not be candidates, got %d", len(candidates))
		}
		if candidates[0].URI != "spotify:playlist:pl1" || candidates[0].Artists().Len() != 2 {
			t.Errorf("unexpected candidate %+v", candidates[0])
		}
	})
}

func TestMessageRepository(t *testing.T) {
	ctx := context.Background()
	author := models.Author{ProfileID: "u1", Username: "ada"}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Insert assigns numeric id", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMessageRepository(db)
		msg, err := repo.Insert(ctx, models.ChatMessage{
			ID: models.LocalID("tmp"), ClientRef: "tmp", Room: "lobby", Content: "hi",
			Author: author, CreatedAt: base, Optimistic: true,
		})
		if err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
		if !msg.ID.IsPersisted() || msg.Optimistic {
			t.Errorf("expected persisted non-optimistic copy, got %+v", msg)
		}

		got, err := repo.Get(ctx, msg.ID.Int())
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.ClientRef != "tmp" || got.Author.Username != "ada" || !got.CreatedAt.Equal(base) {
			t.Errorf("unexpected stored message %+v", got)
		}
	})

	t.Run("Recent returns newest page ascending", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMessageRepository(db)
		for i, offset := range []int{30, 10, 20, 40} {
			if _, err := repo.Insert(ctx, models.ChatMessage{
				Room: "lobby", Content: string(rune('a' + i)), Author: author,
				CreatedAt: base.Add(time.Duration(offset) * time.Second),
			}); err != nil {
				t.Fatalf("failed to insert: %v", err)
			}
		}
		if _, err := repo.Insert(ctx, models.ChatMessage{Room: "other", Content: "x", Author: author, CreatedAt: base}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		msgs, err := repo.Recent(ctx, "lobby", 3)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}

		var got string
		for _, m := range msgs {
			got += m.Content
		}
		if got != "cad" {
			t.Errorf("expected cad (20s,30s,40s), got %s", got)
		}
	})

	t.Run("Edit and Delete enforce authorship", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMessageRepository(db)
		msg, _ := repo.Insert(ctx, models.ChatMessage{Room: "lobby", Content: "hi", Author: author, CreatedAt: base})

		if _, err := repo.Edit(ctx, msg.ID.Int(), "u2", "hijack"); !errors.Is(err, shared.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if err := repo.Delete(ctx, msg.ID.Int(), "u2"); !errors.Is(err, shared.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}

		edited, err := repo.Edit(ctx, msg.ID.Int(), "u1", "hello")
		if err != nil {
			t.Fatalf("failed to edit: %v", err)
		}
		if edited.Content != "hello" {
			t.Errorf("expected hello, got %s", edited.Content)
		}

		if err := repo.Delete(ctx, msg.ID.Int(), "u1"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if _, err := repo.Get(ctx, msg.ID.Int()); !errors.Is(err, shared.ErrMessageNotFound) {
			t.Errorf("expected ErrMessageNotFound after delete, got %v", err)
		}
		if _, err := repo.Edit(ctx, msg.ID.Int(), "u1", "late"); !errors.Is(err, shared.ErrMessageNotFound) {
			t.Errorf("expected ErrMessageNotFound editing deleted message, got %v", err)
		}
	})
}

func TestTasteRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("top artists", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTasteRepository(db)
		if err := repo.ReplaceTopArtists(ctx, "u1", []string{"b", "a", "b"}); err != nil {
			t.Fatalf("failed to store: %v", err)
		}
		if err := repo.ReplaceTopArtists(ctx, "u1", []string{"c", "a"}); err != nil {
			t.Fatalf("failed to replace: %v", err)
		}

		got, err := repo.TopArtists(ctx, "u1")
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if !slices.Equal(got, []string{"c", "a"}) {
			t.Errorf("expected [c a], got %v", got)
		}
	})

	t.Run("submitted artists", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		subs := NewSubmissionRepository(db)
		_ = subs.Create(submission("pl1", "u1",
			models.CandidateItem{TrackID: "t1", ArtistIDs: []string{"x", "y"}},
			models.CandidateItem{TrackID: "t2", ArtistIDs: []string{"y"}},
		))
		_ = subs.Create(submission("pl2", "u2", models.CandidateItem{TrackID: "t3", ArtistIDs: []string{"z"}}))

		got, err := NewTasteRepository(db).SubmittedArtists(ctx, "u1")
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if !slices.Equal(got, []string{"x", "y"}) {
			t.Errorf("expected [x y], got %v", got)
		}
	})
}

func TestMatchRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewMatchRepository(db)
	ranked := []models.RankedCandidate{
		{Candidate: models.Candidate{ID: "pl1"}, Score: 0.9},
		{Candidate: models.Candidate{ID: "pl2"}, Score: 0.4},
	}
	if err := repo.Record(ctx, "u1", ranked); err != nil {
		t.Fatalf("failed to record: %v", err)
	}
	if err := repo.Record(ctx, "u1", ranked[1:]); err != nil {
		t.Fatalf("failed to re-record: %v", err)
	}

	got, err := repo.Matches(ctx, "u1")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(got) != 1 || got[0].PlaylistID != "pl2" || got[0].Score != 0.4 {
		t.Errorf("unexpected matches %+v", got)
	}
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	user := createUser(t, db, "ada")
	repo := NewSessionRepository(db)

	if _, err := repo.Load(ctx, user.ID()); !errors.Is(err, shared.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s := models.ProviderSession{UserID: user.ID(), AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expiry}
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	s.AccessToken = "a2"
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	got, err := repo.Load(ctx, user.ID())
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if got.AccessToken != "a2" || got.RefreshToken != "r1" || got.TokenType != "Bearer" || !got.ExpiresAt.Equal(expiry) {
		t.Errorf("unexpected session %+v", got)
	}

	if err := repo.Delete(ctx, user.ID()); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := repo.Load(ctx, user.ID()); !errors.Is(err, shared.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated after delete, got %v", err)
	}
}
