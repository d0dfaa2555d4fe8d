package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/shared"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenDatabase(context.Background(), shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

func TestSessionRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewSessionRepository(db)

		s := models.NewSession(shared.GenerateID(), time.Hour)
		if err := repo.Create(s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if s.ID() == "" {
			t.Error("expected ID to be generated")
		}

		got, err := repo.Get(s.ID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Identity() != s.Identity() {
			t.Errorf("expected identity %s, got %s", s.Identity(), got.Identity())
		}
		if !got.ExpiresAt().Equal(dbTime(s.ExpiresAt())) {
			t.Errorf("expected expiry %v, got %v", dbTime(s.ExpiresAt()), got.ExpiresAt())
		}
	})

	t.Run("Create/ValidationError", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewSessionRepository(db)

		err := repo.Create(models.NewSession("", time.Hour))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Create/DuplicateIdentity", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewSessionRepository(db)

		identity := shared.GenerateID()
		if err := repo.Create(models.NewSession(identity, time.Hour)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := repo.Create(models.NewSession(identity, time.Hour)); err == nil {
			t.Error("expected unique constraint error for duplicate identity")
		}
	})

	t.Run("Get/NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewSessionRepository(db)

		_, err := repo.Get("missing")
		if !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewSessionRepository(db)

		s := models.NewSession(shared.GenerateID(), time.Hour)
		if err := repo.Create(s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		s.SetOAuthState("state-123")
		if err := repo.Update(s); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, err := repo.Get(s.ID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.OAuthState() != "state-123" {
			t.Errorf("expected oauth state to persist, got %q", got.OAuthState())
		}
	})

	t.Run("Update/NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewSessionRepository(db)

		s := models.NewSession(shared.GenerateID(), time.Hour)
		s.SetID("missing")
		if err := repo.Update(s); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewSessionRepository(db)

		s := models.NewSession(shared.GenerateID(), time.Hour)
		if err := repo.Create(s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := repo.Delete(s.ID()); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(s.ID()); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected session to be gone, got %v", err)
		}
		if err := repo.Delete(s.ID()); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound on second delete, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewSessionRepository(db)

		now := time.Now().UTC()
		live := models.RestoreSession("", shared.GenerateID(), "", now.Add(-time.Minute), now.Add(time.Hour))
		stale := models.RestoreSession("", shared.GenerateID(), "", now.Add(-2*time.Hour), now.Add(-time.Hour))
		for _, s := range []*models.Session{live, stale} {
			if err := repo.Create(s); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		all, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 sessions, got %d", len(all))
		}
		if all[0].Identity() != stale.Identity() {
			t.Errorf("expected oldest session first")
		}

		byIdentity, err := repo.List(map[string]any{"identity": live.Identity()})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(byIdentity) != 1 || byIdentity[0].ID() != live.ID() {
			t.Errorf("expected only the live session, got %d", len(byIdentity))
		}

		expired, err := repo.List(map[string]any{"expired_at": now})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(expired) != 1 || expired[0].Identity() != stale.Identity() {
			t.Errorf("expected only the stale session, got %d", len(expired))
		}
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewSessionRepository(db)

		now := time.Now().UTC()
		live := models.RestoreSession("", shared.GenerateID(), "", now.Add(-time.Minute), now.Add(time.Hour))
		stale := models.RestoreSession("", shared.GenerateID(), "", now.Add(-2*time.Hour), now.Add(-time.Hour))
		for _, s := range []*models.Session{live, stale} {
			if err := repo.Create(s); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		identities, err := repo.DeleteExpired(now)
		if err != nil {
			t.Fatalf("DeleteExpired failed: %v", err)
		}
		if len(identities) != 1 || identities[0] != stale.Identity() {
			t.Errorf("expected [%s], got %v", stale.Identity(), identities)
		}
		if _, err := repo.Get(live.ID()); err != nil {
			t.Errorf("expected live session to survive: %v", err)
		}
		if _, err := repo.Get(stale.ID()); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected stale session to be deleted, got %v", err)
		}

		again, err := repo.DeleteExpired(now)
		if err != nil {
			t.Fatalf("DeleteExpired failed: %v", err)
		}
		if len(again) != 0 {
			t.Errorf("expected nothing left to prune, got %v", again)
		}
	})
}

func TestComparisonRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewComparisonRepository(db)

		c := models.NewComparison(shared.GenerateID(), "Ada", models.KindTracks, 120)
		c.SetPlaylist("pl1", 120)
		if err := repo.Create(c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := repo.Get(c.ID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.VisitorName() != "Ada" || got.Kind() != models.KindTracks {
			t.Errorf("unexpected comparison: %+v", got)
		}
		if got.CommonCount() != 120 || got.Added() != 120 || got.PlaylistID() != "pl1" {
			t.Errorf("expected counts and playlist to persist, got %d/%d %s", got.Added(), got.CommonCount(), got.PlaylistID())
		}
	})

	t.Run("Create/ValidationError", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewComparisonRepository(db)

		err := repo.Create(models.NewComparison(shared.GenerateID(), "Ada", "albums", 1))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Get/NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewComparisonRepository(db)

		if _, err := repo.Get("missing"); !errors.Is(err, ErrComparisonNotFound) {
			t.Errorf("expected ErrComparisonNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewComparisonRepository(db)

		c := models.NewComparison(shared.GenerateID(), "Ada", models.KindTracks, 250)
		if err := repo.Create(c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		c.SetPlaylist("pl1", 100)
		if err := repo.Update(c); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, err := repo.Get(c.ID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !got.Partial() {
			t.Error("expected partial comparison after update")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewComparisonRepository(db)

		c := models.NewComparison(shared.GenerateID(), "Ada", models.KindTopArtists, 3)
		if err := repo.Create(c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := repo.Delete(c.ID()); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(c.ID()); !errors.Is(err, ErrComparisonNotFound) {
			t.Errorf("expected ErrComparisonNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewComparisonRepository(db)

		ada := shared.GenerateID()
		base := time.Now().UTC().Add(-time.Hour)
		records := []*models.Comparison{
			models.RestoreComparison("", ada, "Ada", models.KindTracks, 5, "", 0, base),
			models.RestoreComparison("", ada, "Ada", models.KindTopArtists, 2, "", 0, base.Add(time.Minute)),
			models.RestoreComparison("", shared.GenerateID(), "Bo", models.KindTracks, 7, "", 0, base.Add(2*time.Minute)),
		}
		for _, c := range records {
			if err := repo.Create(c); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		all, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 comparisons, got %d", len(all))
		}
		if all[0].VisitorName() != "Bo" {
			t.Errorf("expected newest first, got %s", all[0].VisitorName())
		}

		mine, err := repo.List(map[string]any{"identity": ada})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(mine) != 2 {
			t.Errorf("expected 2 comparisons for identity, got %d", len(mine))
		}

		tracks, err := repo.List(map[string]any{"kind": models.KindTracks, "limit": 1})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(tracks) != 1 || tracks[0].VisitorName() != "Bo" {
			t.Errorf("expected newest track comparison only, got %d", len(tracks))
		}
	})

	t.Run("CountByKind", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewComparisonRepository(db)

		for _, kind := range []string{models.KindTracks, models.KindTracks, models.KindTopTracks} {
			if err := repo.Create(models.NewComparison(shared.GenerateID(), "Ada", kind, 1)); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		counts, err := repo.CountByKind()
		if err != nil {
			t.Fatalf("CountByKind failed: %v", err)
		}
		if counts[models.KindTracks] != 2 || counts[models.KindTopTracks] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}
		if _, ok := counts[models.KindTopArtists]; ok {
			t.Error("expected no top_artists entry")
		}
	})
}
