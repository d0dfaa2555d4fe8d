package models

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/incommon/internal/shared"
)

func TestSession(t *testing.T) {
	t.Run("NewSession", func(t *testing.T) {
		s := NewSession("identity", time.Hour)
		if err := s.Validate(); err != nil {
			t.Fatalf("expected valid session, got %v", err)
		}
		if s.Expired(time.Now()) {
			t.Error("new session should not be expired")
		}
		if !s.Expired(time.Now().Add(2 * time.Hour)) {
			t.Error("session should be expired after its ttl")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		if err := NewSession("", time.Hour).Validate(); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty identity, got %v", err)
		}
		if err := NewSession("x", 0).Validate(); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for zero ttl, got %v", err)
		}
	})

	t.Run("SetOAuthState", func(t *testing.T) {
		s := NewSession("identity", time.Hour)
		s.SetOAuthState("abc")
		if s.OAuthState() != "abc" {
			t.Errorf("expected state abc, got %s", s.OAuthState())
		}
	})
}

func TestComparison(t *testing.T) {
	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name  string
			c     *Comparison
			valid bool
		}{
			{name: "tracks", c: NewComparison("id", "Alice", KindTracks, 3), valid: true},
			{name: "unknown kind", c: NewComparison("id", "Alice", "albums", 3)},
			{name: "no identity", c: NewComparison("", "Alice", KindTopArtists, 0)},
			{name: "negative", c: NewComparison("id", "Alice", KindTopTracks, -1)},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.c.Validate()
				if tt.valid && err != nil {
					t.Errorf("expected valid, got %v", err)
				}
				if !tt.valid && !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			})
		}
	})

	t.Run("Partial", func(t *testing.T) {
		c := NewComparison("id", "Alice", KindTracks, 250)
		if c.Partial() {
			t.Error("comparison without playlist is not partial")
		}
		c.SetPlaylist("pl1", 100)
		if !c.Partial() {
			t.Error("expected partial after adding 100 of 250")
		}
		c.SetPlaylist("pl1", 250)
		if c.Partial() {
			t.Error("expected complete after adding all tracks")
		}
	})
}
