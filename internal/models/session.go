package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/incommon/internal/shared"
)

// Session binds a browser cookie to a token-cache identity.
type Session struct {
	id         string
	identity   string
	oauthState string
	createdAt  time.Time
	updatedAt  time.Time
	expiresAt  time.Time
}

// NewSession creates a session for identity that expires after ttl.
func NewSession(identity string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		identity:  identity,
		createdAt: now,
		updatedAt: now,
		expiresAt: now.Add(ttl),
	}
}

// RestoreSession rebuilds a session loaded from storage.
func RestoreSession(id, identity, oauthState string, createdAt, expiresAt time.Time) *Session {
	return &Session{
		id:         id,
		identity:   identity,
		oauthState: oauthState,
		createdAt:  createdAt,
		updatedAt:  createdAt,
		expiresAt:  expiresAt,
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) SetID(id string)      { s.id = id }
func (s *Session) Identity() string     { return s.identity }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) UpdatedAt() time.Time { return s.updatedAt }
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// Stored reports whether the session has been written to the repository.
func (s *Session) Stored() bool { return s.id != "" }

// OAuthState is the state parameter issued with the last authorize URL, or "" when no consent is pending.
func (s *Session) OAuthState() string { return s.oauthState }

func (s *Session) SetOAuthState(state string) {
	s.oauthState = state
	s.updatedAt = time.Now().UTC()
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.expiresAt)
}

func (s *Session) Validate() error {
	if s.identity == "" {
		return fmt.Errorf("%w: session identity is required", shared.ErrInvalidInput)
	}
	if !s.expiresAt.After(s.createdAt) {
		return fmt.Errorf("%w: session must expire after it is created", shared.ErrInvalidInput)
	}
	return nil
}
