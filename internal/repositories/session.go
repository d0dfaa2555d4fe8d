package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/shared"
)

var _ models.Repository[*models.Session] = (*SessionRepository)(nil)

// SessionRepository implements [models.Repository] for [models.Session] persistence.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session with a generated ID
func (r *SessionRepository) Create(s *models.Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.SetID(shared.GenerateID())

	query := `
		INSERT INTO sessions (id, identity, oauth_state, created_at, expires_at) VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, s.ID(), s.Identity(), s.OAuthState(), dbTime(s.CreatedAt()), dbTime(s.ExpiresAt()))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Expired sessions are returned; callers decide what expiry means.
func (r *SessionRepository) Get(id string) (*models.Session, error) {
	query := `
		SELECT id, identity, oauth_state, created_at, expires_at
		FROM sessions
		WHERE id = ?
	`
	s, err := scanSession(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// Update persists the session's OAuth state and expiry
func (r *SessionRepository) Update(s *models.Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `UPDATE sessions SET oauth_state = ?, expires_at = ? WHERE id = ?`
	result, err := r.db.Exec(query, s.OAuthState(), dbTime(s.ExpiresAt()), s.ID())
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, s.ID()))
}

// Delete removes a session by ID
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id))
}

// List retrieves sessions matching the criteria, oldest first.
//
// Supported criteria: "identity" (string) and "expired_at" ([time.Time], sessions expired at that instant).
func (r *SessionRepository) List(criteria map[string]any) ([]*models.Session, error) {
	query := `
		SELECT id, identity, oauth_state, created_at, expires_at
		FROM sessions
		WHERE 1 = 1
	`
	args := []any{}

	if identity, ok := criteria["identity"].(string); ok && identity != "" {
		query += " AND identity = ?"
		args = append(args, identity)
	}
	if at, ok := criteria["expired_at"].(time.Time); ok {
		query += " AND expires_at <= ?"
		args = append(args, dbTime(at))
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sessions, nil
}

// DeleteExpired removes every session expired at now and returns their identities.
func (r *SessionRepository) DeleteExpired(now time.Time) ([]string, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT identity FROM sessions WHERE expires_at <= ?", dbTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query expired sessions: %w", err)
	}

	var identities []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		identities = append(identities, identity)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM sessions WHERE expires_at <= ?", dbTime(now)); err != nil {
		return nil, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return identities, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		id, identity, state  string
		createdAt, expiresAt time.Time
	)
	if err := row.Scan(&id, &identity, &state, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	return models.RestoreSession(id, identity, state, createdAt, expiresAt), nil
}
