package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/shared"
)

var _ models.Repository[*models.Comparison] = (*ComparisonRepository)(nil)

// ErrComparisonNotFound is returned when a comparison ID does not exist.
var ErrComparisonNotFound = errors.New("comparison not found")

// ComparisonRepository implements [models.Repository] for [models.Comparison] history.
type ComparisonRepository struct {
	db *sql.DB
}

// NewComparisonRepository creates a new [ComparisonRepository] with the given database connection
func NewComparisonRepository(db *sql.DB) *ComparisonRepository {
	return &ComparisonRepository{db: db}
}

// Create inserts a comparison with a generated ID
func (r *ComparisonRepository) Create(c *models.Comparison) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	c.SetID(shared.GenerateID())

	query := `
		INSERT INTO comparisons (id, identity, visitor_name, kind, common_count, playlist_id, added, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		c.ID(), c.Identity(), c.VisitorName(), c.Kind(), c.CommonCount(), c.PlaylistID(), c.Added(), dbTime(c.CreatedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert comparison: %w", err)
	}
	return nil
}

// Get retrieves a comparison by ID
func (r *ComparisonRepository) Get(id string) (*models.Comparison, error) {
	query := `
		SELECT id, identity, visitor_name, kind, common_count, playlist_id, added, created_at
		FROM comparisons
		WHERE id = ?
	`
	c, err := scanComparison(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrComparisonNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query comparison: %w", err)
	}
	return c, nil
}

// Update persists the playlist outcome of a comparison
func (r *ComparisonRepository) Update(c *models.Comparison) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := r.db.Exec("UPDATE comparisons SET playlist_id = ?, added = ? WHERE id = ?", c.PlaylistID(), c.Added(), c.ID())
	if err != nil {
		return fmt.Errorf("failed to update comparison: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", ErrComparisonNotFound, c.ID()))
}

// Delete removes a comparison by ID
func (r *ComparisonRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM comparisons WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete comparison: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", ErrComparisonNotFound, id))
}

// List retrieves comparisons newest first.
//
// Supported criteria: "identity" (string), "kind" (string) and "limit" (int).
func (r *ComparisonRepository) List(criteria map[string]any) ([]*models.Comparison, error) {
	query := `
		SELECT id, identity, visitor_name, kind, common_count, playlist_id, added, created_at
		FROM comparisons
		WHERE 1 = 1
	`
	args := []any{}

	if identity, ok := criteria["identity"].(string); ok && identity != "" {
		query += " AND identity = ?"
		args = append(args, identity)
	}
	if kind, ok := criteria["kind"].(string); ok && kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparisons: %w", err)
	}
	defer rows.Close()

	var out []*models.Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// CountByKind returns how many comparisons of each kind were recorded.
func (r *ComparisonRepository) CountByKind() (map[string]int, error) {
	rows, err := r.db.Query("SELECT kind, COUNT(*) FROM comparisons GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count comparisons: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func scanComparison(row scanner) (*models.Comparison, error) {
	var (
		id, identity, visitor, kind, playlistID string
		common, added                           int
		createdAt                               time.Time
	)
	if err := row.Scan(&id, &identity, &visitor, &kind, &common, &playlistID, &added, &createdAt); err != nil {
		return nil, err
	}
	return models.RestoreComparison(id, identity, visitor, kind, common, playlistID, added, createdAt), nil
}
