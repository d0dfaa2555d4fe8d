// package models defines the persisted records of the web app
package models

import "time"

// Model is a record stored in SQLite. Sessions and comparisons both implement it.
type Model interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	// Validate is called by repositories before every write.
	Validate() error
}

// Repository is the CRUD surface each SQLite-backed store exposes.
//
// List filters by column name; each store documents the keys it understands and ignores the rest.
type Repository[T Model] interface {
	Create(model T) error
	Get(id string) (T, error)
	Update(model T) error
	Delete(id string) error
	List(criteria map[string]any) ([]T, error)
}
