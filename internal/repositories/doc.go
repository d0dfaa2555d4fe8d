// Package repositories implements SQLite persistence for the web app's records.
//
// Key Implementations:
//   - [SessionRepository] : browser sessions keyed by the signed cookie, with expiry pruning
//   - [ComparisonRepository] : comparison history listed by the CLI
//
// Both implement models.Repository. Tables are created by the embedded migrations in the shared package.
package repositories
