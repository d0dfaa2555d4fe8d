// Package models defines the records the web app persists in SQLite.
//
//   - [Session] : a browser session bound to a token-cache identity, with the pending OAuth state
//   - [Comparison] : one finished comparison against the reference account
//
// Both implement [Model]. The [Repository] interface defines the CRUD operations the repositories package provides.
package models
