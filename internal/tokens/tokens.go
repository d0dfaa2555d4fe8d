// Package tokens persists one OAuth token cache file per identity.
//
// An identity is either a random UUID assigned to a browser session or a named identity registered on the [Store]
// (the reference account). Identities are validated before any path is built, so a session value can never address a
// file outside the cache directory.
package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/incommon/internal/shared"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrCorruptEntry is returned by [Store.Load] when a cache file exists but cannot be decoded.
var ErrCorruptEntry = errors.New("corrupt token cache entry")

// Entry is the on-disk shape of a cached token.
type Entry struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope"`
}

// NewEntry converts an [oauth2.Token] into an Entry.
//
// The granted scope comes from the token response when present and falls back to requested.
func NewEntry(t *oauth2.Token, requested string) *Entry {
	scope := requested
	if granted, ok := t.Extra("scope").(string); ok && granted != "" {
		scope = granted
	}
	return &Entry{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
		Scope:        scope,
	}
}

// Token converts the entry back into an [oauth2.Token].
func (e *Entry) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  e.AccessToken,
		RefreshToken: e.RefreshToken,
		TokenType:    e.TokenType,
		Expiry:       e.Expiry,
	}
}

// HasScopes reports whether every space-separated scope in want was granted.
func (e *Entry) HasScopes(want string) bool {
	granted := make(map[string]bool)
	for _, s := range strings.Fields(e.Scope) {
		granted[s] = true
	}
	for _, s := range strings.Fields(want) {
		if !granted[s] {
			return false
		}
	}
	return true
}

// ValidateIdentity accepts a canonical UUID string or one of the named identities.
func ValidateIdentity(identity string, named ...string) error {
	for _, n := range named {
		if identity == n {
			return nil
		}
	}
	parsed, err := uuid.Parse(identity)
	if err != nil || parsed.String() != identity {
		return fmt.Errorf("%w: %q", shared.ErrInvalidIdentity, identity)
	}
	return nil
}

// Store reads and writes token cache files under a single directory.
//
// Writes for the same identity are serialized and land atomically through a temp file and rename.
type Store struct {
	dir   string
	named []string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore returns a Store rooted at dir. Named identities (e.g. "reference") are accepted alongside UUIDs.
func NewStore(dir string, named ...string) *Store {
	return &Store{dir: dir, named: named, locks: make(map[string]*sync.Mutex)}
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// ValidateIdentity checks identity against the store's named identities.
func (s *Store) ValidateIdentity(identity string) error {
	return ValidateIdentity(identity, s.named...)
}

// Path returns the cache file path for identity.
func (s *Store) Path(identity string) (string, error) {
	if err := s.ValidateIdentity(identity); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, identity), nil
}

// Lock acquires the per-identity lock and returns its release func.
//
// Callers that read, refresh and write a token hold it across the whole sequence.
func (s *Store) Lock(identity string) func() {
	s.mu.Lock()
	l, ok := s.locks[identity]
	if !ok {
		l = &sync.Mutex{}
		s.locks[identity] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Load reads the entry for identity. Returns (nil, nil) if no cache file exists.
func (s *Store) Load(identity string) (*Entry, error) {
	path, err := s.Path(identity)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if entry.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrCorruptEntry)
	}
	return &entry, nil
}

// Save writes entry for identity, creating the cache directory if needed.
//
// Callers already holding [Store.Lock] use [Store.SaveLocked] instead.
func (s *Store) Save(identity string, entry *Entry) error {
	if err := s.ValidateIdentity(identity); err != nil {
		return err
	}
	unlock := s.Lock(identity)
	defer unlock()
	return s.SaveLocked(identity, entry)
}

// SaveLocked writes entry without taking the identity lock.
func (s *Store) SaveLocked(identity string, entry *Entry) error {
	if entry == nil {
		return errors.New("cannot save nil token entry")
	}
	path, err := s.Path(identity)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+identity+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// Delete removes the cache file for identity. A missing file is not an error.
func (s *Store) Delete(identity string) error {
	path, err := s.Path(identity)
	if err != nil {
		return err
	}
	unlock := s.Lock(identity)
	defer unlock()
	return s.removeFile(path)
}

// DeleteLocked removes the cache file without taking the identity lock.
func (s *Store) DeleteLocked(identity string) error {
	path, err := s.Path(identity)
	if err != nil {
		return err
	}
	return s.removeFile(path)
}

func (s *Store) removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}
