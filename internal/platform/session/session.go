// Package session keeps the ephemeral per-visitor UI state of the dashboard:
// form drafts, the active tab and wizard step, and the last backend results.
// A session is addressed by an opaque id carried in a signed cookie and is
// persisted in a Store (memory, PostgreSQL, or Redis).
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by a Store when the session does not exist or has
// expired.
var ErrNotFound = errors.New("session not found")

// Store persists sessions.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// Session is one visitor's state. Values are kept JSON-encoded so every
// Store persists them the same way.
type Session struct {
	ID        string
	ExpiresAt time.Time

	mu     sync.Mutex
	values map[string]json.RawMessage
	dirty  bool
	isNew  bool
}

// New returns an empty session with a fresh id. It is not persisted until a
// value is put into it.
func New(ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.New().String(),
		ExpiresAt: time.Now().Add(ttl),
		values:    make(map[string]json.RawMessage),
		isNew:     true,
	}
}

// Restore rebuilds a session from its persisted form.
func Restore(id string, data []byte, expiresAt time.Time) (*Session, error) {
	values := make(map[string]json.RawMessage)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
	}
	return &Session{ID: id, ExpiresAt: expiresAt, values: values}, nil
}

// Encode returns the persisted form of the session values.
func (s *Session) Encode() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.values)
}

// Get decodes the value stored under key into v. It reports false when the
// key is not set.
func (s *Session) Get(key string, v any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode session value %q: %w", key, err)
	}
	return true, nil
}

// Put stores v under key.
func (s *Session) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session value %q: %w", key, err)
	}
	s.mu.Lock()
	s.values[key] = raw
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// Has reports whether key is set.
func (s *Session) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

// Remove deletes key.
func (s *Session) Remove(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if _, ok := s.values[key]; ok {
			delete(s.values, key)
			s.dirty = true
		}
	}
}

// Clear removes every value.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) > 0 {
		s.values = make(map[string]json.RawMessage)
		s.dirty = true
	}
}

// Dirty reports whether the session changed since it was loaded.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// IsNew reports whether the session was created during this request.
func (s *Session) IsNew() bool {
	return s.isNew
}

// touch marks the session for saving so its stored expiry is extended.
func (s *Session) touch() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

func (s *Session) markClean() {
	s.mu.Lock()
	s.dirty = false
	s.isNew = false
	s.mu.Unlock()
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
