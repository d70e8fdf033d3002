// testutils/store.go
package testutils

import (
	"context"
	"slices"
	"sync"

	"github.com/lessucettes/adresu-wordguard/internal/store"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	lists map[string]store.WordListRecord
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		lists: make(map[string]store.WordListRecord),
	}
}

// Put stores rec under name without going through SaveWordList.
func (s *InMemoryStore) Put(name string, rec store.WordListRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Words = slices.Clone(rec.Words)
	s.lists[name] = rec
}

// LoadWordList returns a copy of the record saved under name.
func (s *InMemoryStore) LoadWordList(ctx context.Context, name string) (*store.WordListRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, found := s.lists[name]
	if !found {
		return nil, store.ErrNotFound
	}
	rec.Words = slices.Clone(rec.Words)
	return &rec, nil
}

// SaveWordList replaces the record saved under name.
func (s *InMemoryStore) SaveWordList(ctx context.Context, name string, rec *store.WordListRecord) error {
	s.Put(name, *rec)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// MockStore wraps an InMemoryStore and can be told to fail loads or saves.
type MockStore struct {
	*InMemoryStore

	mu        sync.RWMutex
	calls     int
	saves     int
	loadErr   error
	saveErr   error
	lastSaved *store.WordListRecord
}

func NewMockStore() *MockStore {
	return &MockStore{InMemoryStore: NewInMemoryStore()}
}

// SetError makes both loads and saves fail with err.
func (s *MockStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
	s.saveErr = err
}

func (s *MockStore) SetSaveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *MockStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = nil
	s.saveErr = nil
}

// Calls counts every LoadWordList and SaveWordList call, failed or not.
func (s *MockStore) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// Saves counts successful SaveWordList calls.
func (s *MockStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// LastSaved returns the most recently persisted record, or nil.
func (s *MockStore) LastSaved() *store.WordListRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSaved == nil {
		return nil
	}
	rec := *s.lastSaved
	rec.Words = slices.Clone(rec.Words)
	return &rec
}

func (s *MockStore) LoadWordList(ctx context.Context, name string) (*store.WordListRecord, error) {
	s.mu.Lock()
	s.calls++
	err := s.loadErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.InMemoryStore.LoadWordList(ctx, name)
}

func (s *MockStore) SaveWordList(ctx context.Context, name string, rec *store.WordListRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	saved := *rec
	saved.Words = slices.Clone(rec.Words)
	s.lastSaved = &saved
	return s.InMemoryStore.SaveWordList(ctx, name, rec)
}

func (s *MockStore) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}
