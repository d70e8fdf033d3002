// Package wordlist owns the dictionary of disallowed terms: loading it from
// the backing store, validating admin edits, and persisting every change.
package wordlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/lessucettes/adresu-wordguard/internal/store"
)

const defaultVersion = "1.0"

var (
	ErrEmptyTerm     = errors.New("term is empty")
	ErrDuplicateTerm = errors.New("term already exists")
	ErrTermNotFound  = errors.New("term not found")
	ErrNotLoaded     = errors.New("word list has not been loaded")
)

// StorageError wraps a failure of the backing store. At startup it means
// the engine must not run, since an empty dictionary filters nothing.
type StorageError struct {
	Op   string
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("word list %q: %s failed: %v", e.Name, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Dictionary is an immutable snapshot of the word list.
type Dictionary struct {
	Words       []string  `json:"words"`
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}

func (d Dictionary) Count() int { return len(d.Words) }

func (d Dictionary) Contains(term string) bool {
	_, found := slices.BinarySearch(d.Words, term)
	return found
}

func (d Dictionary) clone() Dictionary {
	d.Words = slices.Clone(d.Words)
	return d
}

func (d Dictionary) record() *store.WordListRecord {
	return &store.WordListRecord{
		Words:       slices.Clone(d.Words),
		Version:     d.Version,
		LastUpdated: d.LastUpdated.Format(store.DateLayout),
	}
}

// ChangeFunc is called with every newly published dictionary while the
// mutation lock is still held.
type ChangeFunc func(Dictionary)

type Options struct {
	Name     string
	SeedPath string
	// Now overrides the clock used to stamp LastUpdated.
	Now func() time.Time
}

// Store serializes all dictionary mutations. Readers use Snapshot, which
// never blocks.
type Store struct {
	backend  store.Store
	name     string
	seedPath string
	now      func() time.Time

	mu          sync.Mutex
	current     atomic.Pointer[Dictionary]
	subscribers []ChangeFunc
}

func New(backend store.Store, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		backend:  backend,
		name:     opts.Name,
		seedPath: opts.SeedPath,
		now:      now,
	}
}

// Normalize trims, lowercases and NFC-normalizes a term.
func Normalize(term string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(term)))
}

// Subscribe registers fn for future changes. If a dictionary is already
// loaded, fn is called with it immediately.
func (s *Store) Subscribe(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
	if cur := s.current.Load(); cur != nil {
		fn(cur.clone())
	}
}

// Load reads the dictionary from the backing store. If nothing has been
// stored yet and a seed file is configured, the seed is imported.
func (s *Store) Load(ctx context.Context) (Dictionary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.backend.LoadWordList(ctx, s.name)
	if errors.Is(err, store.ErrNotFound) && s.seedPath != "" {
		rec, err = s.importSeed(ctx)
	}
	if err != nil {
		return Dictionary{}, &StorageError{Op: "load", Name: s.name, Err: err}
	}
	if err := rec.Validate(); err != nil {
		return Dictionary{}, &StorageError{Op: "load", Name: s.name, Err: err}
	}

	lastUpdated, _ := time.Parse(store.DateLayout, rec.LastUpdated)
	dict := Dictionary{
		Words:       normalizeAll(rec.Words),
		Version:     rec.Version,
		LastUpdated: lastUpdated,
	}
	if len(dict.Words) != len(rec.Words) {
		slog.Warn("Word list contained empty or duplicate terms, they were dropped",
			"name", s.name, "stored", len(rec.Words), "kept", len(dict.Words))
	}

	s.publish(dict)
	slog.Info("Word list loaded", "name", s.name, "count", dict.Count(), "version", dict.Version,
		"last_updated", rec.LastUpdated)
	return dict.clone(), nil
}

func (s *Store) importSeed(ctx context.Context) (*store.WordListRecord, error) {
	rec, err := store.LoadSeedFile(s.seedPath)
	if err != nil {
		return nil, err
	}
	if rec.Words == nil {
		return nil, fmt.Errorf("seed file %s has no words field", s.seedPath)
	}
	if rec.Version == "" {
		rec.Version = defaultVersion
	}
	if rec.LastUpdated == "" {
		rec.LastUpdated = s.today().Format(store.DateLayout)
	}
	rec.Words = normalizeAll(rec.Words)

	if err := s.backend.SaveWordList(ctx, s.name, rec); err != nil {
		return nil, fmt.Errorf("failed to persist imported seed: %w", err)
	}
	slog.Info("Imported word list seed", "name", s.name, "path", s.seedPath, "count", len(rec.Words))
	return rec, nil
}

// Add inserts term after normalizing it and persists the new dictionary.
func (s *Store) Add(ctx context.Context, term string) (Dictionary, error) {
	term = Normalize(term)
	if term == "" {
		return Dictionary{}, ErrEmptyTerm
	}
	return s.mutate(ctx, "add", func(cur Dictionary) ([]string, error) {
		idx, found := slices.BinarySearch(cur.Words, term)
		if found {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTerm, term)
		}
		return slices.Insert(slices.Clone(cur.Words), idx, term), nil
	})
}

// Remove deletes term after normalizing it and persists the new dictionary.
func (s *Store) Remove(ctx context.Context, term string) (Dictionary, error) {
	term = Normalize(term)
	return s.mutate(ctx, "remove", func(cur Dictionary) ([]string, error) {
		idx, found := slices.BinarySearch(cur.Words, term)
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrTermNotFound, term)
		}
		return slices.Delete(slices.Clone(cur.Words), idx, idx+1), nil
	})
}

func (s *Store) mutate(ctx context.Context, op string, edit func(Dictionary) ([]string, error)) (Dictionary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur == nil {
		return Dictionary{}, ErrNotLoaded
	}
	words, err := edit(*cur)
	if err != nil {
		return Dictionary{}, err
	}

	next := Dictionary{
		Words:       words,
		Version:     cur.Version,
		LastUpdated: s.today(),
	}
	if err := s.backend.SaveWordList(ctx, s.name, next.record()); err != nil {
		return Dictionary{}, &StorageError{Op: op, Name: s.name, Err: err}
	}

	s.publish(next)
	slog.Info("Word list updated", "name", s.name, "op", op, "count", next.Count())
	return next.clone(), nil
}

// publish must be called with mu held.
func (s *Store) publish(dict Dictionary) {
	s.current.Store(&dict)
	for _, fn := range s.subscribers {
		fn(dict.clone())
	}
}

func (s *Store) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Snapshot returns a copy of the current dictionary, or an empty one
// before Load.
func (s *Store) Snapshot() Dictionary {
	cur := s.current.Load()
	if cur == nil {
		return Dictionary{}
	}
	return cur.clone()
}

func (s *Store) Words() []string { return s.Snapshot().Words }

func (s *Store) Count() int { return s.peek().Count() }

func (s *Store) Version() string { return s.peek().Version }

func (s *Store) LastUpdated() time.Time { return s.peek().LastUpdated }

// peek returns the published dictionary without copying; callers must not
// modify it.
func (s *Store) peek() Dictionary {
	if cur := s.current.Load(); cur != nil {
		return *cur
	}
	return Dictionary{}
}

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = Normalize(w); w != "" {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
