package wordlist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessucettes/adresu-wordguard/internal/store"
	"github.com/lessucettes/adresu-wordguard/testutils"
)

var fixedNow = time.Date(2024, time.March, 9, 15, 4, 5, 0, time.UTC)

func seededStore(words ...string) *testutils.MockStore {
	if words == nil {
		words = []string{}
	}
	ms := testutils.NewMockStore()
	ms.Put("profanity", store.WordListRecord{Words: words, Version: "1.0", LastUpdated: "2024-01-15"})
	return ms
}

func newLoaded(t *testing.T, backend store.Store) *Store {
	t.Helper()
	s := New(backend, Options{Name: "profanity", Now: func() time.Time { return fixedNow }})
	_, err := s.Load(context.Background())
	require.NoError(t, err)
	return s
}

func TestNormalize(t *testing.T) {
	testCases := []struct {
		in, expected string
	}{
		{"  Damn ", "damn"},
		{"SHIT", "shit"},
		{"\t\n", ""},
		// decomposed e + combining acute composes to a single rune
		{"cafe\u0301", "caf\u00e9"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestStore_Load(t *testing.T) {
	ms := seededStore("Hell", "damn", "  damn ", "")
	s := newLoaded(t, ms)

	dict := s.Snapshot()
	require.Equal(t, []string{"damn", "hell"}, dict.Words)
	require.Equal(t, "1.0", dict.Version)
	require.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), dict.LastUpdated)
	require.Equal(t, 2, s.Count())
	require.True(t, dict.Contains("hell"))
	require.False(t, dict.Contains("heck"))
}

func TestStore_LoadErrors(t *testing.T) {
	t.Run("backend failure", func(t *testing.T) {
		ms := testutils.NewMockStore()
		boom := errors.New("disk on fire")
		ms.SetError(boom)

		_, err := New(ms, Options{Name: "profanity"}).Load(context.Background())
		var se *StorageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, "load", se.Op)
		require.ErrorIs(t, err, boom)
	})

	t.Run("missing list without seed", func(t *testing.T) {
		_, err := New(testutils.NewMockStore(), Options{Name: "profanity"}).Load(context.Background())
		var se *StorageError
		require.ErrorAs(t, err, &se)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("malformed record", func(t *testing.T) {
		ms := testutils.NewMockStore()
		ms.Put("profanity", store.WordListRecord{Words: []string{"damn"}, Version: "1.0", LastUpdated: "yesterday"})

		s := New(ms, Options{Name: "profanity"})
		_, err := s.Load(context.Background())
		var se *StorageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, 0, s.Count(), "nothing is published on failure")
	})
}

func TestStore_LoadImportsSeed(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "words.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("words:\n  - Damn\n  - hell\n"), 0o644))

	ms := testutils.NewMockStore()
	s := New(ms, Options{Name: "profanity", SeedPath: seed, Now: func() time.Time { return fixedNow }})

	dict, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"damn", "hell"}, dict.Words)
	require.Equal(t, "1.0", dict.Version)

	saved := ms.LastSaved()
	require.NotNil(t, saved, "imported seed must be persisted")
	require.Equal(t, []string{"damn", "hell"}, saved.Words)
	require.Equal(t, "2024-03-09", saved.LastUpdated)

	// A second load reads the persisted copy, not the seed.
	require.NoError(t, os.Remove(seed))
	_, err = s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, ms.Saves())
}

func TestStore_Add(t *testing.T) {
	ms := seededStore("damn", "hell")
	s := newLoaded(t, ms)
	ctx := context.Background()

	dict, err := s.Add(ctx, "  SHIT ")
	require.NoError(t, err)
	require.Equal(t, []string{"damn", "hell", "shit"}, dict.Words)
	require.Equal(t, time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC), dict.LastUpdated)
	require.Equal(t, "1.0", dict.Version)

	saved := ms.LastSaved()
	require.Equal(t, []string{"damn", "hell", "shit"}, saved.Words)
	require.Equal(t, "2024-03-09", saved.LastUpdated)

	_, err = s.Add(ctx, "Shit")
	require.ErrorIs(t, err, ErrDuplicateTerm)

	_, err = s.Add(ctx, "   ")
	require.ErrorIs(t, err, ErrEmptyTerm)
	require.Equal(t, 3, s.Count())
}

func TestStore_Remove(t *testing.T) {
	ms := seededStore("damn", "hell")
	s := newLoaded(t, ms)
	ctx := context.Background()

	dict, err := s.Remove(ctx, "HELL")
	require.NoError(t, err)
	require.Equal(t, []string{"damn"}, dict.Words)
	require.Equal(t, []string{"damn"}, ms.LastSaved().Words)

	_, err = s.Remove(ctx, "hell")
	require.ErrorIs(t, err, ErrTermNotFound)
}

func TestStore_AddRemoveRoundTrip(t *testing.T) {
	s := newLoaded(t, seededStore("damn", "hell"))
	ctx := context.Background()
	before := s.Words()

	_, err := s.Add(ctx, "heck")
	require.NoError(t, err)
	_, err = s.Remove(ctx, "heck")
	require.NoError(t, err)
	require.Equal(t, before, s.Words())
}

func TestStore_MutationsBeforeLoad(t *testing.T) {
	s := New(testutils.NewMockStore(), Options{Name: "profanity"})

	_, err := s.Add(context.Background(), "damn")
	require.ErrorIs(t, err, ErrNotLoaded)
	_, err = s.Remove(context.Background(), "damn")
	require.ErrorIs(t, err, ErrNotLoaded)
}

func TestStore_FailedPersistLeavesStateUnchanged(t *testing.T) {
	ms := seededStore("damn", "hell")
	s := newLoaded(t, ms)
	before := s.Snapshot()

	var notified int
	s.Subscribe(func(Dictionary) { notified++ })
	require.Equal(t, 1, notified, "subscribe delivers the current dictionary")

	ms.SetSaveError(errors.New("read-only filesystem"))

	_, err := s.Add(context.Background(), "shit")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "add", se.Op)

	_, err = s.Remove(context.Background(), "damn")
	require.ErrorAs(t, err, &se)
	require.Equal(t, "remove", se.Op)

	require.Equal(t, before, s.Snapshot())
	require.Equal(t, 1, notified, "subscribers are not told about failed edits")
}

func TestStore_SubscribersSeeEveryChange(t *testing.T) {
	s := newLoaded(t, seededStore("damn"))

	var got [][]string
	s.Subscribe(func(d Dictionary) { got = append(got, d.Words) })

	_, err := s.Add(context.Background(), "hell")
	require.NoError(t, err)
	_, err = s.Remove(context.Background(), "damn")
	require.NoError(t, err)

	require.Equal(t, [][]string{{"damn"}, {"damn", "hell"}, {"hell"}}, got)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := newLoaded(t, seededStore("damn", "hell"))

	words := s.Words()
	words[0] = "mutated"
	require.Equal(t, []string{"damn", "hell"}, s.Words())
}

func TestStore_ConcurrentAdds(t *testing.T) {
	ms := seededStore()
	s := newLoaded(t, ms)
	terms := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel"}

	var wg sync.WaitGroup
	for _, term := range terms {
		wg.Add(1)
		go func(term string) {
			defer wg.Done()
			_, err := s.Add(context.Background(), term)
			assert.NoError(t, err)
		}(term)
	}
	wg.Wait()

	require.Equal(t, terms, s.Words())
	require.Equal(t, terms, ms.LastSaved().Words, "the last persisted record includes every add")
}
