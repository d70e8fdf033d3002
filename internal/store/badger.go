package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/lessucettes/adresu-wordguard/internal/config"
)

const wordListPrefix = "wordlist:"

// BadgerStore is the default implementation of the Store interface using BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to be used as a logger for BadgerDB.
type badgerLogger struct {
	*slog.Logger
}

func (l *badgerLogger) Warningf(f string, v ...any) { l.Warn(fmt.Sprintf(f, v...)) }
func (l *badgerLogger) Errorf(f string, v ...any)   { l.Error(fmt.Sprintf(f, v...)) }
func (l *badgerLogger) Infof(f string, v ...any)    {}
func (l *badgerLogger) Debugf(f string, v ...any)   {}

// NewBadgerStore opens (or creates) the database at cfg.Path.
func NewBadgerStore(cfg *config.DBConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = &badgerLogger{slog.Default()}
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// Close gracefully closes the database connection.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// LoadWordList reads the record stored under name.
func (s *BadgerStore) LoadWordList(ctx context.Context, name string) (*WordListRecord, error) {
	key := []byte(wordListPrefix + name)
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read word list %q: %w", name, err)
	}

	var rec WordListRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode word list %q: %w", name, err)
	}
	return &rec, nil
}

// SaveWordList overwrites the record stored under name.
func (s *BadgerStore) SaveWordList(ctx context.Context, name string, rec *WordListRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode word list %q: %w", name, err)
	}
	key := []byte(wordListPrefix + name)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
}
