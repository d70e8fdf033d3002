package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lessucettes/adresu-wordguard/internal/config"
)

// DateLayout is the on-disk format of WordListRecord.LastUpdated.
const DateLayout = time.DateOnly

// ErrNotFound is returned when no word list has been saved under a name.
var ErrNotFound = errors.New("word list not found")

// WordListRecord is the persisted form of a dictionary.
type WordListRecord struct {
	Words       []string `json:"words" yaml:"words"`
	Version     string   `json:"version" yaml:"version"`
	LastUpdated string   `json:"lastUpdated" yaml:"lastUpdated"`
}

// Validate reports a record that is missing required fields.
func (r *WordListRecord) Validate() error {
	if r.Words == nil {
		return errors.New("record has no words field")
	}
	if r.Version == "" {
		return errors.New("record has no version")
	}
	if _, err := time.Parse(DateLayout, r.LastUpdated); err != nil {
		return fmt.Errorf("record has invalid lastUpdated %q: %w", r.LastUpdated, err)
	}
	return nil
}

// Store is the generic interface for all storage types.
// It allows for easy swapping of the real database with a mock in tests.
type Store interface {
	LoadWordList(ctx context.Context, name string) (*WordListRecord, error)
	SaveWordList(ctx context.Context, name string, rec *WordListRecord) error
	Close() error
}

// Open builds the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.DBConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg)
	default:
		return NewBadgerStore(cfg)
	}
}
