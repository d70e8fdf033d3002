package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lessucettes/adresu-wordguard/internal/config"
)

const createWordListsTable = `
CREATE TABLE IF NOT EXISTS word_lists (
	name         TEXT PRIMARY KEY,
	words        JSONB NOT NULL,
	version      TEXT NOT NULL,
	last_updated TEXT NOT NULL
)`

// PostgresStore keeps word lists in a single table, one row per list.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.DBConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createWordListsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create word_lists table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LoadWordList(ctx context.Context, name string) (*WordListRecord, error) {
	var (
		rawWords []byte
		rec      WordListRecord
	)
	err := s.pool.QueryRow(ctx,
		`SELECT words, version, last_updated FROM word_lists WHERE name = $1`, name,
	).Scan(&rawWords, &rec.Version, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read word list %q: %w", name, err)
	}
	if err := json.Unmarshal(rawWords, &rec.Words); err != nil {
		return nil, fmt.Errorf("failed to decode words of %q: %w", name, err)
	}
	return &rec, nil
}

func (s *PostgresStore) SaveWordList(ctx context.Context, name string, rec *WordListRecord) error {
	rawWords, err := json.Marshal(rec.Words)
	if err != nil {
		return fmt.Errorf("failed to encode words of %q: %w", name, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO word_lists (name, words, version, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET words = EXCLUDED.words, version = EXCLUDED.version, last_updated = EXCLUDED.last_updated`,
		name, rawWords, rec.Version, rec.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to save word list %q: %w", name, err)
	}
	return nil
}
