package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	row_id       uuid PRIMARY KEY,
	row_index    integer NOT NULL,
	raw_text     text NOT NULL,
	make         text NOT NULL DEFAULT '',
	model        text NOT NULL DEFAULT '',
	year         text NOT NULL DEFAULT '',
	color        text NOT NULL DEFAULT '',
	condition    text NOT NULL DEFAULT '',
	submitted_at timestamptz NOT NULL,
	updated_at   timestamptz NOT NULL DEFAULT now()
)`

// EnsureSchema creates the submissions table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
