// Package postgres implements the durable sorted-store contract over
// Postgres. The gateway mirrors recent order-state envelopes into it keyed
// by a unix-seconds score.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	mirrorInsertSQL = `
INSERT INTO order_mirror (mirror_key, payload, score, created_at)
VALUES (@mirror_key, @payload::jsonb, @score, NOW());
`

	mirrorRecentSQL = `
SELECT payload
FROM order_mirror
WHERE mirror_key = $1
ORDER BY score DESC, id DESC
LIMIT $2;
`

	mirrorPruneSQL = `
DELETE FROM order_mirror
WHERE mirror_key = $1 AND score < $2;
`

	defaultRecentLimit = 100
	maxRecentLimit     = 1000
)

// MirrorStore persists order-state envelopes ordered by score.
type MirrorStore struct {
	pool *pgxpool.Pool
}

// NewMirrorStore constructs a MirrorStore backed by the provided pool.
func NewMirrorStore(pool *pgxpool.Pool) *MirrorStore {
	return &MirrorStore{pool: pool}
}

func (s *MirrorStore) ensurePool() (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("mirror store: nil pool")
	}
	return s.pool, nil
}

// Save appends one envelope under the given key with its recency score.
func (s *MirrorStore) Save(ctx context.Context, key string, value []byte, score float64) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("mirror store: key required")
	}
	if len(value) == 0 {
		return fmt.Errorf("mirror store: payload required")
	}
	args := pgx.NamedArgs{
		"mirror_key": key,
		"payload":    value,
		"score":      score,
	}
	if _, err := pool.Exec(ctx, mirrorInsertSQL, args); err != nil {
		return fmt.Errorf("mirror store: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit payloads for a key, most recent first.
func (s *MirrorStore) Recent(ctx context.Context, key string, limit int) ([][]byte, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	rows, err := pool.Query(ctx, mirrorRecentSQL, key, limit)
	if err != nil {
		return nil, fmt.Errorf("mirror store: query recent: %w", err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("mirror store: scan payload: %w", err)
		}
		payloads = append(payloads, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mirror store: iterate payloads: %w", err)
	}
	return payloads, nil
}

// Prune removes entries older than minScore and reports how many went away.
func (s *MirrorStore) Prune(ctx context.Context, key string, minScore float64) (int64, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, mirrorPruneSQL, key, minScore)
	if err != nil {
		return 0, fmt.Errorf("mirror store: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
