// Package persist records match and player creation in Postgres. Writes are
// queued off the request path; the in-memory registry stays authoritative.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchRecord is one row of the matches table.
type MatchRecord struct {
	MatchID            string
	RuleSet            string
	SearchingForPlayer bool
	Public             bool
	CreatedAt          time.Time
}

// PlayerRecord is one row of the players table.
type PlayerRecord struct {
	PlayerID  string
	MatchID   string
	Color     string
	CreatedAt time.Time
}

// Store persists records.
type Store interface {
	SaveMatch(ctx context.Context, m MatchRecord) error
	SavePlayer(ctx context.Context, p PlayerRecord) error
}

// PostgresStore is a Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and checks the connection.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// SaveMatch inserts a match. Match identifiers are reused once a match is
// gone, so an existing row and its players are replaced.
func (s *PostgresStore) SaveMatch(ctx context.Context, m MatchRecord) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM players WHERE match_id = $1`, m.MatchID); err != nil {
			return fmt.Errorf("clear players of match %s: %w", m.MatchID, err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO matches (match_id, rule_set, searching_for_player, public, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (match_id) DO UPDATE SET
				rule_set = EXCLUDED.rule_set,
				searching_for_player = EXCLUDED.searching_for_player,
				public = EXCLUDED.public,
				created_at = EXCLUDED.created_at`,
			m.MatchID, m.RuleSet, m.SearchingForPlayer, m.Public, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save match %s: %w", m.MatchID, err)
		}
		return nil
	})
}

// SavePlayer inserts a player and clears the match's searching flag once
// someone other than the creator is seated.
func (s *PostgresStore) SavePlayer(ctx context.Context, p PlayerRecord) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO players (player_id, match_id, color, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (player_id) DO UPDATE SET
				match_id = EXCLUDED.match_id,
				color = EXCLUDED.color`,
			p.PlayerID, p.MatchID, p.Color, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save player %s: %w", p.PlayerID, err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE matches SET searching_for_player = FALSE
			WHERE match_id = $1 AND (SELECT COUNT(*) FROM players WHERE match_id = $1) >= 2`,
			p.MatchID,
		)
		if err != nil {
			return fmt.Errorf("update match %s: %w", p.MatchID, err)
		}
		return nil
	})
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
