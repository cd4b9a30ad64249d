package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCache stores tracks in PostgreSQL. The pool is safe for the
// concurrent workers of a batch.
type PostgresCache struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and ensures the schema is initialized.
func NewPostgres(ctx context.Context, connString string) (*PostgresCache, error) {
	if connString == "" {
		return nil, errors.New("postgres cache requires a connection string (--db or POSTGRES_* variables)")
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &PostgresCache{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS face_tracks (
			key TEXT PRIMARY KEY,
			run_id UUID NOT NULL,
			frame_count INT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_track_points (
			key TEXT NOT NULL REFERENCES face_tracks(key) ON DELETE CASCADE,
			frame INT NOT NULL,
			x DOUBLE PRECISION NOT NULL,
			y DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (key, frame)
		);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

func (s *PostgresCache) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresCache) Load(ctx context.Context, key string) (types.Track, bool, error) {
	var frames int
	err := s.pool.QueryRow(ctx, "SELECT frame_count FROM face_tracks WHERE key = $1", key).Scan(&frames)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := s.pool.Query(ctx, "SELECT frame, x, y FROM face_track_points WHERE key = $1 ORDER BY frame", key)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	track := make(types.Track, 0, frames)
	for rows.Next() {
		var p types.FacePoint
		if err := rows.Scan(&p.Frame, &p.X, &p.Y); err != nil {
			return nil, false, err
		}
		track = append(track, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(track) != frames {
		return nil, false, fmt.Errorf("cache entry %q is incomplete: %d of %d points", key, len(track), frames)
	}
	return track, true, nil
}

// Store replaces the entry for key in a single transaction.
func (s *PostgresCache) Store(ctx context.Context, key string, track types.Track) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO face_tracks (key, run_id, frame_count, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET run_id = EXCLUDED.run_id, frame_count = EXCLUDED.frame_count, created_at = NOW()
	`, key, uuid.NewString(), len(track))
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM face_track_points WHERE key = $1", key); err != nil {
		return err
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"face_track_points"},
		[]string{"key", "frame", "x", "y"},
		pgx.CopyFromSlice(len(track), func(i int) ([]any, error) {
			return []any{key, track[i].Frame, track[i].X, track[i].Y}, nil
		}),
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresCache) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM face_tracks WHERE key = $1", key)
	return err
}

func (s *PostgresCache) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, "SELECT key, frame_count, run_id::text, created_at FROM face_tracks ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Frames, &e.Revision, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reset drops all cache tables. The next NewPostgres recreates them.
func (s *PostgresCache) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS face_track_points CASCADE;
		DROP TABLE IF EXISTS face_tracks CASCADE;
	`)
	return err
}
