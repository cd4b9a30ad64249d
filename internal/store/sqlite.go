package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultSQLiteFile is the database name used inside the work directory.
const DefaultSQLiteFile = "reframe.db"

// SQLiteCache stores tracks in a single-file SQLite database.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteCache, error) {
	if path == "" {
		return nil, errors.New("sqlite cache requires a database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; batch workers queue here instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS face_tracks (
			key TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			frame_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS face_track_points (
			key TEXT NOT NULL,
			frame INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			PRIMARY KEY (key, frame)
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

func (s *SQLiteCache) Load(ctx context.Context, key string) (types.Track, bool, error) {
	var frames int
	err := s.db.QueryRowContext(ctx, "SELECT frame_count FROM face_tracks WHERE key = ?", key).Scan(&frames)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT frame, x, y FROM face_track_points WHERE key = ? ORDER BY frame", key)
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

func (s *SQLiteCache) Store(ctx context.Context, key string, track types.Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO face_tracks (key, run_id, frame_count, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET run_id = excluded.run_id, frame_count = excluded.frame_count, created_at = excluded.created_at
	`, key, uuid.NewString(), len(track), time.Now().UnixNano()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM face_track_points WHERE key = ?", key); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO face_track_points (key, frame, x, y) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range track {
		if _, err := stmt.ExecContext(ctx, key, p.Frame, p.X, p.Y); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteCache) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM face_track_points WHERE key = ?", key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM face_tracks WHERE key = ?", key); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteCache) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, frame_count, run_id, created_at FROM face_tracks ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var nanos int64
		if err := rows.Scan(&e.Key, &e.Frames, &e.Revision, &nanos); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Unix(0, nanos)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
