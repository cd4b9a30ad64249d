// Package store persists computed face tracks keyed by video.
//
// Entries are trusted unconditionally: nothing checks whether the video or
// the tracking parameters changed since the entry was written.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/andresmejia3/reframe/internal/types"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Cache is a keyed store of complete tracks.
type Cache interface {
	// Load returns the stored track and true, or false if key is absent.
	Load(ctx context.Context, key string) (types.Track, bool, error)
	// Store replaces the entry for key.
	Store(ctx context.Context, key string, track types.Track) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// Entry describes one cached track.
type Entry struct {
	Key    string
	Frames int
	// Revision identifies the write that produced the entry (database backends only).
	Revision  string
	UpdatedAt time.Time
}

// Options configures Open.
type Options struct {
	Backend string
	// Dir is the work directory for the file backend and the default location of the SQLite database.
	Dir string
	// URL is the PostgreSQL connection string or the SQLite file path.
	URL string
}

// Open returns the cache backend described by opts.
func Open(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileCache(opts.Dir), nil
	case BackendPostgres:
		return NewPostgres(ctx, opts.URL)
	case BackendSQLite:
		path := opts.URL
		if path == "" {
			dir := opts.Dir
			if dir == "" {
				dir = "work"
			}
			path = filepath.Join(dir, DefaultSQLiteFile)
		}
		return NewSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want file, postgres or sqlite)", opts.Backend)
	}
}

// KeyLocks serializes work on the same key while letting different keys proceed.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the function that releases it.
func (k *KeyLocks) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *KeyLocks) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
