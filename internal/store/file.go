package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/reframe/internal/types"
)

const trackSuffix = ".face_track.json"

// FileCache keeps one JSON file per key in Dir:
// [{"frame": 0, "x": 960.5, "y": 410.2}, ...]
type FileCache struct {
	Dir string
}

// NewFileCache returns a cache rooted at dir.
func NewFileCache(dir string) *FileCache {
	if dir == "" {
		dir = "work"
	}
	return &FileCache{Dir: dir}
}

// Path returns the file that holds key.
func (c *FileCache) Path(key string) string {
	return filepath.Join(c.Dir, key+trackSuffix)
}

func (c *FileCache) Load(ctx context.Context, key string) (types.Track, bool, error) {
	data, err := os.ReadFile(c.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var track types.Track
	if err := json.Unmarshal(data, &track); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", c.Path(key), err)
	}
	if track == nil {
		track = types.Track{}
	}
	return track, true, nil
}

// Store writes to a temporary file and renames it into place, so readers
// never observe a partially written entry.
func (c *FileCache) Store(ctx context.Context, key string, track types.Track) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return err
	}
	if track == nil {
		track = types.Track{}
	}
	data, err := json.MarshalIndent(track, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.Dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.Path(key))
}

func (c *FileCache) Delete(ctx context.Context, key string) error {
	err := os.Remove(c.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (c *FileCache) List(ctx context.Context) ([]Entry, error) {
	files, err := filepath.Glob(filepath.Join(c.Dir, "*"+trackSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		key := strings.TrimSuffix(filepath.Base(f), trackSuffix)
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		track, ok, err := c.Load(ctx, key)
		if err != nil || !ok {
			continue
		}
		entries = append(entries, Entry{Key: key, Frames: len(track), UpdatedAt: info.ModTime()})
	}
	return entries, nil
}

func (c *FileCache) Close() error {
	return nil
}
