package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
)

// CacheKey derives the track cache key from the video's base file name.
// Two videos with the same base name share a key.
func CacheKey(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	key := slug.Make(name)
	if key == "" {
		return "video"
	}
	return key
}

// FingerprintKey extends CacheKey with a hash of the file's path, size and
// modification time plus the tracking parameters, so a changed video or a
// different smoother gets its own entry.
func FingerprintKey(path, params string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d-%s", path, info.Size(), info.ModTime().UnixNano(), params)
	hash := sha256.Sum256([]byte(input))
	return CacheKey(path) + "-" + hex.EncodeToString(hash[:])[:12], nil
}
