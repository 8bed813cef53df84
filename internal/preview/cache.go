package preview

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"backup-timeline/internal/logging"
	"backup-timeline/internal/metrics"
)

// CacheSubdir is the directory under the cache dir that holds previews.
const CacheSubdir = "previews"

// CachePath returns where the preview of source is cached: the BLAKE3 digest
// of the source path, with ext appended.
func CachePath(cacheDir, source, ext string) string {
	sum := blake3.Sum256([]byte(source))
	return filepath.Join(cacheDir, CacheSubdir, hex.EncodeToString(sum[:])+ext)
}

// ClearCache removes every cached preview and returns the number of bytes freed.
func ClearCache(cacheDir string) (int64, error) {
	if cacheDir == "" {
		return 0, nil
	}
	dir := filepath.Join(cacheDir, CacheSubdir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read preview cache directory: %w", err)
	}

	var freedBytes int64
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			dirSize, _ := dirSize(path)
			if err := os.RemoveAll(path); err != nil {
				logging.Warn("failed to remove directory %s: %v", path, err)
				continue
			}
			freedBytes += dirSize
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logging.Warn("failed to get info for %s: %v", path, err)
			continue
		}
		if err := os.Remove(path); err != nil {
			logging.Warn("failed to remove file %s: %v", path, err)
			continue
		}
		freedBytes += info.Size()
	}

	metrics.PreviewCacheSize.Set(0)
	logging.Info("Cleared preview cache: freed %d bytes", freedBytes)
	return freedBytes, nil
}

// CacheSize returns the total size of cached previews.
func CacheSize(cacheDir string) (int64, error) {
	size, err := dirSize(filepath.Join(cacheDir, CacheSubdir))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return size, err
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}
