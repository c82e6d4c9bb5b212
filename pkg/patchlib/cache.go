package patchlib

import (
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ReadCache reads the patcher cache file at path. A missing or corrupt file
// is treated as cold start, not an error: it returns (nil, nil).
func ReadCache(path string) (*PatcherCache, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var c PatcherCache
	if err := gob.NewDecoder(f).Decode(&c); err != nil {
		// Corrupt cache is cold start, not a fatal error.
		return nil, nil
	}
	return &c, nil
}

// WriteCache durably persists c to path: encode to a temporary sibling,
// fsync it, then atomically rename over path. Unlike a truncate-in-place
// rewrite, this can never leave a half-written cache on disk if the
// process dies mid-write.
func WriteCache(path string, c PatcherCache) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp-"+uuid.NewString())

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(f).Encode(&c); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// DeleteCache removes the cache file. Per spec §9, ResetCache only clears
// this file — it never touches applied containers or disk overlays, since
// those remain the authoritative installed state.
func DeleteCache(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
