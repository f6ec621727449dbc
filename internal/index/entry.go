package index

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/filesync/internal/core/checksum"
	"github.com/Ning0612/filesync/internal/domain"
)

// Entry is one indexed regular file. The scan-time fields never change;
// when a newer mtime is observed the index swaps in a new Entry instead.
type Entry struct {
	fs      afero.Fs
	hasher  *checksum.Hasher
	absPath string
	relPath string
	modTime time.Time
	size    int64

	mu   sync.Mutex
	hash string
}

func newEntry(fs afero.Fs, hasher *checksum.Hasher, absPath, relPath string, modTime time.Time, size int64) *Entry {
	return &Entry{
		fs:      fs,
		hasher:  hasher,
		absPath: absPath,
		relPath: relPath,
		modTime: modTime,
		size:    size,
	}
}

// RelPath is the forward-slash path relative to the index root
func (e *Entry) RelPath() string { return e.relPath }

// AbsPath is the on-disk location
func (e *Entry) AbsPath() string { return e.absPath }

// ModTime is the mtime observed at scan time
func (e *Entry) ModTime() time.Time { return e.modTime }

// Size is the byte size observed at scan time
func (e *Entry) Size() int64 { return e.size }

// Hash returns the content digest, computing it on first use.
// Failures are returned to the caller and not memoized.
func (e *Entry) Hash(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hash != "" {
		return e.hash, nil
	}
	sum, err := e.hasher.SumFile(ctx, e.fs, e.absPath)
	if err != nil {
		return "", err
	}
	e.hash = sum
	return sum, nil
}

// Metadata returns the wire projection of the entry
func (e *Entry) Metadata(ctx context.Context) (domain.Metadata, error) {
	sum, err := e.Hash(ctx)
	if err != nil {
		return domain.Metadata{}, err
	}
	return domain.Metadata{
		Hash:         sum,
		LastModified: domain.UnixSeconds(e.modTime),
	}, nil
}

func joinRel(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}
