package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/filesync/internal/core/checksum"
	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/logger"
)

// Options configures a DirectoryIndex. Zero values select the OS
// filesystem, the default SHA256 hasher and the default ignore list.
type Options struct {
	Fs     afero.Fs
	Hasher *checksum.Hasher
	Ignore *IgnoreList
}

// DirectoryIndex maps root-relative paths to entries for one directory tree.
//
// Rebuild and Refresh are serialized by scanMu. Both walk the tree without
// holding mu, then swap the new map in under the write lock, so readers
// observe either the previous or the next complete state.
type DirectoryIndex struct {
	root   string
	fs     afero.Fs
	hasher *checksum.Hasher
	ignore *IgnoreList

	scanMu  sync.Mutex
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty index rooted at root. Call Rebuild to populate it.
func New(root string, opts Options) *DirectoryIndex {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Hasher == nil {
		opts.Hasher = checksum.NewDefault()
	}
	if opts.Ignore == nil {
		opts.Ignore = NewIgnoreList()
	}
	return &DirectoryIndex{
		root:    filepath.Clean(root),
		fs:      opts.Fs,
		hasher:  opts.Hasher,
		ignore:  opts.Ignore,
		entries: make(map[string]*Entry),
	}
}

// Root returns the indexed directory
func (d *DirectoryIndex) Root() string {
	return d.root
}

// Ignored reports whether rel is outside the index because of ignore rules
func (d *DirectoryIndex) Ignored(rel string) bool {
	return d.ignore.Excludes(rel)
}

// Rebuild rescans the whole tree and recreates every entry
func (d *DirectoryIndex) Rebuild(ctx context.Context) error {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()

	found, err := d.scan(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*Entry, len(found))
	for rel, info := range found {
		next[rel] = d.entryFor(rel, info)
	}

	d.mu.Lock()
	d.entries = next
	d.mu.Unlock()

	logger.Get().Debug("index rebuilt", "root", d.root, "files", len(next))
	return nil
}

// Refresh rescans the tree, adding new paths and replacing entries whose
// on-disk mtime is strictly newer. Entries of deleted files are kept.
func (d *DirectoryIndex) Refresh(ctx context.Context) error {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()

	found, err := d.scan(ctx)
	if err != nil {
		return err
	}

	d.mu.RLock()
	next := make(map[string]*Entry, len(d.entries))
	for rel, e := range d.entries {
		next[rel] = e
	}
	d.mu.RUnlock()

	updated := 0
	for rel, info := range found {
		if cur, ok := next[rel]; ok && !info.ModTime().After(cur.ModTime()) {
			continue
		}
		next[rel] = d.entryFor(rel, info)
		updated++
	}

	d.mu.Lock()
	d.entries = next
	d.mu.Unlock()

	if updated > 0 {
		logger.Get().Debug("index refreshed", "root", d.root, "updated", updated, "files", len(next))
	}
	return nil
}

// Get returns the entry for rel, or domain.ErrNotFound
func (d *DirectoryIndex) Get(rel string) (*Entry, error) {
	clean, err := domain.CleanRelPath(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, err)
	}

	d.mu.RLock()
	e, ok := d.entries[clean]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, clean)
	}
	return e, nil
}

// Has reports whether rel is indexed
func (d *DirectoryIndex) Has(rel string) bool {
	_, err := d.Get(rel)
	return err == nil
}

// Len returns the number of indexed files
func (d *DirectoryIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Paths returns the indexed paths in sorted order
func (d *DirectoryIndex) Paths() []string {
	d.mu.RLock()
	paths := make([]string, 0, len(d.entries))
	for rel := range d.entries {
		paths = append(paths, rel)
	}
	d.mu.RUnlock()

	sort.Strings(paths)
	return paths
}

// Snapshot returns the metadata of every entry, hashing lazily outside the
// map lock. Entries that can no longer be read are left out with a warning.
func (d *DirectoryIndex) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	d.mu.RLock()
	entries := make([]*Entry, 0, len(d.entries))
	for _, e := range d.entries {
		entries = append(entries, e)
	}
	d.mu.RUnlock()

	var mu sync.Mutex
	snap := make(domain.Snapshot, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, e := range entries {
		e := e
		g.Go(func() error {
			meta, err := e.Metadata(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrIO) {
					logger.Get().Warn("omitting unreadable file from snapshot",
						"root", d.root, "path", e.RelPath(), "error", err)
					return nil
				}
				return err
			}
			mu.Lock()
			snap[e.RelPath()] = meta
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (d *DirectoryIndex) entryFor(rel string, info os.FileInfo) *Entry {
	return newEntry(d.fs, d.hasher, joinRel(d.root, rel), rel, info.ModTime(), info.Size())
}

// scan walks the tree and returns the regular files it finds, keyed by
// relative path. Only an unreadable root fails the scan.
func (d *DirectoryIndex) scan(ctx context.Context) (map[string]os.FileInfo, error) {
	found := make(map[string]os.FileInfo)

	err := afero.Walk(d.fs, d.root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == d.root {
				return fmt.Errorf("%w: scan %s: %w", domain.ErrIO, d.root, err)
			}
			logger.Get().Warn("skipping unreadable path", "root", d.root, "path", path, "error", err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == d.root {
			if !info.IsDir() {
				return fmt.Errorf("%w: %s is not a directory", domain.ErrIO, d.root)
			}
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if d.ignore.ShouldIgnore(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		// symlinks, devices, sockets and pipes are never indexed
		if !info.Mode().IsRegular() {
			return nil
		}
		if d.ignore.ShouldIgnore(rel) {
			return nil
		}

		found[rel] = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Open opens the indexed file at rel for reading. It returns
// domain.ErrNotFound for unindexed paths and domain.ErrIO when the file
// cannot be opened.
func (d *DirectoryIndex) Open(rel string) (afero.File, os.FileInfo, error) {
	e, err := d.Get(rel)
	if err != nil {
		return nil, nil, err
	}
	f, err := d.fs.Open(e.AbsPath())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %w", domain.ErrIO, e.AbsPath(), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: stat %s: %w", domain.ErrIO, e.AbsPath(), err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s is no longer a regular file", domain.ErrIO, e.AbsPath())
	}
	return f, info, nil
}
