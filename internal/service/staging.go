package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Ning0612/filesync/internal/core/checksum"
	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/logger"
	"github.com/Ning0612/filesync/internal/progress"
)

const (
	// FilesDirName holds downloaded, verified copies awaiting install
	FilesDirName = "files"
	// BackupDirName receives displaced live files
	BackupDirName = "backup"
)

// makeStagingDir creates <root>/<basename>/<unix-ms>/ with its files and
// backup subtrees. A suffix is appended when two cycles share a millisecond.
func (r *Remote) makeStagingDir() (string, error) {
	parent := filepath.Join(r.stagingRoot, filepath.Base(r.config.LocalPath))
	if err := r.fs.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("%w: create staging root: %w", domain.ErrIO, err)
	}

	dir := filepath.Join(parent, strconv.FormatInt(r.clock.Now().UnixMilli(), 10))
	err := r.fs.Mkdir(dir, 0o755)
	if errors.Is(err, fs.ErrExist) {
		dir = dir + "-" + uuid.NewString()[:8]
		err = r.fs.Mkdir(dir, 0o755)
	}
	if err != nil {
		return "", fmt.Errorf("%w: create staging dir: %w", domain.ErrIO, err)
	}

	for _, sub := range []string{FilesDirName, BackupDirName} {
		if err := r.fs.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("%w: create %s dir: %w", domain.ErrIO, sub, err)
		}
	}
	return dir, nil
}

// stageAll downloads every stale path into dir. The first failure stops
// staging; nothing in the live tree has changed at that point.
func (r *Remote) stageAll(ctx context.Context, log logger.Logger, dir string, stale []domain.StalePath, peers map[string]domain.Peer) (int64, error) {
	reporter := r.cycleReporter(log)
	reporter.SetTotal(len(stale), -1)

	var total int64
	for _, sp := range stale {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		p, ok := peers[sp.Change.PeerAlias]
		if !ok {
			return total, fmt.Errorf("%s: no responding peer %s", sp.Path, sp.Change.PeerAlias)
		}

		reporter.Start(sp.Path, -1)
		n, err := r.stageFile(ctx, dir, p, sp, reporter)
		total += n
		if err != nil {
			reporter.Error(err)
			return total, fmt.Errorf("%s from %s: %w", sp.Path, p.Name, err)
		}
		reporter.Complete()
	}
	reporter.OverallProgress(len(stale), total)
	return total, nil
}

// stageFile fetches one file to dir/files/<path>, verifies it against the winning
// digest and stamps it with the winning mtime
func (r *Remote) stageFile(ctx context.Context, dir string, p domain.Peer, sp domain.StalePath, reporter progress.Reporter) (int64, error) {
	algo, ok := checksum.AlgorithmForDigest(sp.Change.Hash)
	if !ok {
		return 0, fmt.Errorf("%w: unrecognized digest %q", domain.ErrHashMismatch, sp.Change.Hash)
	}
	hasher, err := checksum.New(algo, 0)
	if err != nil {
		return 0, err
	}

	dst := stagedPath(dir, sp.Path)
	if err := r.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	f, err := r.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	digest := hasher.NewHash()
	pw := progress.NewProgressWriter(io.MultiWriter(f, digest), reporter)
	n, fetchErr := r.client.FetchFile(ctx, p, r.Name(), sp.Path, pw)
	closeErr := f.Close()
	if fetchErr != nil {
		return n, fetchErr
	}
	if closeErr != nil {
		return n, fmt.Errorf("%w: close %s: %w", domain.ErrIO, dst, closeErr)
	}

	if got := checksum.HexSum(digest); !strings.EqualFold(got, sp.Change.Hash) {
		return n, fmt.Errorf("%w: got %s, peer advertised %s", domain.ErrHashMismatch, got, sp.Change.Hash)
	}

	mtime := domain.TimeFromUnixSeconds(sp.Change.LastModified)
	if err := r.fs.Chtimes(dst, mtime, mtime); err != nil {
		return n, fmt.Errorf("%w: chtimes %s: %w", domain.ErrIO, dst, err)
	}
	return n, nil
}

// staged copies and backups live in disjoint subtrees, so a live path
// under backup/ never shares a slot with another path's backup
func stagedPath(dir, rel string) string {
	return filepath.Join(dir, FilesDirName, filepath.FromSlash(rel))
}

func backupPath(dir, rel string) string {
	return filepath.Join(dir, BackupDirName, filepath.FromSlash(rel))
}
