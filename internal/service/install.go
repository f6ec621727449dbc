package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/index"
	"github.com/Ning0612/filesync/internal/logger"
)

// NotificationTitle is the title of every "file updated" notice
const NotificationTitle = "File updated"

// installAll installs staged files in plan order. Files are independent: a
// failure stops the loop, leaving earlier files installed with their
// backups and later files untouched.
func (r *Remote) installAll(log logger.Logger, dir string, stale []domain.StalePath, report *CycleReport) error {
	for _, sp := range stale {
		backup, size, err := r.installFile(dir, sp.Path)
		if err != nil {
			return fmt.Errorf("%s: %w", sp.Path, err)
		}

		report.Installed = append(report.Installed, InstalledFile{
			Path:        sp.Path,
			PeerAlias:   sp.Change.PeerAlias,
			BackupPath:  backup,
			Size:        size,
			InstalledAt: r.clock.Now(),
		})
		log.Info("updated file", "path", sp.Path, "peer", sp.Change.PeerAlias, "backup", backup)

		msg := fmt.Sprintf("%s: Updated file %s from peer %s", r.Name(), sp.Path, sp.Change.PeerAlias)
		if err := r.notifier.Notify(NotificationTitle, msg); err != nil {
			log.Warn("notification failed", "path", sp.Path, "error", err)
		}
	}
	return nil
}

// installFile replaces the live file at rel with its staged copy.
//
//  1. the staged file is moved next to the target under a temp name
//  2. an existing live file is moved (or copied) to backup/<rel>
//  3. the temp file is renamed onto the target
//
// Step 3 is a same-directory rename, so readers see the old or the new
// content. If it fails, a moved backup is put back.
func (r *Remote) installFile(dir, rel string) (backup string, size int64, err error) {
	live := filepath.Join(r.config.LocalPath, filepath.FromSlash(rel))
	staged := stagedPath(dir, rel)

	if err := r.fs.MkdirAll(filepath.Dir(live), 0o755); err != nil {
		return "", 0, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	tmp := live + "." + uuid.NewString()[:8] + index.TempSuffix
	if err := r.move(staged, tmp); err != nil {
		return "", 0, err
	}
	info, err := r.fs.Stat(tmp)
	if err != nil {
		r.fs.Remove(tmp)
		return "", 0, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	size = info.Size()

	// 舊檔案移到 backup
	liveMoved := false
	if cur, err := r.fs.Stat(live); err == nil {
		if !cur.Mode().IsRegular() {
			r.fs.Remove(tmp)
			return "", 0, fmt.Errorf("%w: %s is not a regular file", domain.ErrIO, live)
		}
		backup = backupPath(dir, rel)
		if err := r.fs.MkdirAll(filepath.Dir(backup), 0o755); err != nil {
			r.fs.Remove(tmp)
			return "", 0, fmt.Errorf("%w: %w", domain.ErrIO, err)
		}
		liveMoved, err = r.backupLive(live, backup)
		if err != nil {
			r.fs.Remove(tmp)
			return "", 0, err
		}
	} else if !os.IsNotExist(err) {
		r.fs.Remove(tmp)
		return "", 0, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	if err := r.fs.Rename(tmp, live); err != nil {
		if liveMoved {
			if rerr := r.fs.Rename(backup, live); rerr != nil {
				logger.Get().Error("failed to restore backup", "remote", r.Name(), "path", rel, "backup", backup, "error", rerr)
			}
		}
		r.fs.Remove(tmp)
		return "", 0, fmt.Errorf("%w: rename into place: %w", domain.ErrIO, err)
	}
	return backup, size, nil
}

// move renames src to dst, copying across filesystems
func (r *Remote) move(src, dst string) error {
	err := r.fs.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("%w: move %s: %w", domain.ErrIO, src, err)
	}
	if err := copyFile(r.fs, src, dst); err != nil {
		return err
	}
	r.fs.Remove(src)
	return nil
}

// backupLive moves live to backup. Across filesystems the live file is only
// copied and stays in place until the final rename replaces it. moved
// reports whether live was taken away.
func (r *Remote) backupLive(live, backup string) (moved bool, err error) {
	err = r.fs.Rename(live, backup)
	if err == nil {
		return true, nil
	}
	if !isCrossDevice(err) {
		return false, fmt.Errorf("%w: backup %s: %w", domain.ErrIO, live, err)
	}
	return false, copyFile(r.fs, live, backup)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

// copyFile copies src to dst, preserving the modification time
func copyFile(fsys afero.Fs, src, dst string) (err error) {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", domain.ErrIO, src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", domain.ErrIO, src, err)
	}

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrIO, dst, err)
	}
	defer func() {
		if err != nil {
			fsys.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("%w: copy %s: %w", domain.ErrIO, src, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("%w: sync %s: %w", domain.ErrIO, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrIO, dst, err)
	}
	return fsys.Chtimes(dst, info.ModTime(), info.ModTime())
}
