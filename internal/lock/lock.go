package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/Ning0612/filesync/internal/domain"
)

const (
	// LockFileName is the advisory lock file inside the state directory
	LockFileName = "filesync.lock"
	// InfoFileName holds the JSON description of the current holder
	InfoFileName = "filesync.lock.json"
)

// LockInfo contains metadata about the lock holder
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Command   string    `json:"command,omitempty"`
}

// FileLock is an OS-level advisory lock that keeps a second filesync process
// from operating on the same state directory. The kernel drops the lock when
// the holder exits, so a crashed process never leaves a stale lock behind.
type FileLock struct {
	flock    *flock.Flock
	infoPath string
	info     *LockInfo
}

// NewFileLock creates a lock in lockDir (created if missing)
func NewFileLock(lockDir string) (*FileLock, error) {
	if lockDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config dir: %w", err)
		}
		lockDir = filepath.Join(configDir, "filesync")
	}

	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &FileLock{
		flock:    flock.New(filepath.Join(lockDir, LockFileName)),
		infoPath: filepath.Join(lockDir, InfoFileName),
	}, nil
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.flock.Path()
}

// Acquire takes the lock without blocking. command describes the holder
// (e.g. "run" or "sync") for status output.
func (l *FileLock) Acquire(command string) error {
	if l.info != nil {
		l.info.Command = command
		return l.writeLockInfo(l.info)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.flock.Path(), err)
	}
	if !locked {
		holder, _ := l.readLockInfo()
		return &LockError{Holder: holder, Reason: "lock is held by another process"}
	}

	hostname, _ := os.Hostname()
	info := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Command:   command,
	}
	if err := l.writeLockInfo(info); err != nil {
		l.flock.Unlock()
		return err
	}

	l.info = info
	return nil
}

// Release releases the lock. Releasing an unheld lock is a no-op.
func (l *FileLock) Release() error {
	if l.info == nil {
		return nil
	}

	if err := os.Remove(l.infoPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock info: %w", err)
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}

	l.info = nil
	return nil
}

// IsLocked reports whether any process, including this one, holds the lock
func (l *FileLock) IsLocked() bool {
	if l.info != nil {
		return true
	}

	probe := flock.New(l.flock.Path())
	locked, err := probe.TryLock()
	if err != nil {
		return false
	}
	if locked {
		probe.Unlock()
		return false
	}
	return true
}

// GetHolder returns information about the current lock holder
func (l *FileLock) GetHolder() (*LockInfo, error) {
	if !l.IsLocked() {
		return nil, errors.New("lock is not held")
	}
	return l.readLockInfo()
}

func (l *FileLock) readLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(l.infoPath)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock info format: %w", err)
	}
	return &info, nil
}

func (l *FileLock) writeLockInfo(info *LockInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(l.infoPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	return nil
}

// LockError represents an error when lock cannot be acquired
type LockError struct {
	Holder *LockInfo
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("cannot acquire lock: %s (held by PID %d on %s since %s, command: %s)",
			e.Reason,
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
			e.Holder.Command,
		)
	}
	return fmt.Sprintf("cannot acquire lock: %s", e.Reason)
}

// Unwrap lets callers match domain.ErrLocked
func (e *LockError) Unwrap() error {
	return domain.ErrLocked
}

// IsLockError checks if an error is a LockError
func IsLockError(err error) bool {
	var le *LockError
	return errors.As(err, &le)
}
