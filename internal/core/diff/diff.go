package diff

import (
	"strings"

	"github.com/Ning0612/filesync/internal/domain"
)

// DiffResult represents the comparison of a local file with the winning peer record
type DiffResult int

const (
	// FilesIdentical indicates the content digests match
	FilesIdentical DiffResult = iota
	// LocalNewer indicates the local copy is as new or newer; the peer version is ignored
	LocalNewer
	// FileOutdated indicates the peer version is newer and the content differs
	FileOutdated
	// FileMissing indicates the path does not exist locally
	FileMissing
)

// String returns a short reason suitable for logs
func (r DiffResult) String() string {
	switch r {
	case FilesIdentical:
		return "identical"
	case LocalNewer:
		return "local is newer"
	case FileOutdated:
		return "peer has newer content"
	case FileMissing:
		return "missing locally"
	default:
		return "unknown"
	}
}

// Stale reports whether the result requires a download
func (r DiffResult) Stale() bool {
	return r == FileOutdated || r == FileMissing
}

// Comparer compares local metadata with the winning peer record
type Comparer interface {
	// Compare returns the diff result; local is nil when the path is absent
	Compare(local *domain.Metadata, remote domain.ChangeRecord) DiffResult
}

// DefaultComparer requires both a strictly newer timestamp and a different
// digest before a file is considered stale. A peer that only touched the
// mtime does not trigger a transfer.
type DefaultComparer struct{}

// NewDefaultComparer creates a new DefaultComparer
func NewDefaultComparer() *DefaultComparer {
	return &DefaultComparer{}
}

// Compare implements the Comparer interface
func (c *DefaultComparer) Compare(local *domain.Metadata, remote domain.ChangeRecord) DiffResult {
	if local == nil {
		return FileMissing
	}
	if strings.EqualFold(local.Hash, remote.Hash) {
		return FilesIdentical
	}
	if remote.LastModified > local.LastModified {
		return FileOutdated
	}
	return LocalNewer
}

// IsStale is a shorthand for DefaultComparer.Compare(...).Stale()
func IsStale(local *domain.Metadata, remote domain.ChangeRecord) bool {
	return (&DefaultComparer{}).Compare(local, remote).Stale()
}
