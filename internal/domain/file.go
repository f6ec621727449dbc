package domain

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Metadata is the wire-serializable projection of one indexed file
type Metadata struct {
	// Hash is the lowercase hex digest of the full file contents.
	// The JSON key keeps its historical name regardless of algorithm.
	Hash string `json:"md5sum"`

	// LastModified is the file mtime in seconds since the Unix epoch
	LastModified float64 `json:"last_modified"`
}

// ModTime returns LastModified as a time.Time
func (m Metadata) ModTime() time.Time {
	return TimeFromUnixSeconds(m.LastModified)
}

// Snapshot is a point-in-time copy of a directory index,
// keyed by forward-slash relative path
type Snapshot map[string]Metadata

// Paths returns the snapshot keys (unordered)
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	return paths
}

// UnixSeconds converts t to fractional seconds since the Unix epoch
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// TimeFromUnixSeconds is the inverse of UnixSeconds
func TimeFromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}

// CleanRelPath normalizes a relative path to forward slashes and verifies it
// stays inside its root. Absolute paths, drive letters and any ".." segment
// are rejected with ErrUnsafePath.
func CleanRelPath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	slashed := strings.ReplaceAll(rel, "\\", "/")
	if strings.HasPrefix(slashed, "/") || (len(slashed) > 1 && slashed[1] == ':') {
		return "", fmt.Errorf("%w: absolute path %q", ErrUnsafePath, rel)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes root", ErrUnsafePath, rel)
		}
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return "", fmt.Errorf("%w: %q names the root", ErrUnsafePath, rel)
	}
	return cleaned, nil
}
