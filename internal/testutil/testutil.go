package testutil

import (
	"math/rand"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// WriteTree creates files (relative slash paths → content) under root on fs,
// creating parent directories as needed
func WriteTree(t *testing.T, fs afero.Fs, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", rel, err)
		}
		if err := afero.WriteFile(fs, full, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create test file %s: %v", rel, err)
		}
	}
}

// WriteFileAt writes one file and sets its mtime
func WriteFileAt(t *testing.T, fs afero.Fs, root, rel, content string, mtime time.Time) string {
	t.Helper()

	WriteTree(t, fs, root, map[string]string{rel: content})
	full := filepath.Join(root, filepath.FromSlash(path.Clean(rel)))
	if err := fs.Chtimes(full, mtime, mtime); err != nil {
		t.Fatalf("failed to set mtime of %s: %v", rel, err)
	}
	return full
}

// ReadFile returns the content of root/rel, failing the test if it is missing
func ReadFile(t *testing.T, fs afero.Fs, root, rel string) string {
	t.Helper()

	data, err := afero.ReadFile(fs, filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

// RandomBytes returns size pseudo-random bytes
func RandomBytes(size int) []byte {
	buf := make([]byte, size)
	rand.Read(buf)
	return buf
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		<-ticker.C
	}
}

// AssertEventually asserts that a condition becomes true within timeout
func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()

	if !WaitForCondition(timeout, condition) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("condition not met within %v: %v", timeout, msgAndArgs[0])
		} else {
			t.Fatalf("condition not met within %v", timeout)
		}
	}
}
