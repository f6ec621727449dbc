package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/Ning0612/filesync/internal/domain"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	// MD5 matches legacy peers that advertise md5 digests
	MD5 Algorithm = "md5"
	// SHA256 is the default
	SHA256 Algorithm = "sha256"
)

// DefaultBufferSize is the chunk size used when streaming file contents
const DefaultBufferSize = 32 * 1024

// ParseAlgorithm parses a config value (case-insensitive, empty = SHA256)
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", SHA256:
		return SHA256, nil
	case MD5:
		return MD5, nil
	default:
		return "", fmt.Errorf("unsupported algorithm: %s", s)
	}
}

// Hasher computes content digests in fixed-size chunks
type Hasher struct {
	algo       Algorithm
	bufferSize int
}

// New creates a Hasher. bufferSize <= 0 selects DefaultBufferSize.
func New(algo Algorithm, bufferSize int) (*Hasher, error) {
	if algo != MD5 && algo != SHA256 {
		return nil, fmt.Errorf("unsupported algorithm: %s", algo)
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hasher{algo: algo, bufferSize: bufferSize}, nil
}

// NewDefault returns a SHA256 hasher with the default buffer size
func NewDefault() *Hasher {
	return &Hasher{algo: SHA256, bufferSize: DefaultBufferSize}
}

// Algorithm returns the configured algorithm
func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

// NewHash returns a fresh hash.Hash for the configured algorithm
func (h *Hasher) NewHash() hash.Hash {
	if h.algo == MD5 {
		return md5.New()
	}
	return sha256.New()
}

// Sum streams reader through the digest and returns the lowercase hex sum
func (h *Hasher) Sum(ctx context.Context, reader io.Reader) (string, error) {
	digest := h.NewHash()
	buffer := make([]byte, h.bufferSize)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := reader.Read(buffer)
		if n > 0 {
			digest.Write(buffer[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}

// SumFile hashes the file at path on fsys. Open and read failures wrap domain.ErrIO.
func (h *Hasher) SumFile(ctx context.Context, fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", domain.ErrIO, path, err)
	}
	defer f.Close()

	sum, err := h.Sum(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: hash %s: %w", domain.ErrIO, path, err)
	}
	return sum, nil
}

// HexSum renders a finished hash.Hash the same way Hasher.Sum does
func HexSum(digest hash.Hash) string {
	return hex.EncodeToString(digest.Sum(nil))
}

// AlgorithmForDigest infers the algorithm from a hex digest's length
func AlgorithmForDigest(digest string) (Algorithm, bool) {
	switch len(digest) {
	case hex.EncodedLen(md5.Size):
		return MD5, true
	case hex.EncodedLen(sha256.Size):
		return SHA256, true
	default:
		return "", false
	}
}
