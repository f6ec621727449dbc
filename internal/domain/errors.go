package domain

import "errors"

// Peer / wire errors - 對等節點與協定層錯誤
var (
	// ErrPeerUnreachable indicates the peer refused the connection or timed out
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrProtocol indicates malformed or unparsable wire data
	ErrProtocol = errors.New("protocol error")

	// ErrUnknownAlias indicates a peer alias that was never registered
	ErrUnknownAlias = errors.New("unknown peer alias")
)

// Filesystem errors - 檔案系統層錯誤
var (
	// ErrNotFound indicates the requested path is absent from an index
	ErrNotFound = errors.New("not found")

	// ErrIO indicates a filesystem access failure (permission, missing file, disk full)
	ErrIO = errors.New("io error")

	// ErrUnsafePath indicates a relative path that is absolute or escapes its root
	ErrUnsafePath = errors.New("unsafe path")
)

// Sync errors - 同步邏輯層錯誤
var (
	// ErrHashMismatch indicates fetched content does not match the advertised digest
	ErrHashMismatch = errors.New("content hash mismatch")

	// ErrLocked indicates another filesync process holds the instance lock
	ErrLocked = errors.New("instance locked by another process")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// IsPeerLevel reports whether err should only exclude the peer it came from
// instead of aborting the whole sync cycle.
func IsPeerLevel(err error) bool {
	return errors.Is(err, ErrPeerUnreachable) ||
		errors.Is(err, ErrProtocol) ||
		errors.Is(err, ErrNotFound)
}
