// Package protocol implements the peer wire format.
//
// A connection carries exactly one request. The client writes a JSON request
// object; the server answers with a JSON header {"response_size": N}
// followed by exactly N payload bytes, then closes. A server that rejects a
// request closes the connection without writing anything.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/Ning0612/filesync/internal/domain"
)

// RequestType selects the requested resource
type RequestType int

const (
	// RequestIndex asks for the snapshot of a remote
	RequestIndex RequestType = 0
	// RequestFile asks for the raw bytes of one file
	RequestFile RequestType = 1
)

// String returns the string representation of the request type
func (t RequestType) String() string {
	switch t {
	case RequestIndex:
		return "index"
	case RequestFile:
		return "file"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

const (
	// MaxRequestSize bounds the request object a server will read
	MaxRequestSize = 64 * 1024

	// maxHeaderSize bounds {"response_size": N}; N fits in 19 digits
	maxHeaderSize = 64
)

// Request is one decoded client request
type Request struct {
	Type       RequestType
	RemoteName string
	Filepath   string
}

type wireRequest struct {
	RequestType *int    `json:"request_type"`
	RemoteName  *string `json:"remote_name"`
	Filepath    *string `json:"filepath,omitempty"`
}

type wireHeader struct {
	ResponseSize *int64 `json:"response_size"`
}

// Validate checks the fields required by the request type
func (r Request) Validate() error {
	if r.RemoteName == "" {
		return fmt.Errorf("%w: missing remote_name", domain.ErrProtocol)
	}
	switch r.Type {
	case RequestIndex:
		return nil
	case RequestFile:
		if r.Filepath == "" {
			return fmt.Errorf("%w: missing filepath", domain.ErrProtocol)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown request_type %d", domain.ErrProtocol, int(r.Type))
	}
}

// WriteRequest encodes req as a single JSON object
func WriteRequest(w io.Writer, req Request) error {
	t := int(req.Type)
	wire := wireRequest{RequestType: &t, RemoteName: &req.RemoteName}
	if req.Type == RequestFile {
		wire.Filepath = &req.Filepath
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadRequest decodes one request object from r, reading at most
// MaxRequestSize bytes. Malformed or incomplete requests wrap ErrProtocol.
func ReadRequest(r io.Reader) (Request, error) {
	var wire wireRequest
	dec := json.NewDecoder(io.LimitReader(r, MaxRequestSize))
	if err := dec.Decode(&wire); err != nil {
		return Request{}, fmt.Errorf("%w: decode request: %w", domain.ErrProtocol, err)
	}

	if wire.RequestType == nil {
		return Request{}, fmt.Errorf("%w: missing request_type", domain.ErrProtocol)
	}
	req := Request{Type: RequestType(*wire.RequestType)}
	if wire.RemoteName != nil {
		req.RemoteName = *wire.RemoteName
	}
	if wire.Filepath != nil {
		req.Filepath = *wire.Filepath
	}
	return req, req.Validate()
}

// WriteHeader writes the response size header
func WriteHeader(w io.Writer, size int64) error {
	_, err := fmt.Fprintf(w, `{"response_size": %d}`, size)
	return err
}

// ReadHeader reads the response header up to its closing brace. It returns
// io.EOF only when the connection closed before any byte arrived.
func ReadHeader(r *bufio.Reader) (int64, error) {
	var buf bytes.Buffer
	for buf.Len() < maxHeaderSize {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && buf.Len() == 0 {
				return 0, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("%w: truncated header %q", domain.ErrProtocol, buf.String())
			}
			return 0, err
		}
		buf.WriteByte(b)
		if b == '}' {
			return parseHeader(buf.Bytes())
		}
	}
	return 0, fmt.Errorf("%w: header exceeds %d bytes", domain.ErrProtocol, maxHeaderSize)
}

func parseHeader(data []byte) (int64, error) {
	var h wireHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return 0, fmt.Errorf("%w: parse header %q: %w", domain.ErrProtocol, data, err)
	}
	if h.ResponseSize == nil {
		return 0, fmt.Errorf("%w: header %q lacks response_size", domain.ErrProtocol, data)
	}
	if *h.ResponseSize < 0 {
		return 0, fmt.Errorf("%w: negative response_size %d", domain.ErrProtocol, *h.ResponseSize)
	}
	return *h.ResponseSize, nil
}

// EncodeSnapshot renders a snapshot as the index payload
func EncodeSnapshot(snap domain.Snapshot) ([]byte, error) {
	if snap == nil {
		snap = domain.Snapshot{}
	}
	return json.Marshal(snap)
}

// DecodeSnapshot parses an index payload. Keys are normalized to forward
// slashes; a key that escapes the root makes the whole payload invalid.
func DecodeSnapshot(data []byte) (domain.Snapshot, error) {
	var raw map[string]domain.Metadata
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse snapshot: %w", domain.ErrProtocol, err)
	}

	snap := make(domain.Snapshot, len(raw))
	for key, meta := range raw {
		clean, err := domain.CleanRelPath(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrProtocol, err)
		}
		if _, dup := snap[clean]; dup {
			return nil, fmt.Errorf("%w: duplicate path %q", domain.ErrProtocol, clean)
		}
		if meta.Hash == "" {
			return nil, fmt.Errorf("%w: %q has no digest", domain.ErrProtocol, key)
		}
		snap[clean] = meta
	}
	return snap, nil
}
