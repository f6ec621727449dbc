package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/protocol"
)

const (
	// DefaultTimeout applies to connecting and to every read or write
	DefaultTimeout = 10 * time.Second

	// DefaultMaxIndexSize bounds the index payload accepted from a peer
	DefaultMaxIndexSize int64 = 256 << 20
)

// ClientOptions configures a Client
type ClientOptions struct {
	// Timeout bounds the dial and each individual read or write
	Timeout time.Duration

	// MaxIndexSize rejects larger index payloads with ErrProtocol
	MaxIndexSize int64
}

// Client issues one request per fresh TCP connection
type Client struct {
	opts   ClientOptions
	dialer net.Dialer
}

// NewClient creates a Client; zero options select the defaults
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxIndexSize <= 0 {
		opts.MaxIndexSize = DefaultMaxIndexSize
	}
	return &Client{
		opts:   opts,
		dialer: net.Dialer{Timeout: opts.Timeout},
	}
}

// FetchIndex retrieves the snapshot p holds for remote
func (c *Client) FetchIndex(ctx context.Context, p domain.Peer, remote string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.do(ctx, p, protocol.Request{Type: protocol.RequestIndex, RemoteName: remote},
		func(r io.Reader, size int64) error {
			if size > c.opts.MaxIndexSize {
				return fmt.Errorf("%w: index of %d bytes exceeds limit of %d", domain.ErrProtocol, size, c.opts.MaxIndexSize)
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return c.payloadErr(p, size, err)
			}
			var err error
			snap, err = protocol.DecodeSnapshot(data)
			return err
		})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// FetchFile streams the content of path on p into w and returns the number
// of bytes written. Failures writing to w wrap domain.ErrIO.
func (c *Client) FetchFile(ctx context.Context, p domain.Peer, remote, path string, w io.Writer) (int64, error) {
	var n int64
	err := c.do(ctx, p, protocol.Request{Type: protocol.RequestFile, RemoteName: remote, Filepath: path},
		func(r io.Reader, size int64) error {
			tw := &trackingWriter{w: w}
			var err error
			n, err = io.CopyN(tw, r, size)
			if err == nil {
				return nil
			}
			if tw.err != nil {
				return fmt.Errorf("%w: write %s: %w", domain.ErrIO, path, tw.err)
			}
			return c.payloadErr(p, size, err)
		})
	return n, err
}

func (c *Client) do(ctx context.Context, p domain.Peer, req protocol.Request, read func(io.Reader, int64) error) error {
	raw, err := c.dialer.DialContext(ctx, "tcp", p.Address())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s at %s: %w", domain.ErrPeerUnreachable, p.Name, p.Address(), err)
	}
	conn := protocol.NewIdleConn(raw, c.opts.Timeout)
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := protocol.WriteRequest(conn, req); err != nil {
		return c.ioErr(ctx, p, "send request", err)
	}
	// signal end of request; peers that read until EOF need it
	_ = conn.CloseWrite()

	br := bufio.NewReader(conn)
	size, err := protocol.ReadHeader(br)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s rejected %s request for %s/%s",
				domain.ErrNotFound, p.Name, req.Type, req.RemoteName, req.Filepath)
		}
		if errors.Is(err, domain.ErrProtocol) {
			return fmt.Errorf("%w (peer %s)", err, p.Name)
		}
		return c.ioErr(ctx, p, "read header", err)
	}

	if err := read(br, size); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Client) ioErr(ctx context.Context, p domain.Peer, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s %s: %w", domain.ErrPeerUnreachable, op, p.Name, err)
}

// payloadErr classifies a failed payload read: a timeout means the peer
// went away, a short read means it lied about the size.
func (c *Client) payloadErr(p domain.Peer, size int64, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: read payload from %s: %w", domain.ErrPeerUnreachable, p.Name, err)
	}
	return fmt.Errorf("%w: short payload from %s (want %d bytes): %w", domain.ErrProtocol, p.Name, size, err)
}

type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	n, err := t.w.Write(b)
	if err != nil {
		t.err = err
	}
	return n, err
}
