// Package server answers peer requests for the remotes served by this host.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/index"
	"github.com/Ning0612/filesync/internal/logger"
	"github.com/Ning0612/filesync/internal/protocol"
)

// DefaultTimeout bounds request reads and idle response writes
const DefaultTimeout = 10 * time.Second

// Index is the per-remote view the server needs
type Index interface {
	Refresh(ctx context.Context) error
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	Open(rel string) (afero.File, os.FileInfo, error)
}

// Source resolves a remote name to its index
type Source interface {
	Index(remote string) (Index, bool)
}

// Indexes is a static Source
type Indexes map[string]*index.DirectoryIndex

// Index implements Source
func (m Indexes) Index(remote string) (Index, bool) {
	idx, ok := m[remote]
	if !ok {
		return nil, false
	}
	return idx, true
}

// Options configures a Server
type Options struct {
	// Bind is the listen host; empty listens on all interfaces
	Bind string
	Port int

	// Timeout bounds reading the request and each write of the response
	Timeout time.Duration
}

// Server accepts one request per connection
type Server struct {
	source Source
	opts   Options
	log    logger.Logger

	mu   sync.Mutex
	addr net.Addr
	wg   sync.WaitGroup
}

// New creates a Server over source
func New(source Source, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Server{
		source: source,
		opts:   opts,
		log:    logger.With("component", "server"),
	}
}

// Listen opens the TCP listener on Bind:Port without serving it
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	addr := net.JoinHostPort(s.opts.Bind, strconv.Itoa(s.opts.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// ListenAndServe listens on Bind:Port and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen(ctx)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Addr returns the listening address once Serve has started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener and waits for in-flight handlers. It returns nil on cancellation.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.log.Info("request server listening", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("request server stopped")
				return nil
			}
			if !errors.Is(err, net.ErrClosed) && retryableAccept(err) {
				backoff = nextBackoff(backoff)
				s.log.Warn("accept failed, retrying", "error", err, "backoff", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
				}
				continue
			}
			ln.Close()
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// retryableAccept reports accept errors the listener recovers from, such as
// running out of file descriptors under load
func retryableAccept(err error) bool {
	switch {
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE),
		errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ENOBUFS), errors.Is(err, syscall.ENOMEM):
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var temp interface{ Temporary() bool }
	return errors.As(err, &temp) && temp.Temporary()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// handle serves a single request. Rejections close the connection
// without writing a header.
func (s *Server) handle(ctx context.Context, raw net.Conn) {
	log := s.log.With("client", raw.RemoteAddr().String())
	defer func() {
		if r := recover(); r != nil {
			log.Error("request handler panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	defer raw.Close()

	stop := context.AfterFunc(ctx, func() { raw.Close() })
	defer stop()

	conn := protocol.NewIdleConn(raw, s.opts.Timeout)

	req, err := protocol.ReadRequest(conn)
	if err != nil {
		log.Warn("rejecting malformed request", "error", err)
		return
	}
	log = log.With("remote", req.RemoteName, "request", req.Type.String())

	idx, ok := s.source.Index(req.RemoteName)
	if !ok {
		log.Warn("rejecting request for unknown remote")
		return
	}
	if err := idx.Refresh(ctx); err != nil {
		log.Error("index refresh failed", "error", err)
		return
	}

	switch req.Type {
	case protocol.RequestIndex:
		err = s.sendIndex(ctx, conn, idx)
	case protocol.RequestFile:
		log = log.With("path", req.Filepath)
		err = s.sendFile(conn, idx, req.Filepath)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("rejecting request for unindexed path")
		} else {
			log.Warn("request failed", "error", err)
		}
		return
	}
	log.Debug("request served")
}

func (s *Server) sendIndex(ctx context.Context, w io.Writer, idx Index) error {
	snap, err := idx.Snapshot(ctx)
	if err != nil {
		return err
	}
	data, err := protocol.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := protocol.WriteHeader(w, int64(len(data))); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (s *Server) sendFile(w io.Writer, idx Index, rel string) error {
	f, info, err := idx.Open(rel)
	if err != nil {
		return err
	}
	defer f.Close()

	size := info.Size()
	if err := protocol.WriteHeader(w, size); err != nil {
		return err
	}
	if _, err := io.CopyN(w, f, size); err != nil {
		return fmt.Errorf("send %s: %w", rel, err)
	}
	return nil
}
