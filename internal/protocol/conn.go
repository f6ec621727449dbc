package protocol

import (
	"net"
	"time"
)

// IdleConn extends the deadline before every read and write, so the
// timeout bounds idle time rather than the whole transfer.
type IdleConn struct {
	net.Conn
	Timeout time.Duration
}

// NewIdleConn wraps conn; a non-positive timeout disables deadlines
func NewIdleConn(conn net.Conn, timeout time.Duration) *IdleConn {
	return &IdleConn{Conn: conn, Timeout: timeout}
}

func (c *IdleConn) Read(b []byte) (int, error) {
	if c.Timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *IdleConn) Write(b []byte) (int, error) {
	if c.Timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// CloseWrite half-closes the connection when the transport supports it
func (c *IdleConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
