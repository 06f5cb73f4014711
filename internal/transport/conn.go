package transport

import (
	"net"
	"sync"
	"time"
)

// Conn is a transport-owned connection. Callers may target it in Send and
// compare identities, nothing more; closing is the transport's job.
type Conn struct {
	nc      net.Conn
	key     string // peerId:port for outbound, remote address for inbound
	inbound bool

	mu       sync.Mutex // serializes writes
	lastUsed time.Time
	closed   bool
}

// Key identifies the connection: peerId:port for pooled outbound
// connections, the remote address for inbound ones.
func (c *Conn) Key() string { return c.key }

// RemoteAddr reports the socket's remote address.
func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

func (c *Conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.lastUsed = time.Now()
	_, err := c.nc.Write(data)
	return err
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.nc.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// idleConn refreshes the read deadline before every read so that a quiet
// connection times out after the configured idle period.
type idleConn struct {
	nc      net.Conn
	timeout time.Duration
}

func (r idleConn) Read(p []byte) (int, error) {
	if err := r.nc.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	return r.nc.Read(p)
}
