package transport

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"peerchat/internal/config"
	"peerchat/internal/domain"
)

var (
	// ErrBindFailed is returned when a candidate port exists but the
	// listener cannot be created on it.
	ErrBindFailed = errors.New("bind failed")

	// ErrNoAvailablePort is returned when the whole probe window is taken.
	ErrNoAvailablePort = errors.New("no available port in probe window")

	// ErrConnectTimeout is returned when dialing exceeds the connect timeout.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrConnectionRefused is returned when the peer cannot be reached.
	ErrConnectionRefused = errors.New("connection refused")

	// ErrMessageTooLarge closes a connection whose raw chunk exceeds the
	// configured size limit.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrNotStarted is returned by operations that need a running listener.
	ErrNotStarted = errors.New("transport not started")
)

// Handler consumes one parsed inbound record. It is invoked synchronously
// from the connection's read loop, so records on a single connection arrive
// in byte order.
type Handler func(rec domain.Record, from *Conn)

// Transport owns the listening socket, the inbound connection set and the
// outbound connection pool.
type Transport struct {
	cfg *config.Config
	log *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	peerID   string
	port     int
	handler  Handler
	inbound  map[*Conn]struct{}
	pool     map[string]*Conn
	poolKeys []string // insertion order, oldest first
	started  bool
}

// New builds a transport with the given limits. Pass nil for defaults.
func New(cfg *config.Config) *Transport {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Transport{
		cfg:     cfg,
		log:     logrus.WithField("component", "transport"),
		inbound: make(map[*Conn]struct{}),
		pool:    make(map[string]*Conn),
	}
}

// Handle registers the inbound-record dispatcher. It must be called before
// Start so no record is dropped on the floor.
func (t *Transport) Handle(fn Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

// Start picks a randomized high port, binds the loopback listener and
// begins accepting. The port window is probed in order from a random base
// so the endpoint is not fingerprintable by a fixed port number.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}

	base, err := randomPortBase(t.cfg.PortBase, t.cfg.PortWindow)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	var ln net.Listener
	port := 0
	for i := 0; i < t.cfg.PortWindow; i++ {
		candidate := base + i
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(candidate)))
		if err == nil {
			ln, port = l, candidate
			break
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: port %d: %v", ErrBindFailed, candidate, err)
		}
	}
	if ln == nil {
		return fmt.Errorf("%w: [%d, %d)", ErrNoAvailablePort, base, base+t.cfg.PortWindow)
	}

	id := make([]byte, 8)
	if _, err := rand.Read(id); err != nil {
		ln.Close()
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	t.listener = ln
	t.peerID = hex.EncodeToString(id)
	t.port = port
	t.started = true

	t.log.WithFields(logrus.Fields{
		"peer_id": t.peerID,
		"port":    port,
	}).Info("listening")

	go t.acceptLoop(ln)
	return nil
}

// PeerID returns the opaque identifier generated at Start.
func (t *Transport) PeerID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerID
}

// Port returns the bound listening port.
func (t *Transport) Port() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

// Listening reports whether the listener is up.
func (t *Transport) Listening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Descriptor builds the shareable connection descriptor around the given
// key material.
func (t *Transport) Descriptor(keyMaterial string) (domain.Descriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return domain.Descriptor{}, ErrNotStarted
	}
	return domain.Descriptor{ID: t.peerID, Port: t.port, Key: keyMaterial}, nil
}

// Dial connects to the endpoint a descriptor names, reusing a pooled
// connection when a live one exists under the same peerId:port key.
func (t *Transport) Dial(desc domain.Descriptor) (*Conn, error) {
	key := desc.ID + ":" + strconv.Itoa(desc.Port)

	t.mu.Lock()
	if c, ok := t.pool[key]; ok {
		if !c.isClosed() {
			t.mu.Unlock()
			return c, nil
		}
		t.removePooledLocked(key)
	}
	t.mu.Unlock()

	nc, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(desc.Port)), t.cfg.ConnectTimeout)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, key)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectionRefused, key, err)
	}

	c := &Conn{nc: nc, key: key, lastUsed: time.Now()}

	t.mu.Lock()
	t.pool[key] = c
	t.poolKeys = append(t.poolKeys, key)
	for len(t.pool) > t.cfg.PoolSize {
		oldest := t.poolKeys[0]
		evicted := t.pool[oldest]
		t.removePooledLocked(oldest)
		evicted.close()
		t.log.WithField("key", oldest).Debug("evicted pooled connection")
	}
	t.mu.Unlock()

	t.log.WithField("key", key).Info("dialed peer")

	// The dialer hears handshake replies on this same socket.
	go t.readLoop(c)
	return c, nil
}

// Send writes a record to the target connection, or broadcasts to every
// open inbound connection when target is nil. It reports whether at least
// one write succeeded; a closed target yields false, never an error.
func (t *Transport) Send(rec domain.Record, target *Conn) bool {
	data, err := rec.Marshal()
	if err != nil {
		t.log.WithError(err).Warn("drop unencodable record")
		return false
	}
	data = append(data, '\n')

	if target != nil {
		if err := target.write(data); err != nil {
			t.drop(target)
			return false
		}
		return true
	}

	t.mu.Lock()
	conns := make([]*Conn, 0, len(t.inbound))
	for c := range t.inbound {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	ok := false
	for _, c := range conns {
		if err := c.write(data); err != nil {
			t.drop(c)
			continue
		}
		ok = true
	}
	return ok
}

// ConnectionCount reports inbound plus pooled outbound connections.
func (t *Transport) ConnectionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inbound) + len(t.pool)
}

// Stop closes the listener and every connection and clears all state.
// Safe to call more than once.
func (t *Transport) Stop() {
	t.mu.Lock()
	// A transport that only dialed still owns pooled sockets, so clean up
	// whether or not the listener ever started.
	wasStarted := t.started
	t.started = false
	ln := t.listener
	t.listener = nil

	conns := make([]*Conn, 0, len(t.inbound)+len(t.pool))
	for c := range t.inbound {
		conns = append(conns, c)
	}
	for _, c := range t.pool {
		conns = append(conns, c)
	}
	t.inbound = make(map[*Conn]struct{})
	t.pool = make(map[string]*Conn)
	t.poolKeys = nil
	t.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.close()
	}
	if wasStarted || len(conns) > 0 {
		t.log.Info("transport stopped")
	}
}

func (t *Transport) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return
		}

		t.mu.Lock()
		if len(t.inbound) >= t.cfg.MaxInbound {
			t.mu.Unlock()
			nc.Close()
			t.log.WithField("remote", nc.RemoteAddr().String()).Warn("inbound capacity reached, rejecting")
			continue
		}
		c := &Conn{nc: nc, key: nc.RemoteAddr().String(), inbound: true, lastUsed: time.Now()}
		t.inbound[c] = struct{}{}
		t.mu.Unlock()

		t.log.WithField("remote", c.key).Info("accepted connection")
		go t.readLoop(c)
	}
}

// readLoop frames the byte stream into records and hands each one to the
// dispatcher. It exits when the connection closes, idles out or violates
// the size limit. Only inbound connections carry the idle deadline; the
// lifetime of a dialed connection is governed by pool eviction.
func (t *Transport) readLoop(c *Conn) {
	defer t.drop(c)

	var r io.Reader = c.nc
	if c.inbound {
		r = idleConn{nc: c.nc, timeout: t.cfg.IdleTimeout}
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, t.cfg.MaxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := domain.ParseRecord(line)
		if err != nil {
			// One bad record does not kill the connection.
			t.log.WithFields(logrus.Fields{
				"remote": c.key,
				"error":  err.Error(),
			}).Warn("drop malformed record")
			continue
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()
		if handler != nil {
			handler(rec, c)
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			t.log.WithField("remote", c.key).Warnf("closing connection: %v", ErrMessageTooLarge)
		} else {
			t.log.WithFields(logrus.Fields{
				"remote": c.key,
				"error":  err.Error(),
			}).Debug("read loop ended")
		}
	}
}

// drop closes a connection and forgets it, whichever collection holds it.
func (t *Transport) drop(c *Conn) {
	c.close()
	t.mu.Lock()
	delete(t.inbound, c)
	if cur, ok := t.pool[c.key]; ok && cur == c {
		t.removePooledLocked(c.key)
	}
	t.mu.Unlock()
}

func (t *Transport) removePooledLocked(key string) {
	delete(t.pool, key)
	for i, k := range t.poolKeys {
		if k == key {
			t.poolKeys = append(t.poolKeys[:i], t.poolKeys[i+1:]...)
			break
		}
	}
}

// randomPortBase picks a base so the probe window [base, base+window) stays
// below 65535 and never starts under floor.
func randomPortBase(floor, window int) (int, error) {
	spread := 65535 - window - floor
	if spread <= 0 {
		return floor, nil
	}
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return floor + int(binary.BigEndian.Uint32(b[:])%uint32(spread)), nil
}
