package session_test

import (
	"encoding/base64"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerchat/internal/config"
	"peerchat/internal/domain"
	"peerchat/internal/session"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ConnectTimeout = 2 * time.Second
	return cfg
}

// startEndpoint brings up an initialized orchestrator with cleanup.
func startEndpoint(t *testing.T) *session.Orchestrator {
	t.Helper()
	o := session.New(testConfig())
	require.NoError(t, o.Init())
	t.Cleanup(o.Teardown)
	return o
}

// descriptorPort digs the listening port out of a shared token.
func descriptorPort(t *testing.T, token string) int {
	t.Helper()
	desc, err := domain.ParseDescriptor(token)
	require.NoError(t, err)
	return desc.Port
}

func TestSendBeforeCompleteFails(t *testing.T) {
	o := session.New(testConfig())
	assert.False(t, o.Send("too early"), "send in Uninitialized must fail")

	require.NoError(t, o.Init())
	t.Cleanup(o.Teardown)
	assert.False(t, o.Send("still too early"), "send in Ready must fail")
	assert.Equal(t, session.StateReady, o.State())
}

func TestShareRequiresInit(t *testing.T) {
	o := session.New(testConfig())
	_, err := o.Share()
	assert.ErrorIs(t, err, session.ErrNotInitialized)
}

func TestConnectRejectsInvalidDescriptor(t *testing.T) {
	o := startEndpoint(t)
	err := o.Connect("not a descriptor")
	assert.ErrorIs(t, err, domain.ErrInvalidDescriptor)
	assert.Equal(t, session.StateReady, o.State())
}

func TestConnectUnavailablePeerLeavesReady(t *testing.T) {
	// A port that was free a moment ago and has no listener now.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	o := startEndpoint(t)
	token := domain.Descriptor{ID: "ghost", Port: port, Key: "aw=="}.Encode()

	err = o.Connect(token)
	assert.ErrorIs(t, err, session.ErrConnectionUnavailable)
	assert.Equal(t, session.StateReady, o.State(), "dial failure is retryable")
}

func TestSecondConnectRejectedWhileHandshakePending(t *testing.T) {
	// A peer that accepts and reads but never answers keeps the handshake
	// in flight.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go io.Copy(io.Discard, nc)
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	token := domain.Descriptor{ID: "silent", Port: port, Key: key}.Encode()

	o := startEndpoint(t)
	require.NoError(t, o.Connect(token))
	require.Equal(t, session.StateHandshakeSent, o.State())

	err = o.Connect(token)
	assert.ErrorIs(t, err, session.ErrHandshakePending)
}

func TestHandshakeAndMessageExchange(t *testing.T) {
	x := startEndpoint(t)
	y := startEndpoint(t)

	xGot := make(chan string, 1)
	yGot := make(chan string, 1)
	x.OnMessage(func(text string) { xGot <- text })
	y.OnMessage(func(text string) { yGot <- text })

	token, err := x.Share()
	require.NoError(t, err)

	require.NoError(t, y.Connect(token))
	require.Eventually(t, func() bool { return x.State() == session.StateComplete },
		3*time.Second, 10*time.Millisecond, "listener never completed the handshake")
	require.Eventually(t, func() bool { return y.State() == session.StateComplete },
		3*time.Second, 10*time.Millisecond, "dialer never completed the handshake")

	require.True(t, y.Send("hi"))
	select {
	case got := <-xGot:
		assert.Equal(t, "hi", got)
	case <-time.After(3 * time.Second):
		t.Fatal("listener never received the message")
	}

	// The reply rides the same connection in the other direction.
	require.True(t, x.Send("hello back"))
	select {
	case got := <-yGot:
		assert.Equal(t, "hello back", got)
	case <-time.After(3 * time.Second):
		t.Fatal("dialer never received the reply")
	}

	stX := x.Status()
	assert.True(t, stX.Listening)
	assert.True(t, stX.HandshakeComplete)
	assert.True(t, stX.Ready)
	assert.True(t, stX.HasActivePeer)
}

func TestEncryptedMessageBeforeCompleteIsDropped(t *testing.T) {
	x := startEndpoint(t)
	got := make(chan string, 1)
	x.OnMessage(func(text string) { got <- text })

	token, err := x.Share()
	require.NoError(t, err)

	nc, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(descriptorPort(t, token))))
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })

	rec := domain.Record{
		Type:      domain.RecordEncryptedMessage,
		Encrypted: base64.StdEncoding.EncodeToString([]byte("junk")),
		IV:        base64.StdEncoding.EncodeToString(make([]byte, 12)),
		Counter:   0,
	}
	line, err := rec.Marshal()
	require.NoError(t, err)
	_, err = nc.Write(append(line, '\n'))
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, session.StateReady, x.State())
	assert.Empty(t, got, "nothing may be surfaced before the handshake completes")
}

func TestTeardownResetsAndAllowsReinit(t *testing.T) {
	x := startEndpoint(t)
	y := startEndpoint(t)

	token, err := x.Share()
	require.NoError(t, err)
	require.NoError(t, y.Connect(token))
	require.Eventually(t, func() bool { return y.State() == session.StateComplete },
		3*time.Second, 10*time.Millisecond)

	y.Teardown()
	assert.Equal(t, session.StateUninitialized, y.State())
	assert.False(t, y.Send("gone"))

	st := y.Status()
	assert.False(t, st.Listening)
	assert.False(t, st.HandshakeComplete)
	assert.Zero(t, st.ConnectionCount)

	require.NoError(t, y.Init())
	assert.Equal(t, session.StateReady, y.State())
}
