// Package session drives the application-level protocol: it binds the
// ephemeral identity, the session crypto and the peer transport into an
// explicit state machine, and exposes the operations the shell consumes.
package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"peerchat/internal/config"
	"peerchat/internal/crypto"
	"peerchat/internal/domain"
	"peerchat/internal/identity"
	"peerchat/internal/transport"
)

var (
	// ErrNotInitialized is returned by operations that need a running
	// endpoint.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrHandshakePending rejects a second connect while one handshake is
	// in flight.
	ErrHandshakePending = errors.New("handshake already in flight")

	// ErrAlreadyEstablished rejects connecting on top of a live session.
	ErrAlreadyEstablished = errors.New("session already established")

	// ErrConnectionUnavailable is returned when the peer cannot be dialed.
	// The caller decides whether to retry; there is no simulated fallback.
	ErrConnectionUnavailable = errors.New("connection unavailable")
)

// Orchestrator owns the identity and session crypto exclusively and drives
// all state transitions from call and message-arrival events.
type Orchestrator struct {
	cfg *config.Config
	log *logrus.Entry

	mu     sync.Mutex
	state  State
	id     *identity.Identity
	sess   *crypto.Session
	tr     *transport.Transport
	active *transport.Conn

	onMessage func(plaintext string)
}

// New builds an orchestrator in the Uninitialized state. Pass nil for
// default configuration.
func New(cfg *config.Config) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Orchestrator{
		cfg:   cfg,
		log:   logrus.WithField("component", "session"),
		state: StateUninitialized,
		sess:  crypto.NewSession(),
	}
}

// OnMessage registers the callback that surfaces decrypted plaintext.
func (o *Orchestrator) OnMessage(fn func(plaintext string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onMessage = fn
}

// Init generates a fresh identity, starts the transport listening and
// registers the inbound dispatcher. Uninitialized -> Ready.
func (o *Orchestrator) Init() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateUninitialized {
		return fmt.Errorf("init from state %s", o.state)
	}

	id, err := identity.New()
	if err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}

	tr := transport.New(o.cfg)
	tr.Handle(o.dispatch)
	if err := tr.Start(); err != nil {
		id.Destroy()
		return err
	}

	o.id = id
	o.tr = tr
	o.state = StateReady
	o.log.WithField("state", o.state.String()).Info("session ready")
	return nil
}

// Share returns the opaque descriptor token a peer needs to connect to us.
func (o *Orchestrator) Share() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateUninitialized || o.state == StateFailed {
		return "", ErrNotInitialized
	}
	pub := o.id.Public()
	desc, err := o.tr.Descriptor(base64.StdEncoding.EncodeToString(pub.Slice()))
	if err != nil {
		return "", err
	}
	return desc.Encode(), nil
}

// Connect dials the endpoint a descriptor token names and sends
// handshake-initiate. Ready -> HandshakeSent. A dial failure leaves the
// state at Ready so the operator can retry with a fresh descriptor.
func (o *Orchestrator) Connect(token string) error {
	desc, err := domain.ParseDescriptor(token)
	if err != nil {
		return err
	}

	o.mu.Lock()
	switch o.state {
	case StateHandshakeSent, StateHandshakeReceived:
		o.mu.Unlock()
		return ErrHandshakePending
	case StateComplete:
		o.mu.Unlock()
		return ErrAlreadyEstablished
	case StateReady:
	default:
		o.mu.Unlock()
		return ErrNotInitialized
	}
	// Claim the handshake slot before releasing the lock for the dial.
	o.state = StateHandshakeSent
	tr, id := o.tr, o.id
	o.mu.Unlock()

	conn, err := tr.Dial(desc)
	if err != nil {
		o.setState(StateReady)
		return fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}

	nonce, err := id.Nonce()
	if err != nil {
		o.setState(StateFailed)
		return fmt.Errorf("handshake nonce: %w", err)
	}
	rec := domain.Record{
		Type:      domain.RecordHandshakeInitiate,
		PublicKey: base64.StdEncoding.EncodeToString(id.Public().Slice()),
		Nonce:     base64.StdEncoding.EncodeToString(nonce),
	}
	if !tr.Send(rec, conn) {
		o.setState(StateFailed)
		return fmt.Errorf("%w: handshake write failed", ErrConnectionUnavailable)
	}

	o.log.WithField("peer", desc.ID).Info("handshake sent")
	return nil
}

// Send encrypts text and writes an encrypted-message record to the active
// peer. It reports success; before Complete it always reports false and
// produces no wire record.
func (o *Orchestrator) Send(text string) bool {
	o.mu.Lock()
	if o.state != StateComplete || o.active == nil {
		state := o.state
		o.mu.Unlock()
		o.log.WithField("state", state.String()).Warn("send refused: no established session")
		return false
	}
	sess, tr, conn := o.sess, o.tr, o.active
	o.mu.Unlock()

	ct, err := sess.Encrypt([]byte(text))
	if err != nil {
		o.log.WithError(err).Warn("encrypt failed")
		return false
	}
	rec := domain.Record{
		Type:      domain.RecordEncryptedMessage,
		Encrypted: base64.StdEncoding.EncodeToString(ct.Ciphertext),
		IV:        base64.StdEncoding.EncodeToString(ct.IV),
		Tag:       "", // Poly1305 tag travels inside the ciphertext
		Counter:   ct.Counter,
	}
	return tr.Send(rec, conn)
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status assembles the snapshot the shell's status command shows.
func (o *Orchestrator) Status() domain.Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := domain.Status{
		HandshakeComplete: o.state == StateComplete,
		Ready:             o.state != StateUninitialized && o.state != StateFailed,
		HasActivePeer:     o.active != nil,
	}
	if o.tr != nil {
		st.Listening = o.tr.Listening()
		st.ConnectionCount = o.tr.ConnectionCount()
	}
	return st
}

// Teardown closes the active connection, wipes the session crypto and
// identity, stops the transport and resets to Uninitialized.
func (o *Orchestrator) Teardown() {
	o.mu.Lock()
	tr, id := o.tr, o.id
	o.sess.Destroy()
	o.id = nil
	o.tr = nil
	o.active = nil
	o.state = StateUninitialized
	o.mu.Unlock()

	if id != nil {
		id.Destroy()
	}
	if tr != nil {
		tr.Stop()
	}
	o.log.Info("session torn down")
}

// dispatch routes one inbound record by type. It runs on the connection's
// read goroutine; all state mutation stays behind o.mu.
func (o *Orchestrator) dispatch(rec domain.Record, from *transport.Conn) {
	switch rec.Type {
	case domain.RecordHandshakeInitiate:
		o.handleInitiate(rec, from)
	case domain.RecordHandshakeComplete:
		o.handleComplete(rec, from)
	case domain.RecordEncryptedMessage:
		o.handleEncrypted(rec)
	default:
		o.log.WithField("type", rec.Type).Warn("drop record of unknown type")
	}
}

// handleInitiate answers an inbound handshake: derive the session key and
// reply handshake-complete on the same connection.
// Ready -> HandshakeReceived -> Complete.
func (o *Orchestrator) handleInitiate(rec domain.Record, from *transport.Conn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateReady {
		o.log.WithField("state", o.state.String()).Warn("drop handshake-initiate: not ready")
		return
	}
	o.state = StateHandshakeReceived

	remotePub, err := decodePublicKey(rec.PublicKey)
	if err != nil {
		o.failLocked("handshake-initiate", err)
		return
	}
	priv, err := o.id.Private()
	if err != nil {
		o.failLocked("handshake-initiate", err)
		return
	}
	if err := o.sess.Establish(priv, remotePub); err != nil {
		o.failLocked("handshake-initiate", err)
		return
	}

	nonce, err := o.id.Nonce()
	if err != nil {
		o.failLocked("handshake-initiate", err)
		return
	}
	reply := domain.Record{
		Type:      domain.RecordHandshakeComplete,
		PublicKey: base64.StdEncoding.EncodeToString(o.id.Public().Slice()),
		Nonce:     base64.StdEncoding.EncodeToString(nonce),
	}
	if !o.tr.Send(reply, from) {
		o.failLocked("handshake-initiate", errors.New("reply write failed"))
		return
	}

	o.active = from
	o.state = StateComplete
	o.log.WithField("remote", from.Key()).Info("handshake complete")
}

// handleComplete finishes the handshake we initiated.
// HandshakeSent -> Complete.
func (o *Orchestrator) handleComplete(rec domain.Record, from *transport.Conn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateHandshakeSent {
		o.log.WithField("state", o.state.String()).Warn("drop handshake-complete: no handshake in flight")
		return
	}

	remotePub, err := decodePublicKey(rec.PublicKey)
	if err != nil {
		o.failLocked("handshake-complete", err)
		return
	}
	priv, err := o.id.Private()
	if err != nil {
		o.failLocked("handshake-complete", err)
		return
	}
	if err := o.sess.Establish(priv, remotePub); err != nil {
		o.failLocked("handshake-complete", err)
		return
	}

	o.active = from
	o.state = StateComplete
	o.log.WithField("remote", from.Key()).Info("handshake complete")
}

// handleEncrypted decrypts a message record and surfaces the plaintext.
// A decrypt failure is logged and the record is not delivered; it is never
// passed off as a successful delivery.
func (o *Orchestrator) handleEncrypted(rec domain.Record) {
	o.mu.Lock()
	if o.state != StateComplete {
		o.log.WithField("state", o.state.String()).Warn("drop encrypted-message: session not complete")
		o.mu.Unlock()
		return
	}
	sess, deliver := o.sess, o.onMessage
	o.mu.Unlock()

	ct, err := base64.StdEncoding.DecodeString(rec.Encrypted)
	if err != nil {
		o.log.WithError(err).Warn("drop encrypted-message: bad ciphertext encoding")
		return
	}
	iv, err := base64.StdEncoding.DecodeString(rec.IV)
	if err != nil {
		o.log.WithError(err).Warn("drop encrypted-message: bad iv encoding")
		return
	}

	plain, err := sess.Decrypt(ct, iv, rec.Counter)
	if err != nil {
		o.log.WithError(err).Warn("drop encrypted-message: decrypt failed")
		return
	}
	if deliver != nil {
		deliver(string(plain))
	}
}

// failLocked records a terminal handshake failure. Only Teardown plus a
// fresh Init leaves StateFailed.
func (o *Orchestrator) failLocked(during string, err error) {
	o.state = StateFailed
	o.log.WithFields(logrus.Fields{
		"during": during,
		"error":  err.Error(),
	}).Error("handshake failed")
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

func decodePublicKey(encoded string) (domain.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("public key encoding: %w", err)
	}
	return domain.PublicKeyFromBytes(raw)
}
