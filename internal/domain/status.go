package domain

// Status is the snapshot handed to the shell's status command.
type Status struct {
	Listening         bool `json:"listening"`
	ConnectionCount   int  `json:"connectionCount"`
	HandshakeComplete bool `json:"handshakeComplete"`
	Ready             bool `json:"ready"`
	HasActivePeer     bool `json:"hasActivePeer"`
}
