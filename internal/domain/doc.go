// Package domain defines the wire-level types shared across the core:
// newline-delimited records, the out-of-band connection descriptor, typed
// key material and the status snapshot exposed to the shell.
//
// Nothing in this package touches the network or holds secrets beyond the
// encoded key material a descriptor carries.
package domain
