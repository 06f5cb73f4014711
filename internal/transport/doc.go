// Package transport moves newline-delimited records between two directly
// reachable endpoints over TCP.
//
// It owns every socket: the loopback listener, a bounded set of inbound
// connections and a small pool of outbound connections keyed by peer and
// port. Nothing outside this package closes a connection.
//
// Framing is one JSON record per line. A read may deliver zero, one or many
// complete or partial records; the per-connection read loop buffers and
// splits on the delimiter. A record that fails to parse is logged and
// dropped without closing the connection, but a raw chunk above the size
// limit closes it.
package transport
