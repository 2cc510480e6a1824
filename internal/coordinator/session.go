package coordinator

import "socksd/internal/socksaddr"

// Session is created when a SOCKS5 CONNECT succeeds; it carries the
// four socket addresses spec.md §3 names plus the original Destination.
// Immutable after creation. Socket addresses are kept as their String()
// form (rather than net.Addr, which is not comparable) so Session can use
// ordinary == for the structural equality the coordinator needs.
type Session struct {
	Client2Server string // client's remote address, as seen by the server
	Server2Client string // the accepting listener's local address
	Server2Remote string // the outbound socket's local address
	Remote2Server string // the outbound peer's address
	Destination   socksaddr.Destination
}

// User is the unit of authentication policy: a username/password pair.
type User struct {
	Name string
	Pass string
}
