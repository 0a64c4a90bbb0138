package unreliablertc

import "net"

// EventCode identifies an observability event delivered through EventFunc.
type EventCode uint32

const (
	// EventClientInitFailed identifies a Client that failed to come up. The
	// server does not emit it: a Client whose handshake fails is reported
	// with EventClientEvicted when the cleanup sweep removes it.
	EventClientInitFailed EventCode = 0
	// EventClientEvicted fires when the cleanup sweep removes a Client,
	// either for inactivity or because its transport has already shut down
	// after a failure.
	EventClientEvicted EventCode = 1002
)

// EventFunc is the optional observability callback. It runs inline on the
// server's event-loop goroutine and must not block. Per spec.md §9's
// REDESIGN FLAGS, this replaces the original's process-wide mutable
// callback state with a constructor-injected closure: no package-level
// mutable state, and nothing but the Server instance holds a reference to
// it.
type EventFunc func(code EventCode, message string)

// Config holds the server's construction inputs.
type Config struct {
	// ListenAddr is the UDP endpoint the server binds.
	ListenAddr *net.UDPAddr
	// PublicAddr is advertised in the SDP candidate; it may differ from
	// ListenAddr behind NAT/port-forwarding.
	PublicAddr *net.UDPAddr

	onEvent EventFunc
}

// Option configures a Config, following the teacher's CLI-driven,
// flag-vars-feeding-a-constructor convention (cmd/alohartcd/main.go) at the
// call site, and a small functional-options layer here for anything
// optional.
type Option func(*Config)

// WithEventFunc installs an observability callback.
func WithEventFunc(f EventFunc) Option {
	return func(c *Config) {
		c.onEvent = f
	}
}

// NewConfig builds a Config for the given listen/public addresses, applying
// any options.
func NewConfig(listenAddr, publicAddr *net.UDPAddr, opts ...Option) *Config {
	c := &Config{ListenAddr: listenAddr, PublicAddr: publicAddr}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
