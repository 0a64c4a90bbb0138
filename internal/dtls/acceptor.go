package dtls

import (
	"crypto/tls"
	"net"
	"time"

	piondtls "github.com/pion/dtls/v2"
	"github.com/pion/logging"
)

// Acceptor produces a DTLS server-side connection over an arbitrary
// net.Conn (in practice, the per-client pseudo-connection that exchanges
// ciphertext with the shared UDP socket through the buffer pool). It wraps
// github.com/pion/dtls/v2 instead of reimplementing the handshake, record
// layer, or key derivation — those are explicitly out of this repo's scope
// per spec.md §1, consumed here as a library the way the teacher's own
// internal/dtls subtree intended to (its header comment calls it a
// "subtree merged pions/dtls").
type Acceptor struct {
	config *piondtls.Config
}

// NewAcceptor builds an Acceptor bound to cert, configured for the
// server-passive (ice-lite) role: the peer must present a client
// certificate, but any certificate is accepted without chain verification.
// No handshake timeout is set in this config; a stalled handshake ends when
// the server's inactivity sweep shuts the client down and closes the
// connection the handshake reads from.
func NewAcceptor(cert *Certificate, loggerFactory logging.LoggerFactory) *Acceptor {
	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Leaf.Raw},
		PrivateKey:  cert.PrivateKey,
	}
	return &Acceptor{
		config: &piondtls.Config{
			Certificates:       []tls.Certificate{tlsCert},
			InsecureSkipVerify: true,
			ClientAuth:         piondtls.RequireAnyClientCert,
			LoggerFactory:      loggerFactory,
			FlightInterval:     100 * time.Millisecond,
		},
	}
}

// Accept runs the DTLS server handshake over conn and returns the
// resulting plaintext connection once established. It blocks the calling
// goroutine until the handshake completes or fails; callers run it on a
// dedicated per-client goroutine rather than the server's single event
// loop, matching spec.md §4.5's requirement that Client's own public
// operations never suspend.
func (a *Acceptor) Accept(conn net.Conn) (net.Conn, error) {
	return piondtls.Server(conn, a.config)
}
