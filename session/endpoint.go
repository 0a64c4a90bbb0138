// Package session implements the offer-intake collaborator (C7): it turns
// an SDP offer into an SDP answer and hands a PendingSession to the server
// core over a bounded channel. It is grounded on
// original_source/src/server.rs's SessionEndpoint/SessionError (a cheaply
// clonable handle holding the immutable public address and certificate
// fingerprint plus the producer side of a bounded channel), generalized
// from Rust's flume::bounded to a buffered Go channel, and matches
// internal/signaling/local.go's pattern of a small handle usable from a
// separate HTTP/WebSocket task.
package session

import (
	"crypto/rand"
	"fmt"
	"net"

	"github.com/lanikai/unreliablertc/internal/sdp"
)

// Capacity is the pending-session channel's buffer size, applying
// backpressure on offer floods per spec.md §4.6/§5.
const Capacity = 8

const (
	serverUserLen   = 12
	serverPasswdLen = 24
)

const idChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// PendingSession is an accepted offer for which no authenticated STUN
// binding has arrived yet.
type PendingSession struct {
	ServerUser   string
	ServerPasswd string
	RemoteUser   string
}

// ErrDisconnected means the server has been dropped: the receiving end of
// the pending-session channel is gone, so offers can no longer be
// accepted.
var ErrDisconnected = fmt.Errorf("session: server is gone")

// Endpoint accepts SDP offers and renders answers. It is safe to copy and
// share across goroutines (e.g. one per inbound HTTP request), matching
// the Rust original's clonable SessionEndpoint.
type Endpoint struct {
	publicIP    net.IP
	isIPv6      bool
	publicPort  uint16
	fingerprint string
	pending     chan<- PendingSession
}

// NewEndpoint constructs an Endpoint. pending is the server's receiving
// channel; the server core owns and closes it on shutdown.
func NewEndpoint(publicIP net.IP, publicPort uint16, fingerprint string, pending chan<- PendingSession) *Endpoint {
	return &Endpoint{
		publicIP:    publicIP,
		isIPv6:      publicIP.To4() == nil,
		publicPort:  publicPort,
		fingerprint: fingerprint,
		pending:     pending,
	}
}

// SessionRequest parses offerSDP, generates fresh server-side ICE
// credentials, renders the SDP answer, and enqueues a PendingSession for
// the server core to pick up. It blocks only if the pending-session
// channel is at capacity (the documented backpressure policy), never
// otherwise.
func (e *Endpoint) SessionRequest(offerSDP string) (answerJSON string, err error) {
	offer, err := sdp.ParseOffer(offerSDP)
	if err != nil {
		return "", err
	}

	serverUser, err := randomID(serverUserLen)
	if err != nil {
		return "", fmt.Errorf("session: generate server_user: %w", err)
	}
	serverPasswd, err := randomID(serverPasswdLen)
	if err != nil {
		return "", fmt.Errorf("session: generate server_passwd: %w", err)
	}

	answerJSON, err = sdp.RenderAnswer(
		e.fingerprint,
		e.publicIP.String(),
		e.isIPv6,
		e.publicPort,
		serverUser,
		serverPasswd,
		offer.Mid,
	)
	if err != nil {
		return "", fmt.Errorf("session: render answer: %w", err)
	}

	defer func() {
		// A send on a closed channel panics; translate that into the
		// documented Disconnected error instead of propagating a panic
		// into the offer-intake collaborator.
		if r := recover(); r != nil {
			answerJSON = ""
			err = ErrDisconnected
		}
	}()

	e.pending <- PendingSession{
		ServerUser:   serverUser,
		ServerPasswd: serverPasswd,
		RemoteUser:   offer.IceUfrag,
	}
	return answerJSON, nil
}

func randomID(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = idChars[int(b)%len(idChars)]
	}
	return string(out), nil
}
