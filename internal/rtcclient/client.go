// Package rtcclient implements the per-peer transport state machine (C6):
// a DTLS handshake wrapping an SCTP association, exposing non-blocking
// packet/message queues to the server core. It generalizes the teacher's
// client-side pipeline in peer_connection.go's Connect method — acquire a
// mux endpoint, run DTLS, layer a payload protocol on top — into a
// standalone, server-passive state machine that never touches the shared
// UDP socket directly.
package rtcclient

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/sctp"

	"github.com/lanikai/unreliablertc/internal/buffer"
	"github.com/lanikai/unreliablertc/internal/dtls"
	ourlogging "github.com/lanikai/unreliablertc/internal/logging"
)

// MaxMessageLen is the SCTP-layer application message size limit.
const MaxMessageLen = 1160

// MessageType distinguishes the two WebRTC data-channel payload kinds,
// carried as distinct SCTP payload protocol identifiers on the wire (PPID
// 53 for binary, 51 for UTF-8 text, per RFC 8831).
type MessageType int

const (
	Binary MessageType = iota
	Text
)

// State is one of the four states a Client's transport may be in.
type State int

const (
	Starting State = iota
	Established
	ShuttingDown
	Shutdown
)

var (
	// ErrNotConnected is returned by SendMessage when the client has not
	// yet reached Established.
	ErrNotConnected = errors.New("rtcclient: not connected")
	// ErrIncompletePacketWrite is returned by SendMessage when payload
	// exceeds MaxMessageLen.
	ErrIncompletePacketWrite = errors.New("rtcclient: payload exceeds MAX_MESSAGE_LEN")
)

// Message is one application-level payload drained from ReceiveMessages.
type Message struct {
	Type MessageType
	Data []byte
}

// Client owns the DTLS+SCTP transport for one remote UDP endpoint. All of
// its exported operations are non-blocking; the handshake and the SCTP
// read pump run on dedicated goroutines started by New, feeding results
// back through channels the server core's single event-loop goroutine
// drains without ever suspending itself.
type Client struct {
	remoteAddr net.Addr
	pool       *buffer.Pool
	conn       *pseudoConn
	log        *ourlogging.Logger

	mu              sync.Mutex
	state           State
	lastActivity    time.Time
	lastSent        time.Time
	lastReceived    time.Time
	shutdownStarted bool

	assoc  *sctp.Association
	stream *sctp.Stream

	messages chan Message
	fatalErr error
}

// New starts establishing a Client for remoteAddr: a DTLS server handshake
// over a pseudo-connection, followed by a passive SCTP association. The
// handshake and subsequent SCTP read pump run on a background goroutine;
// New itself returns immediately with a Client in the Starting state.
func New(pool *buffer.Pool, localAddr, remoteAddr net.Addr, acceptor *dtls.Acceptor, log *ourlogging.Logger) *Client {
	conn := newPseudoConn(pool, localAddr, remoteAddr)
	now := time.Now()
	c := &Client{
		remoteAddr:   remoteAddr,
		pool:         pool,
		conn:         conn,
		log:          log,
		state:        Starting,
		lastActivity: now,
		messages:     make(chan Message, 32),
	}

	go c.establish(acceptor)
	return c
}

func (c *Client) establish(acceptor *dtls.Acceptor) {
	dtlsConn, err := acceptor.Accept(c.conn)
	if err != nil {
		c.fail(fmt.Errorf("rtcclient: dtls handshake: %w", err))
		return
	}

	assoc, err := sctp.Server(sctp.Config{
		NetConn:              dtlsConn,
		MaxReceiveBufferSize: buffer.MaxUDPPayloadSize,
		LoggerFactory:        ourlogging.PionLoggerFactory{Base: c.log},
	})
	if err != nil {
		c.fail(fmt.Errorf("rtcclient: sctp association: %w", err))
		return
	}

	stream, err := assoc.AcceptStream()
	if err != nil {
		c.fail(fmt.Errorf("rtcclient: sctp accept stream: %w", err))
		return
	}
	stream.SetDefaultPayloadType(sctp.PayloadTypeWebRTCBinary)

	c.mu.Lock()
	c.assoc = assoc
	c.stream = stream
	c.state = Established
	c.mu.Unlock()

	c.readPump(stream)
}

func (c *Client) readPump(stream *sctp.Stream) {
	// One pool-backed buffer reused across reads as ReadSCTP scratch space;
	// the only per-message allocation left is the copy that escapes into
	// Message.Data, which outlives this loop and so cannot be pooled.
	h := c.pool.Acquire()
	defer h.Release()

	for {
		h.Resize(buffer.MaxUDPPayloadSize)
		n, ppid, err := stream.ReadSCTP(h.Bytes())
		if err != nil {
			c.fail(fmt.Errorf("rtcclient: sctp read: %w", err))
			return
		}

		mt := Binary
		if ppid == sctp.PayloadTypeWebRTCString {
			mt = Text
		}

		data := append([]byte(nil), h.Bytes()[:n]...)
		c.mu.Lock()
		c.lastReceived = time.Now()
		c.lastActivity = c.lastReceived
		c.mu.Unlock()

		select {
		case c.messages <- Message{Type: mt, Data: data}:
		default:
			// Application is not draining fast enough; drop rather than
			// block the read pump (unreliable transport, by design).
		}
	}
}

// fail tears the transport down immediately on an unrecoverable DTLS/SCTP
// error. The server core learns of the failure by polling IsShutdown()
// during housekeeping (spec.md §4.7's cleanup sweep) rather than through a
// dedicated notification channel — consistent with the rest of the Client
// state machine, which the server only ever observes by polling.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.state == Shutdown || c.state == ShuttingDown {
		c.mu.Unlock()
		return
	}
	c.state = ShuttingDown
	c.shutdownStarted = true
	c.fatalErr = err
	stream, assoc := c.stream, c.assoc
	c.mu.Unlock()

	c.log.Warn("client %s: %v", c.remoteAddr, err)
	c.teardown(stream, assoc)
}

// ReceiveIncomingPacket injects a ciphertext datagram read from the shared
// socket. It never blocks: delivery to the handshake/read-pump goroutine is
// via a bounded, drop-oldest queue. data is copied into a buffer borrowed
// from the shared pool rather than the heap.
func (c *Client) ReceiveIncomingPacket(data []byte) {
	h := c.pool.Acquire()
	h.Resize(len(data))
	copy(h.Bytes(), data)
	c.conn.deliver(h)
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// TakeOutgoingPackets drains ciphertext UDP payloads ready for the socket.
// The caller takes ownership of each returned handle and must Release it
// once its bytes have been written.
func (c *Client) TakeOutgoingPackets() []*buffer.Handle {
	handles := c.conn.drain()
	if len(handles) > 0 {
		c.mu.Lock()
		c.lastSent = time.Now()
		c.mu.Unlock()
	}
	return handles
}

// ReceiveMessages drains application-level messages received so far.
func (c *Client) ReceiveMessages() []Message {
	var out []Message
	for {
		select {
		case m := <-c.messages:
			out = append(out, m)
		default:
			return out
		}
	}
}

// SendMessage enqueues one datagram for transmission over the SCTP stream.
func (c *Client) SendMessage(mt MessageType, payload []byte) error {
	c.mu.Lock()
	state := c.state
	stream := c.stream
	c.mu.Unlock()

	if state != Established {
		return ErrNotConnected
	}
	if len(payload) > MaxMessageLen {
		return ErrIncompletePacketWrite
	}

	ppid := sctp.PayloadTypeWebRTCBinary
	if mt == Text {
		ppid = sctp.PayloadTypeWebRTCString
	}
	if _, err := stream.WriteSCTP(payload, ppid); err != nil {
		return fmt.Errorf("rtcclient: sctp write: %w", err)
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
	return nil
}

// GeneratePeriodic gives the SCTP association a chance to emit
// heartbeats/retransmits. pion/sctp drives its own internal timers once
// the association exists; this is a no-op placeholder kept so the server
// core's housekeeping loop has one call site per Client regardless of
// transport internals, matching spec.md §4.7's "invoke generate_periodic
// on every Client" housekeeping step.
func (c *Client) GeneratePeriodic() {}

// IsEstablished reports whether the DTLS+SCTP handshake has completed.
func (c *Client) IsEstablished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Established
}

// IsShutdown reports whether the client has fully torn down.
func (c *Client) IsShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Shutdown
}

// StartShutdown transitions the client to ShuttingDown and synchronously
// tears the transport down, mirroring the original's synchronous
// start_shutdown (original_source/src/server.rs's disconnect calls
// start_shutdown then immediately drains take_outgoing_packets). Tearing
// down inline, rather than on a background goroutine, guarantees any
// close-notify/SHUTDOWN chunks the teardown produces are already sitting in
// the pseudoConn's outbound queue by the time this returns, so a caller
// that calls TakeOutgoingPackets right after (as Disconnect and cleanup
// both do) observes them instead of racing a goroutine. It returns true if
// this call began the shutdown, and false if shutdown had already begun,
// whether through an earlier call or through a fatal transport error —
// start_shutdown is idempotent per spec.md §4.5.
func (c *Client) StartShutdown() bool {
	c.mu.Lock()
	if c.shutdownStarted {
		c.mu.Unlock()
		return false
	}
	c.shutdownStarted = true
	c.state = ShuttingDown
	stream, assoc := c.stream, c.assoc
	c.mu.Unlock()

	c.teardown(stream, assoc)
	return true
}

func (c *Client) teardown(stream *sctp.Stream, assoc *sctp.Association) {
	if stream != nil {
		stream.Close()
	}
	if assoc != nil {
		assoc.Close()
	}
	c.conn.Close()
	c.mu.Lock()
	c.state = Shutdown
	c.mu.Unlock()
}

// Err returns the transport error that triggered shutdown, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalErr
}

// ShutdownStarted reports whether shutdown has begun, either through
// StartShutdown or after a fatal transport error.
func (c *Client) ShutdownStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdownStarted
}

// LastActivity returns the most recent of: creation, an inbound ciphertext
// packet, a received application message, or a sent application message.
// Draining outgoing packets (TakeOutgoingPackets) does not count as
// activity.
func (c *Client) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Activity returns (lastActivity, lastSent, lastReceived), mirroring the
// original implementation's client_activity accessor (spec.md's
// SUPPLEMENTED FEATURES note on original_source/src/server.rs).
func (c *Client) Activity() (lastActivity, lastSent, lastReceived time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity, c.lastSent, c.lastReceived
}
