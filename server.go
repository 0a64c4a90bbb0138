// Package unreliablertc is the server-side core of an unreliable WebRTC
// data-channel transport: a single-socket, single-goroutine multiplexer
// that terminates STUN, DTLS, and SCTP for every connected peer. The event
// loop (Server.run) is grounded on original_source/src/server.rs's
// Server::process — a three-way select over the pending-session channel,
// the UDP socket, and a periodic timer — the same shape the teacher's own
// ICE agent event loop uses one level up the stack
// (internal/ice/agent.go's loop).
package unreliablertc

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/unreliablertc/internal/buffer"
	"github.com/lanikai/unreliablertc/internal/dtls"
	ourlogging "github.com/lanikai/unreliablertc/internal/logging"
	"github.com/lanikai/unreliablertc/internal/periodic"
	"github.com/lanikai/unreliablertc/internal/rtcclient"
	"github.com/lanikai/unreliablertc/internal/stun"
	"github.com/lanikai/unreliablertc/session"
)

// Wire constants (spec.md §6).
const (
	MaxUDPPayloadSize = buffer.MaxUDPPayloadSize
	MaxMessageLen     = rtcclient.MaxMessageLen

	sessionTTL         = 30 * time.Second
	clientIdleTimeout  = 10 * time.Second
	cleanupInterval    = 10 * time.Second
	periodicTickPeriod = 1 * time.Second
)

var log = ourlogging.DefaultLogger.WithTag("server")

type sessionKey struct {
	serverUser string
	remoteUser string
}

type sessionEntry struct {
	session.PendingSession
	insertedAt time.Time
}

// RecvResult is one application message drained by Recv, alongside its
// sender and type.
type RecvResult struct {
	Data       []byte
	Type       rtcclient.MessageType
	RemoteAddr net.Addr
}

// Server is the socket owner: it classifies incoming packets, owns the
// session and client tables, and runs the scheduler (C8).
type Server struct {
	conn   *net.UDPConn
	config *Config
	cert   *dtls.Certificate
	acceptor *dtls.Acceptor
	pool   *buffer.Pool
	endpointCh chan session.PendingSession
	endpoint   *session.Endpoint

	incoming chan RecvResult

	mu              sync.Mutex
	sessions        map[sessionKey]sessionEntry
	clients         map[string]*rtcclient.Client
	shutdownStarted bool

	lastGeneratePeriodic time.Time
	lastCleanup          time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

// New binds the UDP socket, generates a fresh self-signed certificate,
// constructs the session endpoint, and starts the event loop. Per spec.md
// §4.7.
func New(config *Config, opts ...Option) (*Server, error) {
	for _, opt := range opts {
		opt(config)
	}

	conn, err := net.ListenUDP("udp", config.ListenAddr)
	if err != nil {
		return nil, errors.Wrap(err, "unreliablertc: bind UDP socket")
	}

	cert, err := dtls.GenerateCertificate()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "unreliablertc: generate certificate")
	}

	loggerFactory := ourlogging.PionLoggerFactory{Base: ourlogging.DefaultLogger}
	acceptor := dtls.NewAcceptor(cert, loggerFactory)

	endpointCh := make(chan session.PendingSession, session.Capacity)
	endpoint := session.NewEndpoint(config.PublicAddr.IP, uint16(config.PublicAddr.Port), cert.Fingerprint, endpointCh)

	s := &Server{
		conn:                 conn,
		config:               config,
		cert:                 cert,
		acceptor:             acceptor,
		pool:                 buffer.New(),
		endpointCh:           endpointCh,
		endpoint:             endpoint,
		incoming:             make(chan RecvResult, 256),
		sessions:             make(map[sessionKey]sessionEntry),
		clients:              make(map[string]*rtcclient.Client),
		lastGeneratePeriodic: time.Now(),
		lastCleanup:          time.Now(),
		closed:               make(chan struct{}),
	}

	go s.run()
	return s, nil
}

// SessionEndpoint returns the offer-intake collaborator, cheaply shared
// with an external HTTP/WebSocket task.
func (s *Server) SessionEndpoint() *session.Endpoint {
	return s.endpoint
}

// run is the single-goroutine event loop: a three-way select over the
// pending-session channel, the UDP socket, and the periodic timer.
func (s *Server) run() {
	datagrams := make(chan udpDatagram, 256)
	go s.readLoop(datagrams)

	tick := periodic.New(periodicTickPeriod)
	defer tick.Stop()

	for {
		select {
		case ps, ok := <-s.endpointCh:
			if !ok {
				return
			}
			s.insertSession(ps)

		case dg, ok := <-datagrams:
			if !ok {
				return
			}
			s.handleDatagram(dg)

		case <-tick.C():
			s.housekeeping()

		case <-s.closed:
			return
		}
	}
}

// udpDatagram carries one inbound packet as a borrowed buffer.Handle: the
// handle is acquired in readLoop and must be released by whichever handler
// finishes consuming it (spec.md §3's "returning a borrowed buffer to the
// pool is mandatory on all exit paths"), keeping the hot datagram path free
// of per-packet allocation.
type udpDatagram struct {
	handle *buffer.Handle
	from   *net.UDPAddr
}

// readLoop is the one suspension point allowed outside the select itself
// (spec.md §5): socket.recv_from. It feeds parsed datagrams back into the
// select loop over a channel so the rest of the server never calls
// ReadFromUDP directly. Each read borrows one buffer.Handle from the shared
// pool rather than allocating a fresh slice.
func (s *Server) readLoop(out chan<- udpDatagram) {
	for {
		h := s.pool.Acquire()
		h.Resize(MaxUDPPayloadSize)
		n, from, err := s.conn.ReadFromUDP(h.Bytes())
		if err != nil {
			h.Release()
			close(out)
			return
		}
		h.Resize(n)

		select {
		case out <- udpDatagram{handle: h, from: from}:
		case <-s.closed:
			h.Release()
			return
		}
	}
}

func (s *Server) insertSession(ps session.PendingSession) {
	key := sessionKey{serverUser: ps.ServerUser, remoteUser: ps.RemoteUser}
	s.mu.Lock()
	s.sessions[key] = sessionEntry{PendingSession: ps, insertedAt: time.Now()}
	s.mu.Unlock()
}

// handleDatagram classifies and dispatches one inbound UDP packet, per
// spec.md §4.7: try STUN first (unambiguous against DTLS, whose records
// start with a type byte ≥ 20, versus STUN's two zero top bits), otherwise
// route to an existing Client by address.
func (s *Server) handleDatagram(dg udpDatagram) {
	defer dg.handle.Release()

	if req, ok := stun.ParseBindingRequest(dg.handle.Bytes()); ok {
		s.handleStunBindingRequest(req, dg.from)
		return
	}

	s.mu.Lock()
	client := s.clients[dg.from.String()]
	s.mu.Unlock()
	if client == nil {
		return
	}

	client.ReceiveIncomingPacket(dg.handle.Bytes())
	s.drainClient(dg.from, client)
}

func (s *Server) handleStunBindingRequest(req *stun.BindingRequest, from *net.UDPAddr) {
	key := sessionKey{serverUser: req.ServerUser, remoteUser: req.RemoteUser}

	s.mu.Lock()
	entry, ok := s.sessions[key]
	if ok {
		entry.insertedAt = time.Now()
		s.sessions[key] = entry
	}
	s.mu.Unlock()

	if !ok {
		// Unknown USERNAME: no response, no client created, no TTL
		// refresh (spec.md §8 scenario 2).
		return
	}

	var out bytes.Buffer
	if _, err := stun.WriteBindingSuccess(req.TransactionID, from, entry.ServerPasswd, &out); err != nil {
		log.Warn("write STUN success to %s: %v", from, err)
		return
	}
	if _, err := s.conn.WriteToUDP(out.Bytes(), from); err != nil {
		log.Warn("write STUN success to %s: %v", from, err)
	}

	s.mu.Lock()
	client := s.clients[from.String()]
	if client == nil {
		client = rtcclient.New(s.pool, s.conn.LocalAddr(), from, s.acceptor, ourlogging.DefaultLogger.WithTag("rtcclient"))
		s.clients[from.String()] = client
	}
	s.mu.Unlock()
}

// drainClient flushes a Client's outgoing ciphertext to the socket and its
// incoming application messages into the Recv() queue.
func (s *Server) drainClient(from *net.UDPAddr, client *rtcclient.Client) {
	for _, h := range client.TakeOutgoingPackets() {
		if _, err := s.conn.WriteToUDP(h.Bytes(), from); err != nil {
			log.Warn("write to client %s: %v", from, err)
		}
		h.Release()
	}
	for _, msg := range client.ReceiveMessages() {
		result := RecvResult{Data: msg.Data, Type: msg.Type, RemoteAddr: from}
		select {
		case s.incoming <- result:
		default:
			log.Warn("recv queue full, dropping message from %s", from)
		}
	}
}

// housekeeping runs on every periodic tick: generate_periodic on every
// Client (at most once per second), then a TTL/inactivity sweep at most
// once per 10 seconds (spec.md §4.7).
func (s *Server) housekeeping() {
	now := time.Now()

	s.mu.Lock()
	runPeriodic := now.Sub(s.lastGeneratePeriodic) >= periodicTickPeriod
	if runPeriodic {
		s.lastGeneratePeriodic = now
	}
	runCleanup := now.Sub(s.lastCleanup) >= cleanupInterval
	if runCleanup {
		s.lastCleanup = now
	}
	clients := make(map[string]*rtcclient.Client, len(s.clients))
	for addr, c := range s.clients {
		clients[addr] = c
	}
	s.mu.Unlock()

	if runPeriodic {
		for addr, c := range clients {
			c.GeneratePeriodic()
			udpAddr, err := net.ResolveUDPAddr("udp", addr)
			if err == nil {
				s.drainClient(udpAddr, c)
			}
		}
	}

	if runCleanup {
		s.cleanup(now)
	}
}

func (s *Server) cleanup(now time.Time) {
	s.mu.Lock()
	for key, entry := range s.sessions {
		if now.Sub(entry.insertedAt) >= sessionTTL {
			delete(s.sessions, key)
		}
	}

	type evictedClient struct {
		addr   string
		client *rtcclient.Client
	}
	var evicted []evictedClient
	for addr, c := range s.clients {
		if now.Sub(c.LastActivity()) >= clientIdleTimeout || c.IsShutdown() {
			evicted = append(evicted, evictedClient{addr: addr, client: c})
			delete(s.clients, addr)
		}
	}
	onEvent := s.config.onEvent
	s.mu.Unlock()

	for _, e := range evicted {
		// StartShutdown is idempotent: a client already failed (IsShutdown)
		// no-ops here, while one only idle-timed-out gets its DTLS/SCTP
		// teardown and background goroutines released instead of leaking.
		e.client.StartShutdown()
		if udpAddr, err := net.ResolveUDPAddr("udp", e.addr); err == nil {
			s.drainClient(udpAddr, e.client)
		}
		if onEvent != nil {
			onEvent(EventClientEvicted, e.addr)
		}
		log.Info("evicted idle client %s", e.addr)
	}
}

// Recv suspends until at least one incoming application message is
// available, then returns it.
func (s *Server) Recv() (RecvResult, error) {
	select {
	case r := <-s.incoming:
		return r, nil
	case <-s.closed:
		return RecvResult{}, fmt.Errorf("unreliablertc: server is shut down")
	}
}

// Send enqueues payload for delivery to remoteAddr and drains the
// resulting ciphertext to the socket immediately.
func (s *Server) Send(payload []byte, mt rtcclient.MessageType, remoteAddr *net.UDPAddr) error {
	s.mu.Lock()
	client := s.clients[remoteAddr.String()]
	s.mu.Unlock()

	if client == nil || !client.IsEstablished() {
		return &SendError{Kind: ClientNotConnected}
	}

	if err := client.SendMessage(mt, payload); err != nil {
		if err == rtcclient.ErrIncompletePacketWrite {
			return &SendError{Kind: IncompleteMessageWrite, Err: err}
		}
		if err == rtcclient.ErrNotConnected {
			return &SendError{Kind: ClientNotConnected}
		}
		return &SendError{Kind: ClientError, Err: err}
	}

	var writeErr error
	for _, h := range client.TakeOutgoingPackets() {
		if writeErr == nil {
			var n int
			n, writeErr = s.conn.WriteToUDP(h.Bytes(), remoteAddr)
			if writeErr == nil && n < len(h.Bytes()) {
				writeErr = io.ErrShortWrite
			}
		}
		h.Release()
	}
	if writeErr != nil {
		return &SendError{Kind: IOError, Err: writeErr}
	}
	return nil
}

// Disconnect initiates shutdown for one client and flushes whatever
// close-notify/SHUTDOWN chunks that teardown produced to the socket, so the
// peer actually observes the close rather than just timing out locally
// (original_source/src/server.rs's disconnect: start_shutdown then drain
// take_outgoing_packets into send_outgoing).
func (s *Server) Disconnect(remoteAddr *net.UDPAddr) {
	s.mu.Lock()
	client := s.clients[remoteAddr.String()]
	s.mu.Unlock()
	if client == nil {
		return
	}
	client.StartShutdown()
	s.drainClient(remoteAddr, client)
}

// IsConnected reports whether remoteAddr has an Established Client.
func (s *Server) IsConnected(remoteAddr *net.UDPAddr) bool {
	s.mu.Lock()
	client := s.clients[remoteAddr.String()]
	s.mu.Unlock()
	return client != nil && client.IsEstablished()
}

// ActiveClients returns the number of Clients currently tracked (any
// state, not only Established).
func (s *Server) ActiveClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ConnectedClients returns a trailing-comma-concatenated list of
// established client addresses. spec.md §9's Open Questions flags this
// exact format (matching the original's trailing-comma join) as
// observability-only, not a real wire format; preserved as-is rather than
// "fixed" to a cleaner join.
func (s *Server) ConnectedClients() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for addr, c := range s.clients {
		if c.IsEstablished() {
			b.WriteString(addr)
			b.WriteByte(',')
		}
	}
	return b.String()
}

// ShutdownStarted reports whether Shutdown has been called.
func (s *Server) ShutdownStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownStarted
}

// ClientActivity returns (lastActivityAgeMs, lastSentAgeMs,
// lastReceivedAgeMs) for remoteAddr, mirroring the original
// implementation's client_activity accessor (SPEC_FULL.md's SUPPLEMENTED
// FEATURES note). Returns ok=false if there is no such client.
func (s *Server) ClientActivity(remoteAddr *net.UDPAddr) (lastActivityMs, lastSentMs, lastReceivedMs int64, ok bool) {
	s.mu.Lock()
	client := s.clients[remoteAddr.String()]
	s.mu.Unlock()
	if client == nil {
		return 0, 0, 0, false
	}

	now := time.Now()
	lastActivity, lastSent, lastReceived := client.Activity()
	lastActivityMs = ageMillis(now, lastActivity)
	lastSentMs = ageMillis(now, lastSent)
	lastReceivedMs = ageMillis(now, lastReceived)
	return lastActivityMs, lastSentMs, lastReceivedMs, true
}

func ageMillis(now, t time.Time) int64 {
	if t.IsZero() {
		return -1
	}
	return now.Sub(t).Milliseconds()
}

// Shutdown closes the socket, drops all Clients, and closes the receiving
// end of the offer channel. Any pending Recv() returns an error, and any
// pending or future SessionRequest() observes ErrDisconnected (spec.md §5,
// §7).
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.shutdownStarted = true
		for _, c := range s.clients {
			c.StartShutdown()
		}
		s.clients = make(map[string]*rtcclient.Client)
		s.sessions = make(map[sessionKey]sessionEntry)
		s.mu.Unlock()

		close(s.closed)
		s.conn.Close()
		close(s.endpointCh)
	})
}
