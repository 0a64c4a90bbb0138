package rtcclient

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/lanikai/unreliablertc/internal/buffer"
)

// pseudoConn implements net.Conn over a pair of buffered queues rather than
// a real socket, so DTLS/SCTP libraries that expect a net.Conn can be fed
// ciphertext that actually arrived on the server's single shared UDP
// socket. Reads are queued inbound packets (delivered by the server core
// via deliver); writes are queued outbound packets (drained by the server
// core via drain). This is the same buffer-exchange shape as
// internal/mux.Endpoint, simplified to a plain slice queue since each
// Client owns exactly one pseudoConn rather than multiplexing several
// matchers over one socket. Queue elements are pool-backed buffer.Handles
// rather than heap slices, so the handshake/read-pump goroutine never
// allocates per packet either.
type pseudoConn struct {
	local, remote net.Addr
	pool          *buffer.Pool

	mu        sync.Mutex
	cond      *sync.Cond
	inbound   []*buffer.Handle
	outbound  []*buffer.Handle
	closed    bool
	closeOnce sync.Once
}

const maxQueuedPackets = 64

func newPseudoConn(pool *buffer.Pool, local, remote net.Addr) *pseudoConn {
	c := &pseudoConn{local: local, remote: remote, pool: pool}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// deliver hands an inbound ciphertext packet to the conn, taking ownership
// of h, for a reader blocked in Read (run on the DTLS/SCTP handshake
// goroutine, never on the server's own event loop). If the queue is full,
// the oldest packet is dropped and released back to the pool — DTLS/SCTP
// already retransmit, so a dropped record is not fatal.
func (c *pseudoConn) deliver(h *buffer.Handle) {
	c.mu.Lock()
	if len(c.inbound) >= maxQueuedPackets {
		stale := c.inbound[0]
		c.inbound = c.inbound[1:]
		stale.Release()
	}
	c.inbound = append(c.inbound, h)
	c.mu.Unlock()
	c.cond.Signal()
}

// drain removes and returns every packet queued for the socket so far. The
// caller takes ownership of each returned handle and must Release it once
// its bytes have been written to the socket.
func (c *pseudoConn) drain() []*buffer.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outbound) == 0 {
		return nil
	}
	out := c.outbound
	c.outbound = nil
	return out
}

func (c *pseudoConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.inbound) == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.closed && len(c.inbound) == 0 {
		return 0, io.EOF
	}
	h := c.inbound[0]
	c.inbound = c.inbound[1:]
	n := copy(p, h.Bytes())
	h.Release()
	return n, nil
}

func (c *pseudoConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	h := c.pool.Acquire()
	h.Resize(len(p))
	copy(h.Bytes(), p)
	c.outbound = append(c.outbound, h)
	c.mu.Unlock()
	return len(p), nil
}

// Close marks the conn closed and discards anything still queued for
// reading. Anything already queued for writing is deliberately left alone:
// stream.Close()/assoc.Close() typically write a final close-notify/
// SHUTDOWN chunk right before the caller closes the conn, and that chunk
// must survive to be drained and sent — see StartShutdown/teardown.
func (c *pseudoConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		for _, h := range c.inbound {
			h.Release()
		}
		c.inbound = nil
		c.mu.Unlock()
		c.cond.Broadcast()
	})
	return nil
}

func (c *pseudoConn) LocalAddr() net.Addr  { return c.local }
func (c *pseudoConn) RemoteAddr() net.Addr { return c.remote }

// Deadlines are not honored: the server's own periodic inactivity check
// (spec.md §4.7) is what actually bounds how long a stalled peer survives,
// same division of responsibility as internal/mux.Endpoint's deadline
// stubs.
func (c *pseudoConn) SetDeadline(t time.Time) error      { return nil }
func (c *pseudoConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *pseudoConn) SetWriteDeadline(t time.Time) error { return nil }
