package rtcclient

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanikai/unreliablertc/internal/buffer"
)

// newTestClient builds a Client in the Starting state without launching
// the real establish() goroutine, so state-machine behavior can be tested
// independent of a live DTLS/SCTP handshake.
func newTestClient() *Client {
	pool := buffer.New()
	conn := newPseudoConn(pool, &net.UDPAddr{}, &net.UDPAddr{Port: 1})
	return &Client{
		remoteAddr: conn.remote,
		pool:       pool,
		conn:       conn,
		state:      Starting,
		messages:   make(chan Message, 4),
	}
}

func TestSendMessageRequiresEstablished(t *testing.T) {
	c := newTestClient()
	err := c.SendMessage(Binary, []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendMessageRejectsOversizePayload(t *testing.T) {
	c := newTestClient()
	c.state = Established
	big := make([]byte, MaxMessageLen+1)
	err := c.SendMessage(Binary, big)
	assert.ErrorIs(t, err, ErrIncompletePacketWrite)
}

func TestStartShutdownIsIdempotent(t *testing.T) {
	c := newTestClient()
	c.stream = nil
	c.assoc = nil
	assert.True(t, c.StartShutdown())
	assert.False(t, c.StartShutdown())
}

func TestReceiveMessagesDrainsQueue(t *testing.T) {
	c := newTestClient()
	c.messages <- Message{Type: Binary, Data: []byte("a")}
	c.messages <- Message{Type: Text, Data: []byte("b")}

	msgs := c.ReceiveMessages()
	assert.Len(t, msgs, 2)
	assert.Nil(t, c.ReceiveMessages())
}

func TestTakeOutgoingPacketsDrainsConn(t *testing.T) {
	c := newTestClient()
	c.conn.Write([]byte("packet"))
	pkts := c.TakeOutgoingPackets()
	assert.Len(t, pkts, 1)
	assert.Equal(t, "packet", string(pkts[0].Bytes()))
}
