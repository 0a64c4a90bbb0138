package rtcclient

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/unreliablertc/internal/buffer"
)

func newTestPseudoConn() *pseudoConn {
	return newPseudoConn(buffer.New(), &net.UDPAddr{}, &net.UDPAddr{})
}

func handleOf(pool *buffer.Pool, data string) *buffer.Handle {
	h := pool.Acquire()
	h.Resize(len(data))
	copy(h.Bytes(), data)
	return h
}

func TestPseudoConnDeliverThenRead(t *testing.T) {
	c := newTestPseudoConn()
	c.deliver(handleOf(c.pool, "hello"))

	buf := make([]byte, 16)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestPseudoConnWriteThenDrain(t *testing.T) {
	c := newTestPseudoConn()
	_, err := c.Write([]byte("world"))
	require.NoError(t, err)

	pkts := c.drain()
	require.Len(t, pkts, 1)
	assert.Equal(t, "world", string(pkts[0].Bytes()))
	assert.Nil(t, c.drain())
}

func TestPseudoConnCloseUnblocksRead(t *testing.T) {
	c := newTestPseudoConn()
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := c.Read(buf)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Close")
	}
}

func TestPseudoConnQueueDropsOldestWhenFull(t *testing.T) {
	c := newTestPseudoConn()
	for i := 0; i < maxQueuedPackets+5; i++ {
		c.deliver(handleOf(c.pool, string([]byte{byte(i)})))
	}

	c.mu.Lock()
	n := len(c.inbound)
	first := c.inbound[0].Bytes()[0]
	c.mu.Unlock()

	assert.Equal(t, maxQueuedPackets, n)
	assert.Equal(t, byte(5), first)
}
