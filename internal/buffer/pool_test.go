package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireGivesEmptyMTUBuffer(t *testing.T) {
	p := New()
	h := p.Acquire()
	require.NotNil(t, h)
	assert.Equal(t, 0, len(h.Bytes()))
	assert.Equal(t, MaxUDPPayloadSize, h.Cap())
}

func TestReleaseRecyclesBackingArray(t *testing.T) {
	p := New()
	h := p.Acquire()
	h.Resize(10)
	copy(h.Bytes(), []byte("0123456789"))
	backing := &h.Bytes()[0:1][0]
	h.Release()

	h2 := p.Acquire()
	require.Equal(t, 0, len(h2.Bytes()))
	h2.Resize(1)
	assert.Same(t, backing, &h2.Bytes()[0])
}

func TestDetachAndAdoptRoundTrip(t *testing.T) {
	p := New()
	h := p.Acquire()
	h.Resize(3)
	copy(h.Bytes(), []byte{1, 2, 3})

	raw := h.Detach()
	h2 := p.Adopt(raw)
	assert.Equal(t, []byte{1, 2, 3}, h2.Bytes())
}

func TestPoolGrowsUnderConcurrentHandles(t *testing.T) {
	p := New()
	a := p.Acquire()
	b := p.Acquire()
	assert.NotNil(t, a)
	assert.NotNil(t, b)
	a.Release()
	b.Release()
}
