package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOffer = "v=0\r\na=ice-ufrag:remoteufrag\r\na=ice-pwd:remotepwd\r\na=mid:0\r\n"

func TestSessionRequestHappyPath(t *testing.T) {
	ch := make(chan PendingSession, Capacity)
	e := NewEndpoint(net.ParseIP("203.0.113.9"), 9000, "AB:CD", ch)

	answer, err := e.SessionRequest(testOffer)
	require.NoError(t, err)
	assert.Contains(t, answer, "a=setup:passive")
	assert.Contains(t, answer, "a=mid:0")

	select {
	case ps := <-ch:
		assert.Len(t, ps.ServerUser, serverUserLen)
		assert.Len(t, ps.ServerPasswd, serverPasswdLen)
		assert.Equal(t, "remoteufrag", ps.RemoteUser)
	default:
		t.Fatal("no pending session enqueued")
	}
}

func TestSessionRequestPropagatesParseError(t *testing.T) {
	ch := make(chan PendingSession, Capacity)
	e := NewEndpoint(net.ParseIP("203.0.113.9"), 9000, "AB:CD", ch)

	_, err := e.SessionRequest("v=0\r\na=mid:0\r\n")
	require.Error(t, err)
}

func TestSessionRequestDisconnectedWhenServerGone(t *testing.T) {
	ch := make(chan PendingSession)
	e := NewEndpoint(net.ParseIP("203.0.113.9"), 9000, "AB:CD", ch)
	close(ch)

	_, err := e.SessionRequest(testOffer)
	assert.ErrorIs(t, err, ErrDisconnected)
}
