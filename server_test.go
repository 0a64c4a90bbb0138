package unreliablertc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/unreliablertc/internal/stun"
	"github.com/lanikai/unreliablertc/session"
)

const testOffer = "v=0\r\na=ice-ufrag:remoteufrag\r\na=ice-pwd:remotepwd\r\na=mid:0\r\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	config := NewConfig(
		&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
		&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000},
	)
	s, err := New(config)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func TestUnknownStunUsernameDoesNothing(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, 0, s.ActiveClients())

	s.handleStunBindingRequest(&stun.BindingRequest{
		TransactionID: make([]byte, 12),
		ServerUser:    "bogus",
		RemoteUser:    "abc",
	}, &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1})

	assert.Equal(t, 0, s.ActiveClients())
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	s := newTestServer(t)
	s.insertSession(session.PendingSession{ServerUser: "su", ServerPasswd: "sp", RemoteUser: "ru"})

	s.mu.Lock()
	entry := s.sessions[sessionKey{serverUser: "su", remoteUser: "ru"}]
	entry.insertedAt = time.Now().Add(-sessionTTL - time.Second)
	s.sessions[sessionKey{serverUser: "su", remoteUser: "ru"}] = entry
	s.mu.Unlock()

	s.cleanup(time.Now())

	s.mu.Lock()
	_, ok := s.sessions[sessionKey{serverUser: "su", remoteUser: "ru"}]
	s.mu.Unlock()
	assert.False(t, ok)
}

func TestSendToUnknownPeerFails(t *testing.T) {
	s := newTestServer(t)
	err := s.Send([]byte("x"), 0, &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1})
	require.Error(t, err)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, ClientNotConnected, sendErr.Kind)
}

func TestConnectedClientsEmptyWithoutClients(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "", s.ConnectedClients())
}

// TestMatchedStunUsernameCreatesClientAndRefreshesTTL covers spec.md §8's
// first end-to-end scenario at the classification layer: a STUN binding
// whose USERNAME matches a pending session refreshes that session's TTL
// and lazily constructs a Client, without requiring a full DTLS handshake.
func TestMatchedStunUsernameCreatesClientAndRefreshesTTL(t *testing.T) {
	s := newTestServer(t)
	s.insertSession(session.PendingSession{ServerUser: "su", ServerPasswd: "sp", RemoteUser: "ru"})

	key := sessionKey{serverUser: "su", remoteUser: "ru"}
	s.mu.Lock()
	entry := s.sessions[key]
	staleInsertedAt := time.Now().Add(-time.Second)
	entry.insertedAt = staleInsertedAt
	s.sessions[key] = entry
	s.mu.Unlock()

	from := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 4242}
	s.handleStunBindingRequest(&stun.BindingRequest{
		TransactionID: make([]byte, 12),
		ServerUser:    "su",
		RemoteUser:    "ru",
	}, from)

	assert.Equal(t, 1, s.ActiveClients())

	s.mu.Lock()
	refreshed := s.sessions[key].insertedAt
	s.mu.Unlock()
	assert.True(t, refreshed.After(staleInsertedAt), "TTL should be refreshed on a matched binding")
}

// TestIdleClientEvictedFiresEventExactlyOnce covers spec.md §8's client
// idle eviction scenario: a client whose last activity is older than the
// inactivity timeout is dropped on the next cleanup sweep, and exactly one
// EventClientEvicted fires.
func TestIdleClientEvictedFiresEventExactlyOnce(t *testing.T) {
	var events []EventCode
	config := NewConfig(
		&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
		&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000},
		WithEventFunc(func(code EventCode, message string) {
			events = append(events, code)
		}),
	)
	s, err := New(config)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	from := &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 5000}
	s.insertSession(session.PendingSession{ServerUser: "su", ServerPasswd: "sp", RemoteUser: "ru"})
	s.handleStunBindingRequest(&stun.BindingRequest{
		TransactionID: make([]byte, 12),
		ServerUser:    "su",
		RemoteUser:    "ru",
	}, from)
	require.Equal(t, 1, s.ActiveClients())

	s.mu.Lock()
	c := s.clients[from.String()]
	s.mu.Unlock()
	require.NotNil(t, c)

	s.cleanup(c.LastActivity().Add(clientIdleTimeout + time.Second))

	assert.Equal(t, 0, s.ActiveClients())
	assert.Equal(t, []EventCode{EventClientEvicted}, events)
}

// TestShutdownDisconnectsSessionEndpoint covers spec.md §5/§7: closing the
// server must drop the receiving end of the offer channel, so a pending or
// future SessionRequest observes ErrDisconnected instead of blocking or
// panicking the caller.
func TestShutdownDisconnectsSessionEndpoint(t *testing.T) {
	s := newTestServer(t)
	endpoint := s.SessionEndpoint()

	s.Shutdown()

	_, err := endpoint.SessionRequest(testOffer)
	assert.ErrorIs(t, err, session.ErrDisconnected)
}
