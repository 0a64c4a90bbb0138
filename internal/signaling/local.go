// Package signaling is the default offer-intake collaborator spec.md §1
// calls out as an external transport: an HTTP handler that accepts an SDP
// offer and returns the JSON answer session.Endpoint renders. It is
// grounded on the teacher's local.go (same local-webserver shape: a single
// HTTP listener with a graceful Shutdown), simplified from the teacher's
// WebSocket-plus-trickling-ICE exchange to a single POST since the server
// runs ice-lite with one host candidate and never trickles (spec.md §1
// Non-goals).
package signaling

import (
	"context"
	"io"
	"net/http"

	"github.com/lanikai/unreliablertc/internal/logging"
	"github.com/lanikai/unreliablertc/session"
)

var log = logging.DefaultLogger.WithTag("signaling")

// LocalEndpoint serves the offer/answer exchange over plain HTTP: POST the
// SDP offer body to /offer, get the JSON answer session.Endpoint.SessionRequest
// produces back.
type LocalEndpoint struct {
	endpoint *session.Endpoint
	server   *http.Server
}

// NewLocalEndpoint constructs a LocalEndpoint bound to addr (not yet
// listening; call ListenAndServe).
func NewLocalEndpoint(endpoint *session.Endpoint, addr string) *LocalEndpoint {
	mux := http.NewServeMux()
	e := &LocalEndpoint{
		endpoint: endpoint,
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
	mux.HandleFunc("/offer", e.handleOffer)
	return e
}

// ListenAndServe blocks serving offers until Shutdown is called.
func (e *LocalEndpoint) ListenAndServe() error {
	err := e.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener.
func (e *LocalEndpoint) Shutdown() error {
	return e.server.Shutdown(context.Background())
}

func (e *LocalEndpoint) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := e.endpoint.SessionRequest(string(body))
	if err != nil {
		if err == session.ErrDisconnected {
			log.Warn("offer rejected, server is shutting down")
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		log.Warn("bad offer from %s: %v", r.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(answer)); err != nil {
		log.Warn("write answer to %s: %v", r.RemoteAddr, err)
	}
}
