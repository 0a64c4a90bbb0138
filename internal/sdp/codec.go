// Package sdp implements the narrow SDP offer/answer codec this server
// needs: extracting ice-ufrag/ice-pwd/mid from an offer, and rendering the
// JSON-wrapped SDP answer the session endpoint returns. The line-oriented
// scanning idiom (bounded line buffer, exact attribute prefixes) and the
// answer's exact field set/ordering are both grounded in
// original_source/src/sdp.rs, the implementation this spec was distilled
// from; the general v=/o=/m= object model the teacher's own internal/sdp
// package builds is not a fit here, since the server only ever needs three
// fields out of an offer and one fixed answer shape.
package sdp

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// maxLineLength bounds how much of a single SDP line is retained; longer
// lines are truncated, not rejected, matching original_source/src/sdp.rs.
const maxLineLength = 512

// ParseErrorReason enumerates why an offer failed to parse, as a closed
// tagged variant rather than an opaque/erased error (spec.md's REDESIGN
// FLAGS calls for this instead of the erased trait-object error the Rust
// source used).
type ParseErrorReason int

const (
	// MissingField means one of ice-ufrag, ice-pwd, or mid was absent.
	MissingField ParseErrorReason = iota
	// BadFormat means a line looked like an SDP attribute but its value
	// was not valid UTF-8 (or otherwise unusable).
	BadFormat
)

// ParseError reports why Parse failed. It is never fatal to the server: it
// is returned to the SDP submitter, who may retry with a corrected offer.
type ParseError struct {
	Reason ParseErrorReason
	Field  string
}

func (e *ParseError) Error() string {
	switch e.Reason {
	case MissingField:
		return fmt.Sprintf("sdp: missing required field %q", e.Field)
	default:
		return fmt.Sprintf("sdp: malformed field %q", e.Field)
	}
}

// Offer holds the three fields the server extracts from a client's SDP
// offer.
type Offer struct {
	IceUfrag string
	IcePwd   string
	Mid      string
}

// ParseOffer extracts ice-ufrag, ice-pwd, and mid from body, a CRLF- or
// LF-terminated SDP document. All three fields are required; any missing
// field is reported as a MissingField ParseError. Lines longer than 512
// bytes are silently truncated rather than rejected.
func ParseOffer(body string) (*Offer, error) {
	var ufrag, pwd, mid string
	var haveUfrag, havePwd, haveMid bool

	var line strings.Builder
	flush := func() {
		if line.Len() == 0 {
			return
		}
		s := line.String()
		switch {
		case strings.HasPrefix(s, "a=ice-ufrag:"):
			ufrag = strings.TrimPrefix(s, "a=ice-ufrag:")
			haveUfrag = true
		case strings.HasPrefix(s, "a=ice-pwd:"):
			pwd = strings.TrimPrefix(s, "a=ice-pwd:")
			havePwd = true
		case strings.HasPrefix(s, "a=mid:"):
			mid = strings.TrimPrefix(s, "a=mid:")
			haveMid = true
		}
		line.Reset()
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\r' || c == '\n' {
			flush()
			continue
		}
		if line.Len() < maxLineLength {
			line.WriteByte(c)
		}
	}
	flush()

	switch {
	case !haveUfrag:
		return nil, &ParseError{Reason: MissingField, Field: "a=ice-ufrag"}
	case !havePwd:
		return nil, &ParseError{Reason: MissingField, Field: "a=ice-pwd"}
	case !haveMid:
		return nil, &ParseError{Reason: MissingField, Field: "a=mid"}
	}

	return &Offer{IceUfrag: ufrag, IcePwd: pwd, Mid: mid}, nil
}

// answerDoc mirrors the JSON schema spec.md §4.3 requires:
// {"answer":{"sdp":…,"type":"answer"},"candidate":{...}}.
type answerDoc struct {
	Answer    answerSDP `json:"answer"`
	Candidate candidate `json:"candidate"`
}

type answerSDP struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type candidate struct {
	SdpMLineIndex int    `json:"sdpMLineIndex"`
	SdpMid        string `json:"sdpMid"`
	Candidate     string `json:"candidate"`
}

// RenderAnswer builds the JSON-wrapped SDP answer for an accepted offer.
// fingerprint is the certificate's colon-separated hex SHA-256 digest
// ("AB:CD:..."), to which RenderAnswer prepends "sha-256 ";
// publicIP/publicPort are the server's advertised candidate; serverUser and
// serverPasswd are the freshly generated ICE credentials; remoteMid echoes
// the offer's a=mid value. The server's role is always the passive DTLS
// side (a=setup:passive) running ice-lite with a single host candidate.
func RenderAnswer(fingerprint, publicIP string, isIPv6 bool, publicPort uint16, serverUser, serverPasswd, remoteMid string) (string, error) {
	ipv := "IP4"
	if isIPv6 {
		ipv = "IP6"
	}

	lines := []string{
		"v=0",
		fmt.Sprintf("o=FTL %d 1 IN %s %s", randUint32(), ipv, publicIP),
		"s=-",
		fmt.Sprintf("c=IN %s %s", ipv, publicIP),
		"t=0 0",
		"a=ice-lite",
		fmt.Sprintf("a=ice-ufrag:%s", serverUser),
		fmt.Sprintf("a=ice-pwd:%s", serverPasswd),
		fmt.Sprintf("m=application %d UDP/DTLS/SCTP webrtc-datachannel", publicPort),
		"a=max-message-size:1160",
		fmt.Sprintf("a=fingerprint:sha-256 %s", fingerprint),
		"a=ice-options:trickle",
		"a=setup:passive",
		fmt.Sprintf("a=mid:%s", remoteMid),
		fmt.Sprintf("a=sctpmap:%d webrtc-datachannel 8000", publicPort),
		"a=sendrecv",
		fmt.Sprintf("a=sctp-port:%d", publicPort),
	}
	sdpText := strings.Join(lines, "\r\n") + "\r\n"

	doc := answerDoc{
		Answer: answerSDP{SDP: sdpText, Type: "answer"},
		Candidate: candidate{
			SdpMLineIndex: 0,
			SdpMid:        remoteMid,
			Candidate: fmt.Sprintf(
				"candidate:1 1 UDP %d %s %d typ host",
				randUint32(), publicIP, publicPort,
			),
		},
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func randUint32() uint32 {
	var b [4]byte
	rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}
