// Package stun implements the narrow slice of RFC 5389 the server needs:
// parsing a binding request's USERNAME and writing a MESSAGE-INTEGRITY- and
// FINGERPRINT-signed binding success. The wire layout (header parsing,
// attribute TLV framing, XOR-MAPPED-ADDRESS, MESSAGE-INTEGRITY, FINGERPRINT)
// is adapted from the ICE agent's internal codec
// (internal/ice/stun.go), narrowed from a general request/response codec
// into the two pure functions the server core calls.
package stun

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"hash/crc32"
	"net"
	"strings"
)

const (
	headerLength = 20
	magicCookie  = 0x2112A442
)

const (
	classRequest         = 0
	classSuccessResponse = 2
)

const bindingMethod = 0x1

const (
	attrUsername         = 0x0006
	attrMessageIntegrity  = 0x0008
	attrXorMappedAddress = 0x0020
	attrFingerprint       = 0x8028
)

var magicCookieBytes = []byte{0x21, 0x12, 0xA4, 0x42}

const fingerprintXor = 0x5354554e

// BindingRequest is the parsed result of a STUN binding request, with the
// USERNAME attribute split at its first colon into the server- and
// remote-side ICE fragments.
type BindingRequest struct {
	TransactionID []byte
	ServerUser    string
	RemoteUser    string
}

// ParseBindingRequest returns (req, true) if data is a well-formed STUN
// binding request carrying a USERNAME attribute; otherwise (nil, false).
// Any other message class, method, or malformed attribute framing is
// reported as "not a binding request" rather than an error: packet
// classification on the shared socket treats STUN-parse-failure as "try the
// next protocol layer", not as a fatal condition.
func ParseBindingRequest(data []byte) (*BindingRequest, bool) {
	if len(data) < headerLength {
		return nil, false
	}

	messageType := binary.BigEndian.Uint16(data[0:2])
	if messageType>>14 != 0 {
		return nil, false
	}

	length := binary.BigEndian.Uint16(data[2:4])
	if int(length)%4 != 0 || headerLength+int(length) > len(data) {
		return nil, false
	}

	if binary.BigEndian.Uint32(data[4:8]) != magicCookie {
		return nil, false
	}

	class, method := decomposeMessageType(messageType)
	if class != classRequest || method != bindingMethod {
		return nil, false
	}

	transactionID := append([]byte(nil), data[8:20]...)

	var username string
	found := false
	b := bytes.NewBuffer(data[headerLength : headerLength+int(length)])
	for b.Len() >= 4 {
		typ := binary.BigEndian.Uint16(b.Next(2))
		attrLen := binary.BigEndian.Uint16(b.Next(2))
		if int(attrLen) > b.Len() {
			return nil, false
		}
		value := b.Next(int(attrLen))
		b.Next(pad4(attrLen))

		if typ == attrUsername {
			username = string(value)
			found = true
		}
	}
	if !found {
		return nil, false
	}

	serverUser, remoteUser, ok := splitUsername(username)
	if !ok {
		return nil, false
	}

	return &BindingRequest{
		TransactionID: transactionID,
		ServerUser:    serverUser,
		RemoteUser:    remoteUser,
	}, true
}

func splitUsername(username string) (serverUser, remoteUser string, ok bool) {
	i := strings.IndexByte(username, ':')
	if i < 0 {
		return "", "", false
	}
	return username[:i], username[i+1:], true
}

// WriteBindingSuccess writes a STUN binding success response into out,
// reflecting mappedAddr as an XOR-MAPPED-ADDRESS attribute and signing the
// message with MESSAGE-INTEGRITY (HMAC-SHA1 keyed by integrityKey) and
// FINGERPRINT (CRC32 XOR 0x5354554e), per RFC 5389 §15.4-15.5. Returns the
// number of bytes written.
func WriteBindingSuccess(transactionID []byte, mappedAddr *net.UDPAddr, integrityKey string, out *bytes.Buffer) (int, error) {
	var body bytes.Buffer
	writeXorMappedAddress(&body, mappedAddr, transactionID)

	// MESSAGE-INTEGRITY covers everything up to (not including) itself, with
	// the STUN header length field set as though the attribute were already
	// present.
	bodyWithIntegrityLen := body.Len() + 4 + 20
	header := make([]byte, headerLength)
	binary.BigEndian.PutUint16(header[0:2], composeMessageType(classSuccessResponse, bindingMethod))
	binary.BigEndian.PutUint16(header[2:4], uint16(bodyWithIntegrityLen))
	binary.BigEndian.PutUint32(header[4:8], magicCookie)
	copy(header[8:20], transactionID)

	toSign := append(append([]byte(nil), header...), body.Bytes()...)
	sig := hmac.New(sha1.New, []byte(integrityKey))
	sig.Write(toSign)
	mac := sig.Sum(nil)

	writeAttr(&body, attrMessageIntegrity, mac)

	// FINGERPRINT covers everything up to (not including) itself; recompute
	// the header length to include both MESSAGE-INTEGRITY and FINGERPRINT.
	finalLen := body.Len() + 4 + 4
	binary.BigEndian.PutUint16(header[2:4], uint16(finalLen))

	toCRC := append(append([]byte(nil), header...), body.Bytes()...)
	crc := crc32.ChecksumIEEE(toCRC) ^ fingerprintXor
	fp := make([]byte, 4)
	binary.BigEndian.PutUint32(fp, crc)
	writeAttr(&body, attrFingerprint, fp)

	out.Write(header)
	out.Write(body.Bytes())
	return headerLength + body.Len(), nil
}

func writeXorMappedAddress(b *bytes.Buffer, addr *net.UDPAddr, transactionID []byte) {
	var value []byte
	ip4 := addr.IP.To4()
	if ip4 != nil {
		value = make([]byte, 8)
		value[1] = 0x01
		copy(value[4:8], ip4)
	} else {
		value = make([]byte, 20)
		value[1] = 0x02
		copy(value[4:20], addr.IP.To16())
	}
	binary.BigEndian.PutUint16(value[2:4], uint16(addr.Port))

	xorBytes(value[2:4], magicCookieBytes[0:2])
	xorBytes(value[4:8], magicCookieBytes)
	if len(value) > 8 {
		xorBytes(value[8:], transactionID)
	}
	writeAttr(b, attrXorMappedAddress, value)
}

func writeAttr(b *bytes.Buffer, typ uint16, value []byte) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], typ)
	binary.BigEndian.PutUint16(header[2:4], uint16(len(value)))
	b.Write(header)
	b.Write(value)
	if p := pad4(uint16(len(value))); p > 0 {
		b.Write(make([]byte, p))
	}
}

func xorBytes(dest []byte, xor []byte) {
	for i := range dest {
		dest[i] ^= xor[i]
	}
}

func pad4(n uint16) int {
	return -int(n) & 3
}

func composeMessageType(class uint16, method uint16) uint16 {
	const classMask1 = 0x0100
	const classMask2 = 0x0010
	const methodMask1 = 0x3e00
	const methodMask2 = 0x00e0
	const methodMask3 = 0x000f

	t := (class<<7)&classMask1 | (class<<4)&classMask2
	t |= (method<<2)&methodMask1 | (method<<1)&methodMask2 | (method & methodMask3)
	return t
}

func decomposeMessageType(t uint16) (uint16, uint16) {
	const classMask1 = 0x0100
	const classMask2 = 0x0010
	const methodMask1 = 0x3e00
	const methodMask2 = 0x00e0
	const methodMask3 = 0x000f

	class := (t&classMask1)>>7 | (t&classMask2)>>4
	method := (t&methodMask1)>>2 | (t&methodMask2)>>1 | (t & methodMask3)
	return class, method
}

// NewTransactionID generates a random 12-byte STUN transaction ID, for
// callers that originate requests rather than parse them (not used by the
// server core, which only ever reflects a peer's transaction ID back, but
// kept for symmetry with peers that need to originate one in tests).
func NewTransactionID() []byte {
	buf := make([]byte, 12)
	rand.Read(buf)
	return buf
}
