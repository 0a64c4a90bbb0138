// Package dtls provides the server's certificate/fingerprint generation and
// a DTLS acceptor wrapping github.com/pion/dtls/v2 in the ice-lite server's
// passive role. Certificate generation is adapted from the teacher's root
// certificate.go; the acceptor generalizes the architectural precedent of
// the teacher's own internal/dtls subtree (documented there as "subtree
// merged pions/dtls") into a real dependency on that library.
package dtls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// Certificate bundles the self-signed key pair used for every DTLS
// handshake the server performs, plus its SHA-256 fingerprint in the
// colon-separated hex form the SDP answer's a=fingerprint line expects.
type Certificate struct {
	Leaf        *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
	Fingerprint string
}

// GenerateCertificate creates a fresh self-signed ECDSA P-256 certificate:
// random serial number, "WebRTC" common name, 30-day validity (the same
// choices the teacher's certificate.go makes, since Chrome itself defaults
// to a 30-day lifetime for ephemeral WebRTC certificates).
func GenerateCertificate() (*Certificate, error) {
	notBefore := time.Now()
	notAfter := notBefore.Add(30 * 24 * time.Hour)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("dtls: generate serial number: %w", err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("dtls: generate key: %w", err)
	}

	template := &x509.Certificate{
		SignatureAlgorithm: x509.ECDSAWithSHA256,
		SerialNumber:       serialNumber,
		Subject:            pkix.Name{CommonName: "WebRTC"},
		NotBefore:          notBefore,
		NotAfter:           notAfter,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("dtls: create certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("dtls: parse certificate: %w", err)
	}

	h := sha256.Sum256(derBytes)
	fingerprint := fingerprintHex(h)

	return &Certificate{
		Leaf:        leaf,
		PrivateKey:  priv,
		Fingerprint: fingerprint,
	}, nil
}

// fingerprintHex renders a SHA-256 digest as 32 colon-separated uppercase
// hex byte groups, matching the format WebRTC clients expect on the
// a=fingerprint line (e.g. "05:67:ED:76:...").
func fingerprintHex(h [sha256.Size]byte) string {
	buf := make([]byte, 0, sha256.Size*3-1)
	const hexDigits = "0123456789ABCDEF"
	for i, b := range h {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0xf])
	}
	return string(buf)
}
