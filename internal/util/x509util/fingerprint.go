// Package x509util extracts client certificates forwarded by the TLS-terminating
// proxy and computes their canonical fingerprints.
//
// Trust boundary: the VTN never performs the TLS handshake itself. The proxy in
// front of it (an AWS ALB in mutual TLS mode, or equivalent) verifies the client
// chain and forwards the leaf certificate in the X-Amzn-Mtls-Clientcert-Leaf header.
// The proxy must strip that header from incoming requests; if a client can set it
// directly, fingerprint authentication provides no protection at all.
package x509util

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"net/url"
	"strings"
)

// ClientCertHeader is the header the proxy uses to forward the verified leaf certificate.
const ClientCertHeader = "X-Amzn-Mtls-Clientcert-Leaf"

var (
	// ErrMissingClientCertificate is returned when the proxy header is absent or empty.
	ErrMissingClientCertificate = errors.New("missing client certificate")

	// ErrMalformedClientCertificate covers every decoding failure: percent-decoding,
	// PEM structure, base64 payload or X.509 parsing.
	ErrMalformedClientCertificate = errors.New("malformed client certificate")
)

// ParseLeafHeader decodes the proxy header value into a certificate.
// The value may be URL percent-encoded PEM or plain PEM.
func ParseLeafHeader(value string) (*x509.Certificate, error) {
	if strings.TrimSpace(value) == "" {
		return nil, ErrMissingClientCertificate
	}

	// PathUnescape leaves '+' alone, which matters because base64 uses it
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return nil, ErrMalformedClientCertificate
	}

	rest := []byte(decoded)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, ErrMalformedClientCertificate
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, ErrMalformedClientCertificate
		}
		return cert, nil
	}
}

// FingerprintFromHeader returns the canonical fingerprint of the certificate in the proxy header.
func FingerprintFromHeader(value string) (string, error) {
	cert, err := ParseLeafHeader(value)
	if err != nil {
		return "", err
	}
	return Fingerprint(cert), nil
}

// Fingerprint returns the canonical fingerprint of the whole certificate.
func Fingerprint(cert *x509.Certificate) string {
	return FingerprintDER(cert.Raw)
}

// FingerprintDER hashes DER bytes with SHA-256 and renders the digest as
// 32 uppercase hex byte pairs separated by colons ("AA:BB:...").
func FingerprintDER(der []byte) string {
	sum := sha256.Sum256(der)

	var b strings.Builder
	b.Grow(len(sum)*3 - 1)
	for i, octet := range sum {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{octet})))
	}
	return b.String()
}

// FingerprintPEM computes the fingerprint of the first certificate in a PEM document.
// It is used at startup to display the VTN's own certificate fingerprint.
func FingerprintPEM(data []byte) (string, error) {
	return FingerprintFromHeader(string(data))
}
