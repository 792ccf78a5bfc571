package protocol

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"
)

// CertificateDigest is the SHA-256 hex digest of a DER leaf certificate, the
// form browser clients use to pin a self-signed server.
func CertificateDigest(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// ParseCertificateDigest accepts a digest as plain or colon-separated hex and
// returns it normalised to lowercase plain hex.
func ParseCertificateDigest(s string) (string, error) {
	clean := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), ":", ""))
	b, err := hex.DecodeString(clean)
	if err != nil {
		return "", fmt.Errorf("certificate digest: %w", err)
	}
	if len(b) != sha256.Size {
		return "", fmt.Errorf("certificate digest: expected %d bytes, got %d", sha256.Size, len(b))
	}
	return clean, nil
}

// VerifyPinnedDigest returns a function for tls.Config.VerifyPeerCertificate
// that accepts only a leaf whose digest equals want.
func VerifyPinnedDigest(want string) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("no server certificate")
		}
		if got := CertificateDigest(rawCerts[0]); got != want {
			return fmt.Errorf("certificate digest %s does not match pinned %s", got, want)
		}
		return nil
	}
}
