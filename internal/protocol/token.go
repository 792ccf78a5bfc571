package protocol

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const tokenExpiry = 30 * time.Second

var (
	// ErrInvalidToken covers bad signatures, expiry and malformed claims.
	ErrInvalidToken = errors.New("invalid connect token")
	// ErrProtocolMismatch means the peer speaks a different protocol id.
	ErrProtocolMismatch = errors.New("protocol id mismatch")
)

// PrivateKey is the symmetric key shared by the server and the token issuer.
type PrivateKey [PrivateKeyBytes]byte

// DummyPrivateKey is used when no matchmaker issues tokens.
var DummyPrivateKey PrivateKey

// ParsePrivateKey reads 32 comma-separated byte values, e.g. "0,1,2,...".
func ParsePrivateKey(s string) (PrivateKey, error) {
	var key PrivateKey
	s = strings.Trim(strings.TrimSpace(s), "[]")
	parts := strings.Split(s, ",")
	if len(parts) != PrivateKeyBytes {
		return key, fmt.Errorf("private key: expected %d bytes, got %d", PrivateKeyBytes, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return key, fmt.Errorf("private key byte %d: %w", i, err)
		}
		key[i] = byte(v)
	}
	return key, nil
}

// ConnectClaims are carried by a connect token.
type ConnectClaims struct {
	ClientID   uint64 `json:"cid"`
	ProtocolID uint64 `json:"pid"`
	jwt.RegisteredClaims
}

// TokenKey derives the HMAC key for connect tokens from the private key.
func TokenKey(key PrivateKey, protocolID uint64) ([]byte, error) {
	info := make([]byte, 8)
	binary.BigEndian.PutUint64(info, protocolID)
	r := hkdf.New(sha256.New, key[:], []byte("spaceships connect token"), info)
	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return out, nil
}

// IssueToken signs a connect token for client.
func IssueToken(key PrivateKey, protocolID, client uint64, now time.Time) (string, error) {
	hmacKey, err := TokenKey(key, protocolID)
	if err != nil {
		return "", err
	}
	claims := ConnectClaims{
		ClientID:   client,
		ProtocolID: protocolID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(hmacKey)
}

// ValidateToken checks the signature, expiry and protocol id and returns the
// client id.
func ValidateToken(key PrivateKey, protocolID uint64, tokenStr string) (uint64, error) {
	var peek ConnectClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &peek); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if peek.ProtocolID != protocolID {
		return 0, fmt.Errorf("%w: token for %d, server speaks %d", ErrProtocolMismatch, peek.ProtocolID, protocolID)
	}

	hmacKey, err := TokenKey(key, protocolID)
	if err != nil {
		return 0, err
	}
	var claims ConnectClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return hmacKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return 0, ErrInvalidToken
	}
	if claims.ClientID == 0 {
		return 0, fmt.Errorf("%w: missing client id", ErrInvalidToken)
	}
	return claims.ClientID, nil
}
