package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
	"github.com/RJ/bevygap-spaceships/internal/sim"
)

// ErrBadTicket is returned when the matchmaker answers without a server or token.
var ErrBadTicket = errors.New("matchmaker returned an incomplete ticket")

// Ticket is the matchmaker's answer: where to connect and with what token.
type Ticket struct {
	ServerAddr string `json:"server_addr"`
	Token      string `json:"token"`
	CertDigest string `json:"cert_digest"`
}

type matchRequest struct {
	ClientID uint64 `json:"client_id"`
}

// RequestMatch asks the matchmaker at url for a server to join.
func RequestMatch(ctx context.Context, hc *http.Client, url string, cid sim.ClientID) (Ticket, error) {
	var t Ticket
	body, err := json.Marshal(matchRequest{ClientID: uint64(cid)})
	if err != nil {
		return t, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return t, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return t, fmt.Errorf("matchmaker: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return t, fmt.Errorf("matchmaker: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return t, fmt.Errorf("matchmaker: decode ticket: %w", err)
	}
	if t.ServerAddr == "" || t.Token == "" {
		return t, ErrBadTicket
	}
	if t.CertDigest != "" {
		if t.CertDigest, err = protocol.ParseCertificateDigest(t.CertDigest); err != nil {
			return t, fmt.Errorf("matchmaker: %w", err)
		}
	}
	return t, nil
}
