package server

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
	"github.com/RJ/bevygap-spaceships/internal/sim"
)

const (
	qrSize    = 256
	topScores = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Options configures the HTTP surface.
type Options struct {
	PrivateKey protocol.PrivateKey
	ProtocolID uint64
	// PublicURL is the client join URL encoded by /join.png.
	PublicURL string
	// CertDigest is the TLS leaf digest clients should pin, if any.
	CertDigest string
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// JoinURL appends the certificate digest to the public URL.
func JoinURL(public, digest string) (string, error) {
	u, err := url.Parse(public)
	if err != nil {
		return "", err
	}
	if digest != "" {
		q := u.Query()
		q.Set("cert_digest", digest)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// SetupRoutes configures HTTP routes. db may be nil.
func SetupRoutes(hub *Hub, game *Game, db *DB, opts Options) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		cid, err := protocol.ValidateToken(opts.PrivateKey, opts.ProtocolID, r.URL.Query().Get("token"))
		if err != nil {
			if errors.Is(err, protocol.ErrProtocolMismatch) {
				log.Printf("rejecting %s: %v", ip, err)
			}
			http.Error(w, "invalid connect token", http.StatusForbidden)
			return
		}
		client := sim.ClientID(cid)
		if !hub.Claim(client) {
			http.Error(w, "client already connected", http.StatusConflict)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.Release(client)
			log.Printf("upgrade error: %v", err)
			return
		}
		hub.TrackConnect(ip)

		peer := NewPeer(hub, game, conn, client, ip)
		if !game.Connect(client, peer) {
			peer.Close()
			conn.Close()
			hub.Release(client)
			hub.TrackDisconnect(ip)
			return
		}
		go peer.WritePump()
		go peer.ReadPump()
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		select {
		case <-game.Done():
			status, code = "stopped", http.StatusServiceUnavailable
		default:
		}
		writeJSON(w, code, map[string]any{
			"status":      status,
			"instance":    game.InstanceID(),
			"tick":        game.Tick(),
			"players":     game.PlayerCount(),
			"connections": hub.TotalConns(),
		})
	})

	mux.HandleFunc("/scores", func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			Live []LiveScore `json:"live"`
			Top  []ScoreRow  `json:"top"`
		}{Live: game.Scores(), Top: []ScoreRow{}}
		if db != nil {
			top, err := db.TopScores(topScores)
			if err != nil {
				log.Printf("top scores: %v", err)
				http.Error(w, "database error", http.StatusInternalServerError)
				return
			}
			if top != nil {
				resp.Top = top
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/join.png", func(w http.ResponseWriter, r *http.Request) {
		if opts.PublicURL == "" {
			http.NotFound(w, r)
			return
		}
		target, err := JoinURL(opts.PublicURL, opts.CertDigest)
		if err != nil {
			http.Error(w, "bad public url", http.StatusInternalServerError)
			return
		}
		png, err := qrcode.Encode(target, qrcode.Medium, qrSize)
		if err != nil {
			log.Printf("qr encode: %v", err)
			http.Error(w, "qr error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	return mux
}
