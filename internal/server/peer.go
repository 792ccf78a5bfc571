package server

import (
	"encoding/binary"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
	"github.com/RJ/bevygap-spaceships/internal/sim"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 10 * time.Second
	pingPeriod        = time.Second
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120
	messageBurst      = 60
)

// Peer is one client's websocket connection.
type Peer struct {
	hub        *Hub
	game       *Game
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	client     sim.ClientID
	remoteAddr string
	limiter    *rate.Limiter

	mu      sync.Mutex
	rtt     time.Duration
	jitter  time.Duration
	sampled bool
}

// NewPeer creates a Peer for an authenticated client.
func NewPeer(hub *Hub, game *Game, conn *websocket.Conn, client sim.ClientID, remoteAddr string) *Peer {
	return &Peer{
		hub:        hub,
		game:       game,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		done:       make(chan struct{}),
		client:     client,
		remoteAddr: remoteAddr,
		limiter:    rate.NewLimiter(rate.Limit(maxMessagesPerSec), messageBurst),
	}
}

// ReadPump reads input messages until the connection fails or the client
// exceeds its message rate.
func (p *Peer) ReadPump() {
	defer func() {
		p.game.Disconnect(p.client, p)
		p.hub.Release(p.client)
		p.hub.TrackDisconnect(p.remoteAddr)
		p.Close()
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(payload string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		p.observePong([]byte(payload), time.Now())
		return nil
	})

	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("client %d: ws error: %v", p.client, err)
			}
			return
		}
		if !p.limiter.Allow() {
			log.Printf("rate limit exceeded for client %d (%s), disconnecting", p.client, p.remoteAddr)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		p.handleMessage(data)
	}
}

func (p *Peer) handleMessage(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		log.Printf("client %d: %v", p.client, err)
		return
	}
	switch env.T {
	case protocol.MsgInput:
		msg, err := protocol.DecodePayload[protocol.InputMessage](env)
		if err != nil {
			log.Printf("client %d: %v", p.client, err)
			return
		}
		msg.ClientID = uint64(p.client)
		p.game.Input(p.client, msg)
	default:
		log.Printf("client %d: unexpected %s message", p.client, env.T)
	}
}

// WritePump writes queued messages and timestamped pings.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}

		case now := <-ticker.C:
			var payload [8]byte
			binary.BigEndian.PutUint64(payload[:], uint64(now.UnixNano()))
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, payload[:]); err != nil {
				return
			}

		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues an encoded message. A full buffer drops snapshots but
// disconnects the peer for reliable messages. It returns false once the
// peer is closed.
func (p *Peer) Send(t protocol.MsgType, data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- data:
		return true
	default:
	}
	if t.Reliable() {
		log.Printf("client %d: send buffer full on %s, disconnecting", p.client, t)
		p.Close()
		return false
	}
	return true
}

// Close stops the write pump, which closes the connection.
func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Stats returns the smoothed round trip time and jitter.
func (p *Peer) Stats() (time.Duration, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rtt, p.jitter
}

func (p *Peer) observePong(payload []byte, now time.Time) {
	if len(payload) != 8 {
		return
	}
	sent := time.Unix(0, int64(binary.BigEndian.Uint64(payload)))
	sample := now.Sub(sent)
	if sample < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rtt, p.jitter = smoothRTT(p.rtt, p.jitter, sample, p.sampled)
	p.sampled = true
}

// smoothRTT folds a round trip sample into the running estimates: rtt with
// gain 1/8 and jitter as the mean deviation with gain 1/4.
func smoothRTT(rtt, jitter, sample time.Duration, sampled bool) (time.Duration, time.Duration) {
	if !sampled {
		return sample, sample / 2
	}
	dev := sample - rtt
	if dev < 0 {
		dev = -dev
	}
	rtt += (sample - rtt) / 8
	jitter += (dev - jitter) / 4
	return rtt, jitter
}
