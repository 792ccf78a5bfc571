package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	handshakeWait  = 10 * time.Second
	maxMessageSize = 1 << 20
	inboxSize      = 1024
	sendBufSize    = 64
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Transport carries envelopes between a client and its server.
type Transport interface {
	Inbox() <-chan protocol.Envelope
	Send(t protocol.MsgType, payload any) error
	// Done is closed once the transport stops; Err says why.
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Conn is a websocket Transport. A read goroutine decodes frames into the
// inbox and a write goroutine drains the send buffer.
type Conn struct {
	ws    *websocket.Conn
	inbox chan protocol.Envelope
	send  chan []byte
	done  chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// Dial connects to addr with a connect token. With a certificate digest the
// connection uses TLS and accepts only the pinned leaf certificate.
func Dial(ctx context.Context, addr, token, digest string) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeWait,
	}
	scheme := "ws"
	if digest != "" {
		scheme = "wss"
		dialer.TLSClientConfig = &tls.Config{
			// the pinned digest replaces chain verification for self-signed servers
			InsecureSkipVerify:    true,
			VerifyPeerCertificate: protocol.VerifyPinnedDigest(digest),
		}
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: "/ws", RawQuery: url.Values{"token": {token}}.Encode()}

	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", addr, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &Conn{
		ws:    ws,
		inbox: make(chan protocol.Envelope, inboxSize),
		send:  make(chan []byte, sendBufSize),
		done:  make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

func (c *Conn) Inbox() <-chan protocol.Envelope { return c.inbox }
func (c *Conn) Done() <-chan struct{}           { return c.done }

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send queues a message without blocking.
func (c *Conn) Send(t protocol.MsgType, payload any) error {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	for {
		msgType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = ErrClosed
			}
			c.shutdown(err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			log.Printf("bad frame from server: %v", err)
			continue
		}
		select {
		case c.inbox <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writePump() {
	defer c.ws.Close()
	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
