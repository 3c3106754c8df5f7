// Package transport provides the WebSocket transport abstractions the
// bridge uses on both sides of a call: ServerTransport wraps an
// already-accepted provider connection, ClientTransport dials an
// outbound connection to a voice bot. Both share a single interface so
// the bridge orchestrator's forwarding loops are transport-agnostic.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send after Disconnect has been called, and by
// Recv once the read pump has stopped (Recv may instead return the read
// error that stopped the pump).
var ErrClosed = errors.New("transport: closed")

// Message is one WebSocket message, preserving the binary/text
// distinction the provider protocols depend on.
type Message struct {
	Binary bool
	Data   []byte
}

// Transport is the shared contract between ClientTransport and
// ServerTransport. It is purely I/O: it imposes no framing above the
// WebSocket message boundary.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Recv(ctx context.Context) (Message, error)
	Disconnect() error
	IsConnected() bool
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB
)

// ServerTransport wraps an already-accepted peer WebSocket connection
// (the provider side of a call). Grounded in the teacher's
// readPump/writePump/SetPingHandler keepalive idiom.
type ServerTransport struct {
	conn *websocket.Conn

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once

	recvCh chan Message
	errCh  chan error
	done   chan struct{}
}

// NewServerTransport wraps conn and starts its background read pump.
// The caller must have already completed the HTTP upgrade.
func NewServerTransport(conn *websocket.Conn) *ServerTransport {
	t := &ServerTransport{
		conn:   conn,
		recvCh: make(chan Message, 64),
		errCh:  make(chan error, 1),
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go t.readPump()
	go t.pingLoop()
	return t
}

func (t *ServerTransport) readPump() {
	defer close(t.done)
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case t.errCh <- err:
			default:
			}
			return
		}
		select {
		case t.recvCh <- Message{Binary: msgType == websocket.BinaryMessage, Data: data}:
		case <-t.done:
			return
		}
	}
}

func (t *ServerTransport) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.mu.Unlock()
			if err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

// Send writes a message to the provider connection.
func (t *ServerTransport) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	mt := websocket.TextMessage
	if msg.Binary {
		mt = websocket.BinaryMessage
	}
	return t.conn.WriteMessage(mt, msg.Data)
}

// Recv blocks until a message arrives, ctx is cancelled, or the
// connection closes.
func (t *ServerTransport) Recv(ctx context.Context) (Message, error) {
	select {
	case m, ok := <-t.recvCh:
		if !ok {
			return Message{}, ErrClosed
		}
		return m, nil
	case err := <-t.errCh:
		return Message{}, err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-t.done:
		return Message{}, ErrClosed
	}
}

// Disconnect closes the underlying connection. Idempotent.
func (t *ServerTransport) Disconnect() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.conn.SetWriteDeadline(time.Now().Add(writeWait))
		t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = t.conn.Close()
		t.mu.Unlock()
	})
	return err
}

// IsConnected reports whether Disconnect has not yet been called.
func (t *ServerTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// ClientTransport dials an outbound WebSocket connection — used by the
// bridge to connect to the external voice bot.
type ClientTransport struct {
	*ServerTransport
}

// DialClientTransport connects to url and wraps the resulting
// connection with the same read pump / keepalive machinery as
// ServerTransport.
func DialClientTransport(ctx context.Context, url string, headers map[string][]string) (*ClientTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	return &ClientTransport{ServerTransport: NewServerTransport(conn)}, nil
}
