package transport

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Upgrader is the shared gorilla/websocket upgrader used by the listen
// endpoint. CheckOrigin always allows: telephony providers do not send
// Origin headers compatible with same-origin browser checks, matching
// the teacher's own upgrader configuration.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades an incoming HTTP request to a WebSocket connection and
// wraps it as a ServerTransport.
func Accept(w http.ResponseWriter, r *http.Request) (*ServerTransport, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewServerTransport(conn), nil
}
