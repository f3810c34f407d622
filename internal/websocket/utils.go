package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	readWait   = 5 * time.Minute
	maxMessage = 4096
)

// Prepare applies the read limit and deadline every session stream uses.
func Prepare(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessage)
	conn.SetReadDeadline(time.Now().Add(readWait))
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
// gorilla connections allow one concurrent writer; callers serialize.
func WriteTyped(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, code, message string) error {
	return WriteTyped(conn, ErrorResponse{
		Event:   EventError,
		Code:    code,
		Message: message,
	})
}

// ReadMessage reads one raw frame and pushes the read deadline forward.
func ReadMessage(conn *websocket.Conn) ([]byte, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Now().Add(readWait))
	return data, nil
}
