package transport

import (
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket wraps a *websocket.Conn as a ymodem.Transport, for transfers
// tunneled over a signaling/data channel instead of a raw serial or TCP
// byte stream. Each Send call is framed as one binary message; Receive
// drains a pending message into a small internal buffer and serves bytes
// out of it across calls, since YMODEM's adapter reads one or a few bytes
// at a time while WebSocket delivers whole messages.
type WebSocket struct {
	conn *websocket.Conn

	pending []byte
}

// NewWebSocket wraps conn. conn must already be connected (see
// websocket.Dialer/Upgrader in the caller).
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

func (w *WebSocket) Send(data []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (w *WebSocket) Receive(out []byte, timeout time.Duration) (int, error) {
	if len(w.pending) == 0 {
		if err := w.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				return 0, nil
			}
			return 0, err
		}
		w.pending = msg
	}
	n := copy(out, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

// Close closes the underlying WebSocket connection.
func (w *WebSocket) Close() error {
	return w.conn.Close()
}
