package deribit

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/spooky-finn/go-deribit-bridge/domain/interfaces"
)

const handshakeTimeout = 5 * time.Second

type wsDialer struct{}

// NewWSDialer returns the production websocket dialer.
func NewWSDialer() interfaces.StreamDialer {
	return wsDialer{}
}

func (wsDialer) Dial(uri string) (interfaces.StreamConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, resp, err := dialer.Dial(uri, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
