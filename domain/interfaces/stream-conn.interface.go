package interfaces

// StreamConn is an established persistent connection. Framing, TLS and
// ping/pong live below this interface.
type StreamConn interface {
	// ReadMessage blocks until the next text frame or a transport failure.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// StreamDialer opens persistent connections to the exchange.
type StreamDialer interface {
	Dial(uri string) (StreamConn, error)
}
