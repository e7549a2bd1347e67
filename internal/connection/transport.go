package connection

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a bidirectional message channel to one peer.
type Transport interface {
	// ReadMessage blocks until the next data frame arrives.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text frame.
	WriteMessage(data []byte) error

	// Ping sends a keepalive.
	Ping() error

	// Close tears down the connection.
	Close() error
}

// wsTransport adapts a gorilla websocket connection.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pongTimeout  time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn, cfg SessionConfig) *wsTransport {
	t := &wsTransport{
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		pongTimeout:  cfg.PongTimeout,
	}

	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}
	if t.pongTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(t.pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.pongTimeout))
		})
	}

	return t
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(t.deadline())
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), t.deadline())
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) deadline() time.Time {
	if t.writeTimeout <= 0 {
		return time.Now().Add(5 * time.Second)
	}
	return time.Now().Add(t.writeTimeout)
}
