package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is the minimal connection surface the transport drives. The
// default implementation wraps a gorilla websocket; tests and non-standard
// hosts substitute their own.
type Socket interface {
	// ReadMessage blocks for the next frame.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one text frame.
	WriteMessage(data []byte) error

	// Close tears the connection down. ReadMessage unblocks with an
	// error afterwards.
	Close() error
}

// Dialer constructs a Socket. The header carries Authorization and Origin
// when the session configures them.
type Dialer func(ctx context.Context, url string, header http.Header) (Socket, error)

// DefaultDialer returns the gorilla-websocket dialer.
func DefaultDialer() Dialer {
	return func(ctx context.Context, url string, header http.Header) (Socket, error) {
		d := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		}
		conn, resp, err := d.DialContext(ctx, url, header)
		if err != nil {
			return nil, err
		}
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return &wsSocket{conn: conn}, nil
	}
}

// wsSocket adapts *websocket.Conn. Gorilla allows only one concurrent
// writer, so writes serialize on a mutex.
type wsSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
