package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

// Conn wraps a websocket connection with serialized writes. gorilla permits
// one concurrent writer; the relay's device and upstream pumps both write to
// each conn, so every write goes through the mutex.
type Conn struct {
	ws      *websocket.Conn
	path    string
	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn, path string) *Conn {
	return &Conn{ws: ws, path: path}
}

// Path returns the request path the peer connected with.
func (c *Conn) Path() string {
	return c.path
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Subprotocol returns the negotiated subprotocol, empty when none matched.
func (c *Conn) Subprotocol() string {
	return c.ws.Subprotocol()
}

// ReadMessage blocks until the next text or binary message arrives.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *Conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// CloseWithCode sends a close control frame carrying code and reason, then
// tears the connection down.
func (c *Conn) CloseWithCode(code int, reason string) error {
	c.writeMu.Lock()
	deadline := time.Now().Add(closeWriteTimeout)
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
