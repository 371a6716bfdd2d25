package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serializes writes on a gorilla connection, which allows only one
// concurrent writer. Reads stay on the owning goroutine.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func Wrap(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteTyped sends a payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// WriteJSON sends an event carrying data.
func (c *Conn) WriteJSON(event Event, requestID string, data interface{}) error {
	return c.WriteTyped(Message{Event: event, RequestID: requestID, Data: data})
}

// WriteError sends an EventError with a machine code and message.
func (c *Conn) WriteError(requestID, code, msg string) error {
	return c.WriteTyped(Message{
		Event:     EventError,
		RequestID: requestID,
		Error:     &ErrorBody{Code: code, Message: msg},
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func (c *Conn) ReadJSON(v interface{}) error {
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	return c.ws.ReadJSON(v)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
