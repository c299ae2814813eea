package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/tailmate/chat-service/internal/realtime"
)

const writeWait = 5 * time.Second

var (
	errConnClosed   = errors.New("ws: connection closed")
	errSlowConsumer = errors.New("ws: send buffer full")
)

// wsConn is a realtime.Conn backed by one websocket. Frames are queued and
// written by a single writer goroutine; a full queue closes the connection.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	send   chan Message
	closed chan struct{}
	once   sync.Once
}

func newWsConn(c *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:     ulid.Make().String(),
		conn:   c,
		send:   make(chan Message, buffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(evt realtime.Event) error {
	return c.enqueue(Message{Type: string(evt.Type()), Payload: evt})
}

func (c *wsConn) enqueue(msg Message) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		_ = c.Close()
		return errSlowConsumer
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) write(msg Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
