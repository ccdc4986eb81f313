package server

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/nothanks/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	sendBuffer = 256
)

var ErrConnectionClosed = errors.New("connection closed")

// handler reacts to the messages of one connection. handle and closed are
// only ever called from the connection's read pump.
type handler interface {
	handle(c *Connection, msg *protocol.Message)
	closed(c *Connection)
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn    *websocket.Conn
	handler handler
	logger  *log.Logger

	mu        sync.RWMutex
	send      chan *protocol.Message
	closing   bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, h handler, logger *log.Logger) *Connection {
	return &Connection{
		conn:    conn,
		handler: h,
		logger:  logger.WithPrefix("conn").With("remote", conn.RemoteAddr().String()),
		send:    make(chan *protocol.Message, sendBuffer),
		done:    make(chan struct{}),
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has been torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close flushes queued messages, sends a close frame and drops the socket.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		close(c.send)
		c.mu.Unlock()
	})
	return nil
}

// SendMessage queues msg without blocking. A client that lets its buffer
// fill up is disconnected.
func (c *Connection) SendMessage(msg *protocol.Message) error {
	c.mu.RLock()
	if c.closing {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		c.mu.RUnlock()
		return nil
	default:
	}
	c.mu.RUnlock()

	c.logger.Warn("Connection send buffer full, closing connection")
	_ = c.Close()
	return ErrConnectionClosed
}

// Send wraps payload in an envelope and queues it.
func (c *Connection) Send(t protocol.Type, payload any) error {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// Reply queues an ack for requestID.
func (c *Connection) Reply(requestID string, payload any) error {
	msg, err := protocol.NewReply(protocol.TypeAck, requestID, payload)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

func (c *Connection) sendError(code, message string) {
	if err := c.Send(protocol.TypeError, protocol.Error{Code: code, Message: message}); err != nil {
		c.logger.Debug("Failed to send error", "code", code, "error", err)
	}
}

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() {
		_ = c.Close()
		c.handler.closed(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.logger.Debug("Received message", "type", msg.Type)
		c.handler.handle(c, &msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
