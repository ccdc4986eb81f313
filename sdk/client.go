package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/nothanks/protocol"
)

const (
	writeWait = 10 * time.Second
	eventBuf  = 64
)

var ErrClosed = errors.New("client closed")

// RejectedError is returned when the server answers a request with a failed
// ack.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "rejected: " + e.Reason
}

// Client is a bot connection to the arena websocket. Acks are correlated to
// their requests by request id; every other message is delivered on Events.
type Client struct {
	conn   *websocket.Conn
	logger *log.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan *protocol.Message
	err     error

	events    chan *protocol.Message
	done      chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the arena endpoint, e.g. ws://localhost:3000/bots.
func Dial(ctx context.Context, serverURL string, logger *log.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", serverURL, err)
	}
	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan *protocol.Message),
		events:  make(chan *protocol.Message, eventBuf),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers pushed server messages. It is closed when the connection
// drops, and must be drained or the reader stalls.
func (c *Client) Events() <-chan *protocol.Message {
	return c.events
}

// Err reports why the connection ended, once Events has been closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Register claims name and waits for the ack.
func (c *Client) Register(ctx context.Context, name string) (protocol.RegisterAck, error) {
	var ack protocol.RegisterAck
	if err := c.request(ctx, protocol.TypeRegisterBot, protocol.RegisterBot{Name: name}, &ack); err != nil {
		return ack, err
	}
	if !ack.OK {
		return ack, &RejectedError{Reason: ack.Error}
	}
	return ack, nil
}

// Enqueue asks to be matched. The server requeues bots after every match, so
// this is only needed after registering.
func (c *Client) Enqueue() error {
	return c.write(protocol.TypeEnqueue, "", nil)
}

// Act answers a turn prompt.
func (c *Client) Act(matchID string, action Action) error {
	return c.write(protocol.TypeBotAction, "", protocol.BotAction{MatchID: matchID, Action: string(action)})
}

// Close sends a close frame and drops the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	var err error
	c.closeOnce.Do(func() {
		close(c.quit)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) request(ctx context.Context, t protocol.Type, payload, reply any) error {
	id := fmt.Sprintf("req-%d", c.nextID.Add(1))
	ch := make(chan *protocol.Message, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(t, id, payload); err != nil {
		return err
	}

	select {
	case msg := <-ch:
		return msg.Decode(reply)
	case <-c.done:
		// The server closes right after a failed ack.
		select {
		case msg := <-ch:
			return msg.Decode(reply)
		default:
		}
		if err := c.Err(); err != nil {
			return err
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(t protocol.Type, requestID string, payload any) error {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		return err
	}
	msg.RequestID = requestID

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", t, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		close(c.events)
	}()

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Debug("Connection closed", "error", err)
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}

		if msg.Type == protocol.TypeAck && msg.RequestID != "" {
			c.mu.Lock()
			ch, ok := c.pending[msg.RequestID]
			c.mu.Unlock()
			if ok {
				ch <- &msg
				continue
			}
		}

		select {
		case c.events <- &msg:
		case <-c.quit:
			return
		}
	}
}
