package quiz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrChannelFull   = errors.New("channel outbound queue full")
)

// Client is a websocket-backed Channel.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan Outbound
	flush  chan struct{}
	closed chan struct{}

	flushOnce sync.Once
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, buffer int) *Client {
	if buffer < 1 {
		buffer = 1
	}

	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan Outbound, buffer),
		flush:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues msg without blocking.
func (c *Client) Send(msg Outbound) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return ErrChannelClosed
	default:
		return ErrChannelFull
	}
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

// closeAfterFlush writes whatever is queued, then closes.
func (c *Client) closeAfterFlush() {
	c.flushOnce.Do(func() { close(c.flush) })
}

// Serve attaches c to code as name and pumps messages until the socket
// closes. Attach failures are reported on the socket before closing it.
func (c *Client) Serve(ctx context.Context, co *Coordinator, code, name, ticket string) {
	go c.writePump()

	p, err := co.Attach(ctx, code, name, ticket, c)
	if err != nil {
		co.logf("GAMES: Channel %s rejected from %s/%s: %v", c.id, code, name, err)
		_ = c.Send(errorMessage(err))
		c.closeAfterFlush()
		return
	}

	c.readPump(ctx, co, p)
}

func (c *Client) readPump(ctx context.Context, co *Coordinator, p *Participant) {
	defer func() {
		co.Detach(ctx, p)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := DecodeInbound(raw)
		if err == nil {
			err = co.Handle(ctx, p, msg)
		}
		if err != nil {
			_ = c.Send(errorMessage(err))
		}
	}
}

func (c *Client) write(msg Outbound) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(Wire(msg))
}

func (c *Client) writePump() {
	defer c.Close()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		case <-c.flush:
			for {
				select {
				case msg := <-c.send:
					if err := c.write(msg); err != nil {
						return
					}
				default:
					_ = c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""),
						time.Now().Add(writeWait))
					return
				}
			}
		case <-c.closed:
			return
		}
	}
}
