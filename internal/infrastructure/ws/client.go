package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 32 << 10
)

var (
	ErrClientClosed = errors.New("websocket client closed")
	ErrClientSlow   = errors.New("websocket client buffer full")
)

// Client is one WebSocket connection bound to an actor and a project.
// It doubles as the effects sink for that actor's sync session.
type Client struct {
	conn      *connWrapper
	send      chan *WSMessage
	ID        string
	ProjectID string
	ActorID   string
	logger    logging.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(conn *websocket.Conn, projectID, actorID string, buffer int, logger logging.Logger) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		conn:      newConnWrapper(conn),
		send:      make(chan *WSMessage, buffer),
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ActorID:   actorID,
		logger:    logger,
		closed:    make(chan struct{}),
	}
}

// Send queues msg without blocking.
func (c *Client) Send(msg *WSMessage) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return ErrClientClosed
	default:
		c.logger.Warn(logging.WebSocket, logging.Session, "client buffer full, dropping message", c.extra(map[logging.ExtraKey]any{
			"type": msg.Type,
		}))
		return ErrClientSlow
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *Client) Done() <-chan struct{} {
	return c.closed
}

func (c *Client) Refetch(_ context.Context, list domain.ListKind) error {
	return c.Send(NewRefetch(c.ProjectID, list))
}

func (c *Client) ApplyFieldUpdate(_ context.Context, update domain.FieldUpdate) error {
	return c.Send(NewFieldUpdate(c.ProjectID, update))
}

func (c *Client) Notify(_ context.Context, n domain.Notification) error {
	return c.Send(NewNotification(n))
}

// ReadPump hands every well-formed inbound message to handle until the
// connection fails, then closes the client.
func (c *Client) ReadPump(handle func(InboundMessage)) {
	defer c.Close()

	c.conn.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.conn.SetPongHandler(func(string) error {
		return c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn(logging.WebSocket, logging.Session, "websocket read failed", c.extra(map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				}))
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			_ = c.Send(NewError(c.ProjectID, "malformed message"))
			continue
		}
		handle(msg)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg, writeWait); err != nil {
				c.logger.Warn(logging.WebSocket, logging.Session, "websocket write failed", c.extra(map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				}))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, writeWait); err != nil {
				return
			}
		case <-c.closed:
			_ = c.conn.WriteControl(websocket.CloseMessage, writeWait)
			return
		}
	}
}

func (c *Client) extra(more map[logging.ExtraKey]any) map[logging.ExtraKey]any {
	out := map[logging.ExtraKey]any{
		logging.ProjectID: c.ProjectID,
		logging.ActorID:   c.ActorID,
		"client":          c.ID,
	}
	for k, v := range more {
		out[k] = v
	}
	return out
}
