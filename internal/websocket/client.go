package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"groupchat/internal/chat"
	"groupchat/internal/metrics"
	"groupchat/internal/models"
	"groupchat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 32 * 1024
)

// Engine is the part of chat.Engine a socket drives.
type Engine interface {
	Join(ctx context.Context, connID string, userID int, name string) error
	Send(ctx context.Context, connID, body string) (models.Message, error)
	Typing(ctx context.Context, connID string) error
	History(ctx context.Context, connID string) ([]models.Message, error)
	Disconnect(ctx context.Context, connID string) error
	Reject(ctx context.Context, connID string, cause error) error
}

// Limiter throttles message frames per user. Nil disables throttling.
type Limiter interface {
	Allow(ctx context.Context, userID int) (bool, error)
}

type Client struct {
	conn    *websocket.Conn
	engine  Engine
	session *chat.Connection
	user    *models.User
	limiter Limiter
}

// NewClient pairs an upgraded socket with the engine connection registered
// for it.
func NewClient(conn *websocket.Conn, engine Engine, session *chat.Connection, user *models.User, limiter Limiter) *Client {
	return &Client{
		conn:    conn,
		engine:  engine,
		session: session,
		user:    user,
		limiter: limiter,
	}
}

func (c *Client) ReadPump() {
	defer func() {
		err := c.engine.Disconnect(context.Background(), c.session.ID())
		switch {
		case err == nil, errors.Is(err, chat.ErrUnknownConnection):
			// The writer closes the socket once the queue is closed.
		default:
			logger.Error("Error disconnecting %s: %v", c.session.ID(), err)
			c.conn.Close()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	// Set read deadline and pong handler for connection health
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		if err := c.dispatch(context.Background(), message); err != nil {
			logger.Warn("Closing connection %s: %v", c.session.ID(), err)
			break
		}
	}
}

// dispatch routes one client frame to the engine. Engine-side rejections
// already reached the client as error frames; only protocol violations are
// returned.
func (c *Client) dispatch(ctx context.Context, raw []byte) error {
	var frame models.ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return c.reject(ctx, chat.ErrMalformedFrame)
	}

	var err error
	switch frame.Type {
	case models.MessageTypeJoin:
		name := frame.Name
		if name == "" {
			name = c.user.Nickname
		}
		err = c.engine.Join(ctx, c.session.ID(), c.user.ID, name)
	case models.MessageTypeSend:
		if !c.allow(ctx) {
			metrics.RateLimited.Inc()
			err = c.engine.Reject(ctx, c.session.ID(), chat.ErrRateLimited)
			break
		}
		_, err = c.engine.Send(ctx, c.session.ID(), frame.Text)
	case models.MessageTypeTyping:
		err = c.engine.Typing(ctx, c.session.ID())
	case models.MessageTypeHistory:
		_, err = c.engine.History(ctx, c.session.ID())
	default:
		return c.reject(ctx, chat.ErrMalformedFrame)
	}

	if err != nil {
		logger.Debug("Frame %q from %s rejected: %v", frame.Type, c.session.ID(), err)
	}
	if errors.Is(err, chat.ErrEngineStopped) {
		return err
	}
	return nil
}

// reject queues an error frame ahead of closing the connection.
func (c *Client) reject(ctx context.Context, cause error) error {
	if err := c.engine.Reject(ctx, c.session.ID(), cause); err != nil {
		logger.Debug("Could not report %v to %s: %v", cause, c.session.ID(), err)
	}
	return cause
}

func (c *Client) allow(ctx context.Context) bool {
	if c.limiter == nil {
		return true
	}
	ok, err := c.limiter.Allow(ctx, c.user.ID)
	if err != nil {
		logger.Debug("Rate limiter unavailable: %v", err)
	}
	return ok
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	outbound := c.session.Outbound()
	for {
		select {
		case msg, ok := <-outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
