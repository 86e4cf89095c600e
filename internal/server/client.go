package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// requestTimeout bounds one engine call made on behalf of a client.
const requestTimeout = 10 * time.Second

// Client is one websocket connection bound to a seat in a game.
type Client struct {
	id       string
	gameID   string
	playerID string
	hub      *Hub
	conn     *websocket.Conn
	outbox   chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	lastVersion int64
}

func newClient(h *Hub, conn *websocket.Conn, gameID, playerID string) *Client {
	return &Client{
		id:       uuid.NewString(),
		gameID:   gameID,
		playerID: playerID,
		hub:      h,
		conn:     conn,
		outbox:   make(chan []byte, h.cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

// advance records v as the newest version pushed to the client and reports
// whether it is newer than anything pushed before.
func (c *Client) advance(v int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v <= c.lastVersion {
		return false
	}
	c.lastVersion = v
	return true
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// send queues f. A client whose buffer is full is disconnected.
func (c *Client) send(f ServerFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.outbox <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.hub.logger.Warn("websocket send buffer full, disconnecting",
			zap.String("client_id", c.id),
			zap.String("game_id", c.gameID),
		)
		c.close()
		return ErrSendBufferFull
	}
}

func (c *Client) sendData(frameType, requestID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", frameType, err)
	}
	return c.send(ServerFrame{Type: frameType, RequestID: requestID, Data: data})
}

func (c *Client) sendError(requestID string, err error) {
	code := CodeFromError(err)
	msg := err.Error()
	if code == codes.Internal {
		msg = "internal error"
	}
	c.sendFrameErr(requestID, code.String(), msg)
}

func (c *Client) sendFrameErr(requestID, code, msg string) {
	_ = c.send(ServerFrame{Type: FrameError, RequestID: requestID, Error: &FrameErr{Code: code, Message: msg}})
}

// readPump decodes frames and runs them one at a time.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error",
					zap.String("client_id", c.id),
					zap.Error(err),
				)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))

		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.sendFrameErr("", "InvalidArgument", "malformed frame")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		c.hub.handle(ctx, c, f)
		cancel()
	}
}

// writePump owns all writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outbox:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
