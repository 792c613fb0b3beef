package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HsiangNianian/framebridge/internal/protocol"
	"github.com/HsiangNianian/framebridge/internal/request"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrConnClosed = errors.New("frame connection closed")

// frameConn is one child frame connection. After the frame registers it
// serves as the component's channel.
type frameConn struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	frameID string
	pending map[string]chan protocol.Response
	closed  bool
	done    chan struct{}
}

func newFrameConn(conn *websocket.Conn, logger *zap.Logger) *frameConn {
	return &frameConn{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan protocol.Response),
		done:    make(chan struct{}),
	}
}

func (c *frameConn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *frameConn) RestRequest(ctx context.Context, req request.Descriptor) (protocol.Response, error) {
	return c.call(ctx, protocol.TypeRest, req)
}

func (c *frameConn) FetchRequest(ctx context.Context, req request.Descriptor) (protocol.Response, error) {
	return c.call(ctx, protocol.TypeFetch, req)
}

func (c *frameConn) call(ctx context.Context, typ string, req request.Descriptor) (protocol.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	msgID := uuid.NewString()
	wait := make(chan protocol.Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Response{}, ErrConnClosed
	}
	c.pending[msgID] = wait
	frameID := c.frameID
	c.mu.Unlock()

	env := protocol.Envelope{
		MsgID:     msgID,
		Type:      typ,
		FrameID:   frameID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	if err := c.WriteJSON(env); err != nil {
		c.forget(msgID)
		return protocol.Response{}, fmt.Errorf("send %s request: %w", typ, err)
	}
	logEvent(c.logger, "send host->frame", env)

	select {
	case resp := <-wait:
		return resp, nil
	case <-c.done:
		return protocol.Response{}, ErrConnClosed
	case <-ctx.Done():
		c.forget(msgID)
		return protocol.Response{}, ctx.Err()
	}
}

func (c *frameConn) forget(msgID string) {
	c.mu.Lock()
	delete(c.pending, msgID)
	c.mu.Unlock()
}

// deliver hands a response envelope to the call waiting for it.
func (c *frameConn) deliver(env protocol.Envelope) error {
	var resp protocol.Response
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		return fmt.Errorf("decode response %s: %w", env.MsgID, err)
	}

	c.mu.Lock()
	wait, ok := c.pending[env.MsgID]
	delete(c.pending, env.MsgID)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending request for msg_id %s", env.MsgID)
	}
	wait <- resp
	return nil
}

func (c *frameConn) setFrameID(id string) {
	c.mu.Lock()
	c.frameID = id
	c.mu.Unlock()
}

func (c *frameConn) FrameID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameID
}

// close fails every pending and future call with ErrConnClosed.
func (c *frameConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = make(map[string]chan protocol.Response)
	close(c.done)
	c.mu.Unlock()
	_ = c.conn.Close()
}
