package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/HsiangNianian/framebridge/internal/channel"
	"github.com/HsiangNianian/framebridge/internal/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub accepts child frame connections. The first frame to register becomes
// the channel held by holder.
type Hub struct {
	holder    *channel.Holder
	authToken string
	logger    *zap.Logger

	upgrader websocket.Upgrader

	frameMu sync.RWMutex
	frames  map[*frameConn]struct{}
}

type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCheckOrigin restricts which origins may open a frame connection.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

func NewHub(holder *channel.Holder, authToken string, options ...Option) *Hub {
	h := &Hub{
		holder:    holder,
		authToken: authToken,
		logger:    zap.NewNop(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		frames: make(map[*frameConn]struct{}),
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

func (h *Hub) HandleFrame(w http.ResponseWriter, r *http.Request) {
	if h.authToken != "" && r.Header.Get("Authorization") != "Bearer "+h.authToken {
		h.logger.Warn("frame unauthorized", zap.String("remote", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade frame ws failed", zap.Error(err))
		return
	}
	fc := newFrameConn(conn, h.logger)

	h.frameMu.Lock()
	h.frames[fc] = struct{}{}
	frameCount := len(h.frames)
	h.frameMu.Unlock()

	h.logger.Info("frame connected", zap.String("remote", r.RemoteAddr), zap.Int("active_frames", frameCount))
	h.readFrame(fc)
}

// Frames returns the number of open frame connections.
func (h *Hub) Frames() int {
	h.frameMu.RLock()
	defer h.frameMu.RUnlock()
	return len(h.frames)
}

func (h *Hub) readFrame(fc *frameConn) {
	defer func() {
		h.frameMu.Lock()
		delete(h.frames, fc)
		frameCount := len(h.frames)
		h.frameMu.Unlock()
		fc.close()
		h.logger.Info("frame disconnected", zap.String("frame_id", fc.FrameID()), zap.Int("active_frames", frameCount))
	}()

	for {
		var env protocol.Envelope
		if err := fc.conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("recv frame->host failed", zap.Error(err))
			}
			return
		}
		logEvent(h.logger, "recv frame->host", env)

		var err error
		switch env.Type {
		case protocol.TypeRegister:
			err = h.handleRegister(fc, env)
		case protocol.TypeResponse:
			err = fc.deliver(env)
		default:
			err = errors.New("unsupported envelope type " + env.Type)
		}
		if err != nil {
			h.logger.Warn("handle frame envelope failed", zap.String("type", env.Type), zap.String("msg_id", env.MsgID), zap.Error(err))
			errEnv := protocol.Envelope{
				MsgID:     env.MsgID,
				TraceID:   env.TraceID,
				Type:      protocol.TypeError,
				FrameID:   env.FrameID,
				Timestamp: time.Now().UnixMilli(),
				Payload:   mustJSON(protocol.ErrorPayload{Code: "ENVELOPE_REJECTED", Message: err.Error()}),
			}
			if werr := fc.WriteJSON(errEnv); werr != nil {
				h.logger.Warn("send host->frame(error) failed", zap.Error(werr))
			}
		}
	}
}

// handleRegister completes the handshake. Only the first registered frame is
// kept as the channel; later ones are told they were not accepted.
func (h *Hub) handleRegister(fc *frameConn, env protocol.Envelope) error {
	var p protocol.RegisterPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
	}
	if p.FrameID == "" {
		p.FrameID = env.FrameID
	}
	fc.setFrameID(p.FrameID)

	accepted := h.holder.Set(fc)
	ack := protocol.RegisterAckPayload{FrameID: p.FrameID, Accepted: accepted}
	if accepted {
		h.logger.Info("frame channel established", zap.String("frame_id", p.FrameID), zap.String("origin", p.Origin))
	} else {
		ack.Message = "channel already established"
		h.logger.Warn("frame registration ignored", zap.String("frame_id", p.FrameID))
	}

	ackEnv := protocol.Envelope{
		MsgID:     env.MsgID,
		TraceID:   env.TraceID,
		Type:      protocol.TypeRegisterAck,
		FrameID:   p.FrameID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(ack),
	}
	logEvent(h.logger, "send host->frame(register_ack)", ackEnv)
	return fc.WriteJSON(ackEnv)
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func logEvent(l *zap.Logger, prefix string, env protocol.Envelope) {
	l.Debug(prefix,
		zap.String("type", env.Type),
		zap.String("msg_id", env.MsgID),
		zap.String("trace_id", env.TraceID),
		zap.String("frame_id", env.FrameID),
		zap.Int64("timestamp", env.Timestamp))
}
