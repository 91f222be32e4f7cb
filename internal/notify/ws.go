package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/logging"
)

// Client message types.
const (
	TypeApprovalDecision = "approval_decision"
	TypeAck              = "ack"
	TypeError            = "error"
)

// ClientMessage is sent by subscribers over the socket.
type ClientMessage struct {
	Type       string `json:"type"`
	ApprovalID string `json:"approval_id,omitempty"`
	Decision   string `json:"decision,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
}

// ServerMessage acknowledges or rejects a client message.
type ServerMessage struct {
	Type       string `json:"type"`
	Ts         int64  `json:"ts"`
	ApprovalID string `json:"approval_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// DecisionFunc applies an approval decision received over the socket.
type DecisionFunc func(ctx context.Context, userID, approvalID, decision, feedback string) error

// WSConfig tunes socket timeouts.
type WSConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// WSServer upgrades HTTP requests to notification streams.
type WSServer struct {
	cfg        WSConfig
	hub        *Hub
	onDecision DecisionFunc
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewWSServer creates a websocket server. onDecision may be nil, in which case
// decisions sent over the socket are refused.
func NewWSServer(h *Hub, onDecision DecisionFunc, logger *zap.Logger) *WSServer {
	return &WSServer{
		cfg: WSConfig{
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 64 * 1024,
		},
		hub:        h,
		onDecision: onDecision,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logging.OrNop(logger),
	}
}

// HandleWebSocket handles GET /v1/ws?user_id=.
func (s *WSServer) HandleWebSocket(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	conn := s.hub.NewConnection(ws, userID)
	s.hub.Register(conn)
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

func (s *WSServer) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	_ = conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}
		s.handleMessage(conn, message)
	}
}

func (s *WSServer) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WSServer) handleMessage(conn *Connection, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(conn, ServerMessage{Type: TypeError, Message: "invalid JSON message"})
		return
	}
	if msg.Type != TypeApprovalDecision {
		s.reply(conn, ServerMessage{Type: TypeError, Message: "unknown message type: " + msg.Type})
		return
	}
	if s.onDecision == nil {
		s.reply(conn, ServerMessage{Type: TypeError, ApprovalID: msg.ApprovalID, Message: "decisions are not accepted on this socket"})
		return
	}
	decision := normalizeDecision(msg.Decision)
	if msg.ApprovalID == "" || decision == "" {
		s.reply(conn, ServerMessage{Type: TypeError, ApprovalID: msg.ApprovalID, Message: "approval_id and decision (approve|reject) are required"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.onDecision(ctx, conn.UserID, msg.ApprovalID, decision, msg.Feedback); err != nil {
			s.reply(conn, ServerMessage{Type: TypeError, ApprovalID: msg.ApprovalID, Message: err.Error()})
			return
		}
		s.reply(conn, ServerMessage{Type: TypeAck, ApprovalID: msg.ApprovalID, Message: decision})
	}()
}

func (s *WSServer) reply(conn *Connection, msg ServerMessage) {
	msg.Ts = time.Now().UnixMilli()
	if err := s.hub.SendJSONToConnection(conn, msg); err != nil {
		s.logger.Warn("failed to reply on websocket", zap.String("conn_id", conn.ID), zap.Error(err))
	}
}

func normalizeDecision(decision string) string {
	switch strings.ToLower(strings.TrimSpace(decision)) {
	case "approve", "approved":
		return "approve"
	case "reject", "rejected":
		return "reject"
	default:
		return ""
	}
}
