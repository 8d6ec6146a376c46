package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/gemchat/backend/internal/handler/apierror"
	"github.com/zhouzirui/gemchat/backend/internal/middleware"
	"github.com/zhouzirui/gemchat/backend/internal/observability"
	"github.com/zhouzirui/gemchat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

const (
	writeTimeout = 10 * time.Second
	readLimit    = 64 << 10
)

// 帧类型
const (
	TypeChat  = "chat"
	TypeReply = "reply"
	TypeError = "error"
	TypePing  = "ping"
	TypePong  = "pong"
)

// WebSocketHandler 通过 WebSocket 提供与 POST /api/chat 相同的对话能力
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	verifier middleware.TokenVerifier
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatService.Service, verifier middleware.TokenVerifier) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc:  chatSvc,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// InboundFrame is a client frame.
type InboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// OutboundFrame is a server frame.
type OutboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
}

// 浏览器无法为 WebSocket 设置请求头，因此也接受 ?token= 查询参数
func requestToken(r *http.Request) string {
	if token := middleware.BearerToken(r); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// handleWebSocket 鉴权后升级连接并循环处理帧
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Verify(requestToken(r))
	if err != nil {
		status, message := apierror.Resolve(err)
		utils.RespondError(w, status, message)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		observability.LoggerFromContext(r.Context()).Warn("[ws] upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	h.serve(r.Context(), conn, identity)
}

func (h *WebSocketHandler) serve(ctx context.Context, conn *websocket.Conn, identity auth.Identity) {
	logger := observability.LoggerFromContext(ctx).With("user_id", identity.UserID)
	logger.Info("[ws] connection opened")

	for {
		var in InboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				logger.Warn("[ws] read failed", "error", err)
			}
			logger.Info("[ws] connection closed")
			return
		}

		out := h.dispatch(ctx, identity, in)
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(out); err != nil {
			logger.Warn("[ws] write failed", "error", err)
			return
		}
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, identity auth.Identity, in InboundFrame) OutboundFrame {
	switch in.Type {
	case TypePing:
		return OutboundFrame{Type: TypePong}
	case TypeChat:
		reply, err := h.chatSvc.Send(ctx, identity.UserID, in.SessionID, in.Message)
		if err != nil {
			status, message := apierror.Resolve(err)
			if status >= http.StatusInternalServerError {
				observability.LoggerFromContext(ctx).Error("[ws] chat failed", "error", err)
			}
			return OutboundFrame{Type: TypeError, SessionID: in.SessionID, Error: message}
		}
		return OutboundFrame{Type: TypeReply, SessionID: in.SessionID, Reply: reply}
	default:
		return OutboundFrame{Type: TypeError, Error: "unknown frame type"}
	}
}
