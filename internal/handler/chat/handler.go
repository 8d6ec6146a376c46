package chat

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/gemchat/backend/internal/handler/apierror"
	"github.com/zhouzirui/gemchat/backend/internal/middleware"
	"github.com/zhouzirui/gemchat/backend/internal/observability"
	chatService "github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	verifier middleware.TokenVerifier
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, verifier middleware.TokenVerifier) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		verifier: verifier,
	}
}

// RegisterRoutes 注册聊天相关的路由，全部需要 bearer 令牌
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.verifier))
		r.Post("/chat", h.handleChat)
		r.Get("/history/{sessionID}", h.handleHistory)
		r.Get("/recent", h.handleRecent)
	})
}

type historyItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// handleChat 发送消息并返回模型回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, _ := middleware.IdentityFromContext(r.Context())
	reply, err := h.chatSvc.Send(r.Context(), identity.UserID, payload.SessionID, payload.Message)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// handleHistory 按时间正序返回会话全部消息
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	identity, _ := middleware.IdentityFromContext(r.Context())

	msgs, err := h.chatSvc.History(r.Context(), identity.UserID, sessionID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	items := make([]historyItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, historyItem{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt})
	}
	utils.RespondJSON(w, http.StatusOK, map[string][]historyItem{"messages": items})
}

// handleRecent 返回最近活跃的会话 ID
func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	ids, err := h.chatSvc.RecentSessions(r.Context(), identity.UserID, chatService.MaxRecentSessions)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// sessionIDParam 返回解码后的会话 ID。chi 在 RawPath 存在时按转义后的路径匹配，
// 例如 "work%2Fnotes"，此时需要再解码一次
func sessionIDParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "sessionID")
	if r.URL.RawPath == "" {
		return raw, nil
	}
	return url.PathUnescape(raw)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := apierror.Resolve(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("[chat] request failed", "path", r.URL.Path, "error", err)
	}
	utils.RespondError(w, status, message)
}
