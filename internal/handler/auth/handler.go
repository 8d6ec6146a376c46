package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/gemchat/backend/internal/handler/apierror"
	"github.com/zhouzirui/gemchat/backend/internal/middleware"
	"github.com/zhouzirui/gemchat/backend/internal/model/user"
	"github.com/zhouzirui/gemchat/backend/internal/observability"
	authService "github.com/zhouzirui/gemchat/backend/internal/service/auth"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

// Handler 认证相关的HTTP处理器
type Handler struct {
	authSvc *authService.Service
}

// New 创建认证处理器
func New(authSvc *authService.Service) *Handler {
	return &Handler{authSvc: authSvc}
}

// RegisterRoutes 注册 /auth 下的路由，/auth/me 需要 bearer 令牌
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.handleSignup)
		r.Post("/signin", h.handleSignin)
		r.With(middleware.RequireAuth(h.authSvc.Tokens())).Get("/me", h.handleMe)
	})
}

type sessionResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    user.Profile `json:"user"`
}

// handleSignup 注册新用户
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.authSvc.Signup(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{
		Message: "User created successfully",
		Token:   session.Token,
		User:    session.User,
	})
}

// handleSignin 用户登录
func (h *Handler) handleSignin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.authSvc.Signin(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionResponse{
		Message: "Signin successful",
		Token:   session.Token,
		User:    session.User,
	})
}

// handleMe 返回当前令牌对应的用户
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	profile, err := h.authSvc.Me(r.Context(), identity.UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]user.Profile{"user": profile})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := apierror.Resolve(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("[auth] request failed", "path", r.URL.Path, "error", err)
	}
	utils.RespondError(w, status, message)
}
