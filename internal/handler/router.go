package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authHandler "github.com/zhouzirui/gemchat/backend/internal/handler/auth"
	chatHandler "github.com/zhouzirui/gemchat/backend/internal/handler/chat"
	"github.com/zhouzirui/gemchat/backend/internal/handler/realtime"
	middlewarePkg "github.com/zhouzirui/gemchat/backend/internal/middleware"
	"github.com/zhouzirui/gemchat/backend/internal/observability"
	authService "github.com/zhouzirui/gemchat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

// Deps 路由所需的服务
type Deps struct {
	Auth          *authService.Service
	Chat          *chatService.Service
	AllowedOrigin string
	// StaticDir 存在时作为前端静态资源目录挂载到 /
	StaticDir string
	// Store 非空时 /health 会附带数据库连通状态
	Store Pinger
}

// Pinger reports whether the persistence backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(nil, "token"))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigin))

	r.Get("/health", healthHandler(deps.Store))

	tokens := deps.Auth.Tokens()

	r.Route("/api", func(api chi.Router) {
		authHandler.New(deps.Auth).RegisterRoutes(api)
		chatHandler.New(deps.Chat, tokens).RegisterRoutes(api)
		realtime.NewWebSocketHandler(deps.Chat, tokens).RegisterRoutes(api)
	})

	if dir := deps.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			observability.Logger().Warn("static directory not found, skipping", "dir", dir)
		}
	}

	return r
}

// healthHandler 始终返回 200；数据库不可用时服务仍以非持久化模式运行
func healthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if pinger != nil {
			body["database"] = "connected"
			if err := pinger.Ping(r.Context()); err != nil {
				body["database"] = "unavailable"
			}
		}
		utils.RespondJSON(w, http.StatusOK, body)
	}
}
