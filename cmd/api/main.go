package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/gemchat/backend/internal/config"
	"github.com/zhouzirui/gemchat/backend/internal/handler"
	"github.com/zhouzirui/gemchat/backend/internal/observability"
	"github.com/zhouzirui/gemchat/backend/internal/service/ai"
	"github.com/zhouzirui/gemchat/backend/internal/service/auth"
	"github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/internal/store"
	"github.com/zhouzirui/gemchat/backend/internal/store/memory"
	"github.com/zhouzirui/gemchat/backend/internal/store/mongo"
	"github.com/zhouzirui/gemchat/backend/internal/store/nop"
	"github.com/zhouzirui/gemchat/backend/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := observability.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Printf("warning: %v, falling back to info", err)
	}
	observability.SetLogger(observability.New(os.Stdout, level))
	logger := observability.Logger()

	if cfg.Auth.UsesDefaultSecret() {
		logger.Warn("JWT_SECRET 未配置，正在使用开发用默认密钥")
	}

	st := openStore(ctx, cfg.Store, logger)

	completer, err := ai.NewCompleter(ctx, cfg.AI)
	if err != nil {
		logger.Warn("failed to initialize completion provider, chat will fail until fixed", "provider", cfg.AI.Provider, "error", err)
		completer = ai.Unconfigured{MissingKey: cfg.AI.MissingKey()}
	} else if !cfg.AI.Enabled() {
		logger.Warn("completion provider credentials missing, /api/chat will fail", "provider", cfg.AI.Provider, "missing", cfg.AI.MissingKey())
	} else {
		logger.Info("completion provider initialized", "provider", cfg.AI.Provider)
	}

	authSvc := auth.NewService(st, auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), cfg.Auth.BcryptCost)
	chatSvc := chat.NewService(st, completer, chat.Options{
		HistoryLimit: cfg.AI.HistoryLimit,
		SystemPrompt: cfg.AI.SystemPrompt,
		Params: ai.Params{
			Temperature:     float32(cfg.AI.Temperature),
			MaxOutputTokens: cfg.AI.MaxTokens,
		},
	})

	router := handler.NewRouter(handler.Deps{
		Auth:          authSvc,
		Chat:          chatSvc,
		AllowedOrigin: cfg.Server.AllowedOrigin,
		StaticDir:     cfg.Server.StaticDir,
		Store:         st,
	})

	startServer(ctx, cfg.Server, router)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := st.Close(closeCtx); err != nil {
		logger.Warn("failed to close store", "error", err)
	}
}

// openStore 按配置连接存储后端；连接信息缺失或连接失败时退化为非持久化模式
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) store.Store {
	if !cfg.Persistent() {
		logger.Warn("database connection string not set, running without persistence", "backend", cfg.Backend)
		return nop.New()
	}

	var (
		st  store.Store
		err error
	)
	switch cfg.Backend {
	case config.StoreMemory:
		logger.Info("using in-memory store, data is lost on restart")
		return memory.New()
	case config.StorePostgres:
		st, err = postgres.Open(ctx, cfg.PostgresDSN)
	default:
		st, err = mongo.Open(ctx, cfg.MongoURL, cfg.MongoDatabase)
	}
	if err != nil {
		logger.Error("failed to connect to database, running without persistence", "backend", cfg.Backend, "error", err)
		return nop.New()
	}

	logger.Info("database connected", "backend", cfg.Backend)
	return st
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: serverCfg.ReadHeaderTimeout,
		IdleTimeout:       serverCfg.IdleTimeout,
	}

	observability.Logger().Info("gemchat backend listening", "addr", addr)
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
