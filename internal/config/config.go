package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// DefaultJWTSecret 仅用于本地开发，生产环境必须通过 JWT_SECRET 覆盖。
const DefaultJWTSecret = "change-me-in-production"

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Store  StoreConfig
	AI     AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Auth: auth, Store: store, AI: ai}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr              string
	StaticDir         string
	AllowedOrigin     string
	LogLevel          string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	var addr string
	switch {
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		addr = port
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		addr = ":" + port
	}

	return ServerConfig{
		Addr:              addr,
		StaticDir:         getEnvOrDefault("STATIC_DIR", "public"),
		AllowedOrigin:     getEnvOrDefault("CORS_ALLOWED_ORIGIN", "*"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}, nil
}

// AuthConfig 描述令牌签发与密码哈希配置。
type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// UsesDefaultSecret 表示是否仍在使用开发用的默认密钥。
func (c AuthConfig) UsesDefaultSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := parseDurationEnv("TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}
	if ttl <= 0 {
		return AuthConfig{}, fmt.Errorf("invalid TOKEN_TTL value %q: must be positive", ttl)
	}

	cost := 10
	if override, err := parseOptionalIntEnv("BCRYPT_COST"); err != nil {
		return AuthConfig{}, err
	} else if override != nil {
		cost = *override
	}

	return AuthConfig{
		JWTSecret:  getEnvOrDefault("JWT_SECRET", DefaultJWTSecret),
		TokenTTL:   ttl,
		BcryptCost: cost,
	}, nil
}

// 支持的存储后端。
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// StoreConfig 描述会话与用户数据的存储后端。
type StoreConfig struct {
	Backend       string
	MongoURL      string
	MongoDatabase string
	PostgresDSN   string
}

// Persistent 表示所选后端是否具备连接信息；否则服务以非持久化模式运行。
func (c StoreConfig) Persistent() bool {
	switch c.Backend {
	case StoreMongo:
		return c.MongoURL != ""
	case StorePostgres:
		return c.PostgresDSN != ""
	case StoreMemory:
		return true
	default:
		return false
	}
}

func loadStoreConfig() (StoreConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreMongo))
	switch backend {
	case StoreMongo, StorePostgres, StoreMemory:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value %q", backend)
	}

	return StoreConfig{
		Backend:       backend,
		MongoURL:      strings.TrimSpace(os.Getenv("MONGODB_URL")),
		MongoDatabase: getEnvOrDefault("MONGODB_DATABASE", "gemchat"),
		PostgresDSN:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}, nil
}

// 支持的大模型提供方。
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	Temperature  float64
	MaxTokens    int
	HistoryLimit int
	SystemPrompt string

	GeminiAPIKey string
	GeminiModel  string

	ArkAPIKey  string
	ArkModel   string
	ArkBaseURL string
	ArkRegion  string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

// Enabled 表示当前提供方是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	case ProviderArk:
		return c.ArkAPIKey != "" && c.ArkModel != ""
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	default:
		return false
	}
}

// MissingKey 返回当前提供方缺失的环境变量名，用于错误提示。
func (c AIConfig) MissingKey() string {
	switch c.Provider {
	case ProviderArk:
		if c.ArkAPIKey == "" {
			return "ARK_API_KEY"
		}
		return "ARK_MODEL"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// NewChatModel 使用 Ark 配置创建一个 eino 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.ArkAPIKey == "" || c.ArkModel == "" {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，需要 ARK_API_KEY 与 ARK_MODEL")
	}

	temperature := float32(c.Temperature)
	maxTokens := c.MaxTokens

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		Model:       c.ArkModel,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini))
	switch provider {
	case ProviderGemini, ProviderArk, ProviderOpenAI:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature := 0.7
	if override, err := parseOptionalFloatEnv("AI_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	maxTokens := 512
	if override, err := parseOptionalIntEnv("AI_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}

	historyLimit := 20
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	return AIConfig{
		Provider:      provider,
		Temperature:   temperature,
		MaxTokens:     maxTokens,
		HistoryLimit:  historyLimit,
		SystemPrompt:  getEnvOrDefault("AI_SYSTEM_PROMPT", "You are a helpful, concise assistant."),
		GeminiAPIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:   getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		ArkAPIKey:     strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkModel:      strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:    getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:     getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
