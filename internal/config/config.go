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

	"github.com/agusgarcia3007/learnbase/backend/internal/model/user"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server       ServerConfig
	AI           AIConfig
	Agent        AgentConfig
	Store        StoreConfig
	Conversation ConversationConfig
	Auth         AuthConfig
	Audit        AuditConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	agentCfg, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	conversation, err := loadConversationConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	audit, err := loadAuditConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:       server,
		AI:           ai,
		Agent:        agentCfg,
		Store:        storeCfg,
		Conversation: conversation,
		Auth:         auth,
		Audit:        audit,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := parseListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"})

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// AgentConfig 描述课程创作代理的行为。
type AgentConfig struct {
	MaxSteps            int
	HistoryLimit        int
	RequireConfirmation bool
}

func loadAgentConfig() (AgentConfig, error) {
	cfg := AgentConfig{MaxSteps: 10, HistoryLimit: 20}

	maxSteps, err := parseOptionalIntEnv("AGENT_MAX_STEPS")
	if err != nil {
		return AgentConfig{}, err
	}
	if maxSteps != nil {
		if *maxSteps < 1 {
			return AgentConfig{}, fmt.Errorf("AGENT_MAX_STEPS must be positive, got %d", *maxSteps)
		}
		cfg.MaxSteps = *maxSteps
	}

	history, err := parseOptionalIntEnv("AGENT_HISTORY_LIMIT")
	if err != nil {
		return AgentConfig{}, err
	}
	if history != nil {
		// 0 表示不截断历史
		if *history < 0 {
			cfg.HistoryLimit = 0
		} else {
			cfg.HistoryLimit = *history
		}
	}

	cfg.RequireConfirmation, err = parseBoolEnv("AGENT_REQUIRE_CONFIRMATION", true)
	if err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// StoreConfig 描述内容目录的存储。
type StoreConfig struct {
	Driver string
	DBPath string
}

func loadStoreConfig() (StoreConfig, error) {
	cfg := StoreConfig{
		Driver: strings.ToLower(getEnvOrDefault("STORE_DRIVER", "memory")),
		DBPath: getEnvOrDefault("DB_PATH", "data/catalog.db"),
	}
	switch cfg.Driver {
	case "memory", "sqlite":
		return cfg, nil
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", cfg.Driver)
	}
}

// ConversationConfig 描述会话确认状态的存储。
type ConversationConfig struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

func loadConversationConfig() (ConversationConfig, error) {
	ttl, err := parseDurationEnv("CONVERSATION_TTL", 24*time.Hour)
	if err != nil {
		return ConversationConfig{}, err
	}

	db := 0
	if override, err := parseOptionalIntEnv("REDIS_DB"); err != nil {
		return ConversationConfig{}, err
	} else if override != nil {
		db = *override
	}

	cfg := ConversationConfig{
		Driver:        strings.ToLower(getEnvOrDefault("CONVERSATION_DRIVER", "memory")),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       db,
		TTL:           ttl,
	}
	switch cfg.Driver {
	case "memory", "redis":
		return cfg, nil
	default:
		return ConversationConfig{}, fmt.Errorf("invalid CONVERSATION_DRIVER value %q", cfg.Driver)
	}
}

// AuthConfig 描述静态令牌表。
type AuthConfig struct {
	Tokens map[string]user.Principal
}

func loadAuthConfig() (AuthConfig, error) {
	tokens, err := ParseTokens(os.Getenv("AUTH_TOKENS"))
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{Tokens: tokens}, nil
}

// ParseTokens 解析 "token=user:tenant:role,..." 格式的令牌表。
func ParseTokens(raw string) (map[string]user.Principal, error) {
	tokens := make(map[string]user.Principal)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		token, identity, ok := strings.Cut(entry, "=")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			return nil, fmt.Errorf("invalid AUTH_TOKENS entry %q", entry)
		}
		parts := strings.Split(identity, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid AUTH_TOKENS identity for token %q: want user:tenant:role", token)
		}

		p := user.Principal{
			UserID:   strings.TrimSpace(parts[0]),
			TenantID: strings.TrimSpace(parts[1]),
			Role:     user.Role(strings.ToLower(strings.TrimSpace(parts[2]))),
		}
		if p.UserID == "" || p.TenantID == "" {
			return nil, fmt.Errorf("invalid AUTH_TOKENS identity for token %q: user and tenant are required", token)
		}
		switch p.Role {
		case user.RoleOwner, user.RoleAdmin, user.RoleInstructor, user.RoleStudent:
		default:
			return nil, fmt.Errorf("invalid AUTH_TOKENS role %q", p.Role)
		}
		if _, dup := tokens[token]; dup {
			return nil, fmt.Errorf("duplicate AUTH_TOKENS token %q", token)
		}
		tokens[token] = p
	}
	return tokens, nil
}

// AuditConfig 描述工具调用审计日志。
type AuditConfig struct {
	Enabled      bool
	Dir          string
	QueueSize    int
	MaxOpenFiles int
}

func loadAuditConfig() (AuditConfig, error) {
	enabled, err := parseBoolEnv("AUDIT_ENABLED", false)
	if err != nil {
		return AuditConfig{}, err
	}

	queue := 256
	if override, err := parseOptionalIntEnv("AUDIT_QUEUE_SIZE"); err != nil {
		return AuditConfig{}, err
	} else if override != nil && *override > 0 {
		queue = *override
	}

	maxOpen := 64
	if override, err := parseOptionalIntEnv("AUDIT_MAX_OPEN_FILES"); err != nil {
		return AuditConfig{}, err
	} else if override != nil && *override > 0 {
		maxOpen = *override
	}

	return AuditConfig{
		Enabled:      enabled,
		Dir:          getEnvOrDefault("AUDIT_DIR", "data/audit"),
		QueueSize:    queue,
		MaxOpenFiles: maxOpen,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
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
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
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
