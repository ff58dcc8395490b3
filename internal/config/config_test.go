package config

import (
	"testing"
	"time"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/user"
)

var configKeys = []string{
	"PORT", "CORS_ALLOWED_ORIGINS", "ARK_API_KEY", "Model", "AGENT_MAX_STEPS", "AGENT_HISTORY_LIMIT",
	"AGENT_REQUIRE_CONFIRMATION", "STORE_DRIVER", "DB_PATH", "CONVERSATION_DRIVER", "CONVERSATION_TTL",
	"REDIS_ADDR", "REDIS_DB", "AUTH_TOKENS", "AUDIT_ENABLED", "AUDIT_DIR", "AUDIT_QUEUE_SIZE", "AUDIT_MAX_OPEN_FILES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Agent.MaxSteps != 10 || cfg.Agent.HistoryLimit != 20 || !cfg.Agent.RequireConfirmation {
		t.Fatalf("unexpected agent defaults %+v", cfg.Agent)
	}
	if cfg.Store.Driver != "memory" || cfg.Conversation.Driver != "memory" {
		t.Fatalf("unexpected drivers %q %q", cfg.Store.Driver, cfg.Conversation.Driver)
	}
	if cfg.Conversation.TTL != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", cfg.Conversation.TTL)
	}
	if cfg.AI.Enabled() {
		t.Fatal("AI should be disabled without credentials")
	}
	if cfg.Audit.Enabled || len(cfg.Auth.Tokens) != 0 {
		t.Fatalf("unexpected audit/auth defaults %+v %+v", cfg.Audit, cfg.Auth)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao")
	t.Setenv("AGENT_MAX_STEPS", "4")
	t.Setenv("AGENT_REQUIRE_CONFIRMATION", "false")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("CONVERSATION_DRIVER", "redis")
	t.Setenv("CONVERSATION_TTL", "2h")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("AUTH_TOKENS", "tok=u1:t1:owner")
	t.Setenv("AUDIT_ENABLED", "true")
	t.Setenv("AUDIT_MAX_OPEN_FILES", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" || len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if !cfg.AI.Enabled() {
		t.Fatal("AI should be enabled")
	}
	if cfg.Agent.MaxSteps != 4 || cfg.Agent.RequireConfirmation {
		t.Fatalf("unexpected agent config %+v", cfg.Agent)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Conversation.Driver != "redis" || cfg.Conversation.RedisDB != 3 || cfg.Conversation.TTL != 2*time.Hour {
		t.Fatalf("unexpected storage config %+v %+v", cfg.Store, cfg.Conversation)
	}
	if p := cfg.Auth.Tokens["tok"]; p.Role != user.RoleOwner || p.TenantID != "t1" {
		t.Fatalf("unexpected principal %+v", p)
	}
	if !cfg.Audit.Enabled || cfg.Audit.QueueSize != 256 || cfg.Audit.MaxOpenFiles != 8 {
		t.Fatalf("unexpected audit config %+v", cfg.Audit)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                       "80 80",
		"AGENT_MAX_STEPS":            "0",
		"AGENT_REQUIRE_CONFIRMATION": "maybe",
		"STORE_DRIVER":               "postgres",
		"CONVERSATION_DRIVER":        "etcd",
		"CONVERSATION_TTL":           "-1h",
		"AUTH_TOKENS":                "tok=u1:t1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestParseTokens(t *testing.T) {
	tokens, err := ParseTokens(" a=u1:t1:Owner , b=u2:t1:student,, ")
	if err != nil {
		t.Fatalf("ParseTokens failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens["a"].Role != user.RoleOwner || tokens["b"].Role != user.RoleStudent {
		t.Fatalf("unexpected roles %+v", tokens)
	}

	for _, bad := range []string{"=u:t:owner", "a=u:t:root", "a=:t:owner", "a=u:t:owner,a=u:t:admin", "novalue"} {
		if _, err := ParseTokens(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
