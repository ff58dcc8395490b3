package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agusgarcia3007/learnbase/backend/internal/audit"
	"github.com/agusgarcia3007/learnbase/backend/internal/config"
	"github.com/agusgarcia3007/learnbase/backend/internal/handler"
	"github.com/agusgarcia3007/learnbase/backend/internal/service/agent"
	"github.com/agusgarcia3007/learnbase/backend/internal/service/chat"
	"github.com/agusgarcia3007/learnbase/backend/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

// run owns every resource; deferred closes run before main exits.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	catalog, err := store.Open(cfg.Store.Driver, cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer catalog.Close()
	log.Printf("catalog store driver=%s", cfg.Store.Driver)

	conversationStore, err := chat.NewStore(ctx, cfg.Conversation.Driver, chat.RedisOptions{
		Addr:     cfg.Conversation.RedisAddr,
		Password: cfg.Conversation.RedisPassword,
		DB:       cfg.Conversation.RedisDB,
		TTL:      cfg.Conversation.TTL,
	})
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer conversationStore.Close()
	conversations := chat.NewService(conversationStore, chat.WithRequireConfirmation(cfg.Agent.RequireConfirmation))

	auditLogger, err := audit.NewLogger(audit.Config{
		Enabled:      cfg.Audit.Enabled,
		Dir:          cfg.Audit.Dir,
		QueueSize:    cfg.Audit.QueueSize,
		MaxOpenFiles: cfg.Audit.MaxOpenFiles,
	})
	if err != nil {
		return fmt.Errorf("initialize audit log: %w", err)
	}
	defer auditLogger.Close()

	deps := handler.Dependencies{
		Catalog:        catalog,
		Conversations:  conversations,
		Tokens:         cfg.Auth.Tokens,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if len(deps.Tokens) == 0 {
		log.Println("warning: AUTH_TOKENS is empty, every API request will be rejected")
	}

	// Initialize the authoring agent
	if cfg.AI.Enabled() {
		orchestrator, err := newOrchestrator(ctx, cfg, catalog, conversations, auditLogger)
		if err != nil {
			log.Printf("warning: failed to initialize authoring agent: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
		} else {
			deps.Agent = orchestrator
			log.Printf("authoring agent initialized max_steps=%d require_confirmation=%t", orchestrator.MaxSteps(), conversations.RequiresConfirmation())
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	return startServer(ctx, cfg.Server, handler.NewRouter(deps))
}

func newOrchestrator(ctx context.Context, cfg *config.Config, catalog store.Repository, conversations *chat.Service, auditLogger *audit.Logger) (*agent.Orchestrator, error) {
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}

	recorders := agent.Recorders{agent.LogRecorder{}}
	if auditLogger != nil {
		recorders = append(recorders, auditLogger)
	}

	tools := agent.NewToolset(catalog, conversations, agent.DefaultStatusPolicy()).Tools()
	return agent.NewOrchestrator(ctx, chatModel, tools,
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithHistoryLimit(cfg.Agent.HistoryLimit),
		agent.WithRecorder(recorders),
	)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("authoring backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Println("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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
