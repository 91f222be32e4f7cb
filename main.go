package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/adapter/backend"
	"github.com/cas-pilex/edithAI-sub000/internal/adapter/llm"
	"github.com/cas-pilex/edithAI-sub000/internal/agent"
	"github.com/cas-pilex/edithAI-sub000/internal/agents"
	"github.com/cas-pilex/edithAI-sub000/internal/approval"
	"github.com/cas-pilex/edithAI-sub000/internal/audit"
	"github.com/cas-pilex/edithAI-sub000/internal/config"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/logging"
	"github.com/cas-pilex/edithAI-sub000/internal/notify"
	"github.com/cas-pilex/edithAI-sub000/internal/orchestrator"
	"github.com/cas-pilex/edithAI-sub000/internal/policy"
	"github.com/cas-pilex/edithAI-sub000/internal/ratelimit"
	"github.com/cas-pilex/edithAI-sub000/internal/repository"
	"github.com/cas-pilex/edithAI-sub000/internal/tools"
	server "github.com/cas-pilex/edithAI-sub000/internal/transport/http"
	v1 "github.com/cas-pilex/edithAI-sub000/internal/transport/http/v1"
	"github.com/cas-pilex/edithAI-sub000/internal/workflow"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting assistant",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("mock_mode", cfg.MockMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := repository.NewStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer db.Close()

	// Domain backend and tool catalog
	var be backend.Backend
	if cfg.Backend.RPCAddr != "" && !cfg.MockMode {
		be = backend.NewRPCClient(cfg.Backend.RPCAddr, cfg.Backend.Timeout)
		logger.Info("using rpc backend", zap.String("addr", cfg.Backend.RPCAddr))
	} else {
		be = backend.NewMockBackend()
		logger.Info("using in-process mock backend")
	}
	registry := tools.NewRegistry()
	if err := tools.RegisterDomainTools(registry, be); err != nil {
		logger.Fatal("failed to register tools", zap.Error(err))
	}
	registry.Seal()

	// Initialize policy engine
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		logger.Fatal("failed to initialize policy engine", zap.Error(err))
	}

	limiter := newLimiter(cfg, logger)

	// Audit sinks
	auditWriters := audit.Multi{audit.NewStoreWriter(db, logger), audit.NewLogWriter(logger)}
	if cfg.ClickHouse.DSN != "" {
		ch, err := audit.NewClickHouseWriter(ctx, cfg.ClickHouse.DSN, logger)
		if err != nil {
			logger.Warn("clickhouse audit disabled", zap.Error(err))
		} else {
			defer ch.Close()
			auditWriters = append(auditWriters, ch)
		}
	}

	// Notification fan-out
	hub := notify.NewHub(logger)
	go hub.Run(ctx)
	notifiers := notify.Multi{hub}
	if cfg.RabbitMQ.URL != "" {
		rmq, err := notify.NewRabbitMQNotifier(notify.RabbitMQConfig{URL: cfg.RabbitMQ.URL, Exchange: cfg.RabbitMQ.Exchange}, logger)
		if err != nil {
			logger.Warn("rabbitmq notifications disabled", zap.Error(err))
		} else {
			defer rmq.Close()
			notifiers = append(notifiers, rmq)
		}
	}

	gate := approval.NewGate(db, registry,
		approval.WithNotifier(notifiers),
		approval.WithAudit(auditWriters),
		approval.WithWindow(cfg.Approval.Window),
		approval.WithLogger(logger),
	)
	go gate.RunExpirySweeper(ctx, cfg.Approval.SweepInterval)

	// Initialize model
	model, err := llm.NewModel(ctx, llm.FactoryConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Mock:     cfg.MockMode,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize model", zap.Error(err))
	}

	agentSet := agents.Build(agent.Deps{
		Model:     model,
		Tools:     registry,
		Approvals: gate,
		Policy:    policyEngine,
		Limiter:   limiter,
		Store:     db,
		Audit:     auditWriters,
		Logger:    logger,
	}, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		HistoryLimit:  cfg.Agent.HistoryLimit,
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temp,
	})

	engine, err := workflow.NewDefaultEngine(agentSet, cfg.WorkflowsFile,
		workflow.WithAudit(auditWriters),
		workflow.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to load workflows", zap.Error(err))
	}

	orch := orchestrator.New(model, agentSet, engine, orchestrator.Config{
		ConfidenceThreshold: cfg.Orchestrator.ConfidenceThreshold,
		Model:               cfg.LLM.Model,
	}, auditWriters, logger)

	ws := notify.NewWSServer(hub, socketDecisions(gate, logger), logger)

	e := server.NewServer(v1.Deps{
		Router:    orch,
		Approvals: gate,
		Tools:     registry,
		Workflows: engine,
		Contexts:  agent.NewContextLoader(db, 0, logger),
		WebSocket: ws.HandleWebSocket,
		Logger:    logger,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start http server", zap.Error(err))
		}
	}()
	logger.Info("http api started", zap.Int("port", cfg.HTTPPort))

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown http server gracefully", zap.Error(err))
	}
	logger.Info("stopped")
}

func newLimiter(cfg *config.Config, logger *zap.Logger) ratelimit.Limiter {
	if cfg.Redis.Addr != "" {
		rl, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.RateLimit.Limit, cfg.RateLimit.Window)
		if err == nil {
			logger.Info("using redis rate limiter", zap.String("addr", cfg.Redis.Addr))
			return rl
		}
		logger.Warn("redis unavailable, falling back to in-memory rate limiter", zap.Error(err))
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
}

// socketDecisions applies decisions sent over the notification socket and
// resumes approved calls right away.
func socketDecisions(gate *approval.Gate, logger *zap.Logger) notify.DecisionFunc {
	return func(ctx context.Context, userID, approvalID, decision, feedback string) error {
		ap, err := gate.Get(ctx, approvalID)
		if err != nil {
			return err
		}
		if ap.UserID != userID {
			return domain.ErrApprovalNotFound
		}
		ap, err = gate.Decide(ctx, approvalID, domain.Decision(decision), userID, feedback)
		if err != nil {
			return err
		}
		if ap.Status != domain.ApprovalStatusApproved {
			return nil
		}
		res, err := gate.ResumeByID(ctx, approvalID)
		if err != nil {
			return err
		}
		logger.Info("approved call resumed",
			zap.String("approval_id", approvalID),
			zap.Bool("success", res.Success),
		)
		return nil
	}
}
