package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/diegovillafuerte/parlo/internal/api/router"
	"github.com/diegovillafuerte/parlo/internal/catalog"
	appconfig "github.com/diegovillafuerte/parlo/internal/config"
	"github.com/diegovillafuerte/parlo/internal/conversations"
	"github.com/diegovillafuerte/parlo/internal/customers"
	"github.com/diegovillafuerte/parlo/internal/observability/metrics"
	"github.com/diegovillafuerte/parlo/internal/onboarding"
	"github.com/diegovillafuerte/parlo/internal/organizations"
	"github.com/diegovillafuerte/parlo/internal/policy"
	"github.com/diegovillafuerte/parlo/internal/routing"
	"github.com/diegovillafuerte/parlo/internal/scheduling"
	"github.com/diegovillafuerte/parlo/internal/staff"
	"github.com/diegovillafuerte/parlo/internal/whatsapp"
	"github.com/diegovillafuerte/parlo/pkg/logging"
)

func main() {
	// Load configuration (.env is optional, real env always wins)
	_ = godotenv.Load()
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting parlo API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	// Stores
	orgStore := organizations.NewStore(pool)
	staffStore := staff.NewStore(pool)
	customerStore := customers.NewStore(pool)
	catalogStore := catalog.NewStore(pool)
	conversationStore := conversations.NewStore(pool)
	appointments := scheduling.NewRepository(pool)

	// Scheduling
	availability := scheduling.NewEngine(catalogStore, staffStore, appointments,
		time.Duration(cfg.SlotStepMinutes)*time.Minute)
	executor := policy.NewExecutor(appointments, availability, catalogStore, staffStore)

	// Conversation policy engine
	var engine policy.Engine
	if cfg.PolicyMock || cfg.GeminiAPIKey == "" {
		logger.Info("policy engine running in mock mode")
		engine = policy.NewStaticEngine()
	} else {
		gemini, err := policy.NewGeminiEngine(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini engine", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		engine = gemini
	}

	history := policy.NewHistoryCache(redisClient)
	customerAssistant := policy.NewCustomerAssistant(engine, executor, history, conversationStore, catalogStore, logger.Logger)
	staffAssistant := policy.NewStaffAssistant(engine, executor, catalogStore, logger.Logger)
	flow := onboarding.NewFlow(orgStore, staffStore, catalogStore, appointments, cfg.DefaultCountryCode, logger.Logger)

	// Outbound channel
	var sender whatsapp.Sender
	if cfg.WhatsAppMockMode {
		logger.Info("whatsapp sender running in mock mode")
		sender = whatsapp.NewMockSender()
	} else {
		client := whatsapp.NewClient(cfg.WhatsAppAccessToken)
		client.SetGraphAPIBase(cfg.WhatsAppAPIBaseURL)
		sender = client
	}

	// Inbound routing
	routingMetrics := metrics.NewRoutingMetrics(prometheus.DefaultRegisterer)
	inboundRouter := routing.NewRouter(routing.Config{
		Identity:           routing.NewResolver(orgStore, staffStore, customerStore),
		Store:              conversationStore,
		Orgs:               orgStore,
		Onboarding:         flow,
		Staff:              staffAssistant,
		Customer:           customerAssistant,
		Sender:             sender,
		DefaultCountryCode: cfg.DefaultCountryCode,
		FallbackReply:      cfg.FallbackReply,
		Logger:             logger.Logger,
		Metrics:            routingMetrics,
	})

	dispatch := func(ctx context.Context, msg whatsapp.ParsedInboundMessage) {
		result, err := inboundRouter.Route(ctx, routing.InboundMessage{
			TenantChannelID: msg.TenantChannelID,
			SenderPhone:     msg.SenderPhone,
			SenderName:      msg.SenderName,
			MessageID:       msg.MessageID,
			Content:         msg.Text,
			Timestamp:       msg.Timestamp,
		})
		if err != nil {
			logger.Error("route failed",
				"error", err,
				"wa_message_id", msg.MessageID,
				"decision", string(result.Decision),
			)
		}
	}
	webhook := whatsapp.NewWebhookHandler(cfg.WhatsAppVerifyToken, cfg.RouteTimeout, dispatch, logger.Logger)

	// Setup router
	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhook,
		MetricsHandler: promhttp.Handler(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
