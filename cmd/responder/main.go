package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/akmatori/responder/internal/alerts/adapters"
	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/config"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/events"
	"github.com/akmatori/responder/internal/handlers"
	"github.com/akmatori/responder/internal/jobs"
	"github.com/akmatori/responder/internal/logging"
	"github.com/akmatori/responder/internal/middleware"
	"github.com/akmatori/responder/internal/notify"
	"github.com/akmatori/responder/internal/notify/email"
	"github.com/akmatori/responder/internal/notify/senders"
	"github.com/akmatori/responder/internal/services"
	slackutil "github.com/akmatori/responder/internal/slack"
)

const (
	shutdownTimeout       = 15 * time.Second
	cooldownCleanupPeriod = time.Minute
	escalationScanBatch   = 100
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, "responder")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Debug("No .env file loaded, using environment variables", zap.Error(envErr))
	}
	log.Info("Starting responder", zap.Int("port", cfg.HTTPPort))

	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}
	db := database.DB

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			log.Fatal("Failed to load seed file", zap.String("path", cfg.SeedFile), zap.Error(err))
		}
		if err := database.ImportSeed(db, seed); err != nil {
			log.Fatal("Failed to import seed data", zap.Error(err))
		}
		log.Info("Seed data imported", zap.String("path", cfg.SeedFile))
	}

	settings, err := database.GetOrCreateEngineSettings(db, &database.EngineSettings{
		DedupWindowSeconds:            int(cfg.Windows.Dedup / time.Second),
		CorrelationWindowSeconds:      int(cfg.Windows.Correlation / time.Second),
		NotificationCooldownSeconds:   int(cfg.Windows.NotificationCooldown / time.Second),
		EscalationScanIntervalSeconds: int(cfg.EscalationScanInterval / time.Second),
	})
	if err != nil {
		log.Fatal("Failed to load engine settings", zap.Error(err))
	}
	windows := config.Windows{
		Dedup:                settings.DedupWindow(),
		Correlation:          settings.CorrelationWindow(),
		NotificationCooldown: settings.NotificationCooldown(),
	}
	log.Info("Engine settings loaded",
		zap.Duration("dedup_window", windows.Dedup),
		zap.Duration("correlation_window", windows.Correlation),
		zap.Duration("notification_cooldown", windows.NotificationCooldown),
		zap.Duration("escalation_scan_interval", settings.EscalationScanInterval()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cooldown store
	var cooldown notify.Cooldown
	if cfg.RedisURL != "" {
		redisCooldown, err := notify.NewRedisCooldownFromURL(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisCooldown.Close()
		cooldown = redisCooldown
		log.Info("Notification cooldowns stored in Redis")
	} else {
		memoryCooldown := notify.NewMemoryCooldown(cooldownCleanupPeriod)
		defer memoryCooldown.Stop()
		cooldown = memoryCooldown
		log.Info("Notification cooldowns kept in process memory")
	}

	// Event bus
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatal("Failed to create Kafka publisher", zap.Error(err))
		}
		publisher = kafkaPublisher
		log.Info("Publishing incident events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	mailer := newMailer(ctx, cfg.Email)
	slackManager := slackutil.NewManager(cfg.SlackBotToken)

	registry := notify.NewRegistry(
		senders.NewSlackSender(slackManager),
		senders.NewEmailSender(mailer),
		senders.NewWebhookSender(),
		senders.NewTeamsSender(),
		senders.NewPagerDutySender(""),
	)
	clk := clock.Real{}
	dispatcher := notify.NewDispatcher(db, registry, cooldown, windows.NotificationCooldown, clk, cfg.DashboardURL)
	pager := notify.NewUserPager(db, slackManager, mailer, clk, cfg.DashboardURL)

	pool := jobs.NewWorkerPool(cfg.WorkerCount, cfg.WorkerQueueSize)

	escalation := services.NewEscalationService(db, clk, pager, publisher)
	correlation := services.NewCorrelationService(db, windows, clk, escalation, dispatcher, pool, publisher)
	dedup := services.NewDedupService(db, windows, clk, services.NewSilenceService(db), correlation)
	incidents := services.NewIncidentService(db, clk, correlation, escalation, dispatcher, pool, publisher)
	schedules := services.NewScheduleService(db)

	alertHandler := handlers.NewAlertHandler(dedup, cfg.WebhookSecret)
	alertHandler.RegisterAdapter(adapters.NewAlertmanagerAdapter())
	alertHandler.RegisterAdapter(adapters.NewGrafanaAdapter())
	log.Info("Alert adapters registered", zap.Strings("sources", []string{"alertmanager", "grafana"}))

	apiHandler := handlers.NewAPIHandler(incidents, schedules, clk)

	mux := http.NewServeMux()
	handlers.NewHTTPHandler(db, alertHandler, apiHandler).SetupRoutes(mux)

	corsMiddleware := middleware.NewCORSMiddleware(cfg.CORSAllowedOrigins...)
	handler := corsMiddleware.Wrap(middleware.RequestIDMiddleware(middleware.RequestLogging(mux)))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopScanner := make(chan struct{})
	scanner := jobs.NewEscalationScanner(escalation, escalationScanBatch)
	go scanner.Start(settings.EscalationScanInterval(), stopScanner)

	go func() {
		log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received shutdown signal, cleaning up", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", zap.Error(err))
	}
	close(stopScanner)
	pool.Stop()

	log.Info("Shutdown complete")
}

// newMailer registers every email provider and selects the configured one as primary
func newMailer(ctx context.Context, cfg config.EmailConfig) *email.Registry {
	registry := email.NewRegistry(cfg.FromAddress)
	registry.Register(email.NewSMTPProvider(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		UseTLS:   cfg.SMTPUseTLS,
	}))
	if cfg.ResendAPIKey != "" {
		registry.Register(email.NewResendProvider(cfg.ResendAPIKey))
	}
	if cfg.Provider == "ses" {
		registry.Register(email.NewSESProvider(ctx, cfg.AWSRegion))
	}

	if err := registry.SetPrimary(cfg.Provider); err != nil {
		zap.L().Warn("Email: configured provider unavailable, falling back to smtp",
			zap.String("provider", cfg.Provider), zap.Error(err))
		_ = registry.SetPrimary("smtp")
	} else if cfg.Provider != "smtp" {
		_ = registry.SetFallback("smtp")
	}
	return registry
}
