package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dikeckaan/siteform/internal/config"
	"github.com/dikeckaan/siteform/internal/handler"
	"github.com/dikeckaan/siteform/internal/logging"
	"github.com/dikeckaan/siteform/internal/repository"
	"github.com/dikeckaan/siteform/internal/service"
	"github.com/dikeckaan/siteform/pkg/relay"
	"github.com/dikeckaan/siteform/pkg/turnstile"
)

func main() {
	_ = godotenv.Load()
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("invalid configuration", "error", err)
	}

	repo, closeStore, err := newRepository(cfg)
	if err != nil {
		logging.Fatal("store init failed", "error", err)
	}
	defer closeStore()

	var notifier relay.Notifier
	switch cfg.Relay {
	case "smtp":
		notifier = relay.NewSMTPRelay(relay.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			SSL:  cfg.SMTPSSL,
			From: cfg.SMTPFrom,
			To:   cfg.SMTPTo,
		})
	default:
		notifier = relay.NewTelegramClient(cfg.TelegramBotToken, cfg.TelegramChatID)
	}

	gate := service.NewGateService(repo, turnstile.NewClient(cfg.TurnstileSecret), notifier, service.GateConfig{
		IdentitySalt:      cfg.IdentitySalt,
		RateLimitWindow:   cfg.RateLimitWindow,
		RecordTTL:         cfg.RecordTTL,
		MinFormDuration:   cfg.MinFormDuration,
		MinMouseMovements: cfg.MinMouseMovements,
		MinKeyPresses:     cfg.MinKeyPresses,
		MinFocusEvents:    cfg.MinFocusEvents,
		MaxFieldLength:    cfg.MaxFieldLength,
		CaptchaDisabled:   cfg.CaptchaDisabled,
	})
	cleanup := service.NewCleanupService(repo, cfg.RetentionPeriod)

	submitHandler := handler.NewSubmitHandler(gate, cfg.TrustedProxies)
	adminHandler := handler.NewAdminHandler(cleanup, cfg.AdminCleanupSecret)
	debugHandler := handler.NewDebugHandler(repo, cfg.DebugMode, cfg.DebugAllowedIPs, cfg.TrustedProxies)
	healthHandler := handler.NewHealthHandler(repo)

	mux := http.NewServeMux()
	mux.HandleFunc("/", submitHandler.Submit)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("POST /admin/cleanup", adminHandler.Cleanup)
	mux.HandleFunc("GET /cleanup", adminHandler.Sweep)
	mux.HandleFunc("GET /debug/keys", debugHandler.Keys)
	mux.HandleFunc("POST /debug/delete-key", debugHandler.DeleteKey)

	throttle := handler.NewThrottle(cfg.ThrottleRPS, cfg.ThrottleBurst, cfg.TrustedProxies)
	chain := handler.RequestLogger(
		handler.SecurityHeaders(
			handler.CORS(cfg.AllowedOrigins,
				throttle.Middleware(mux))))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      chain,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Best-effort background sweep; TTL on every write is what actually
	// bounds record lifetime.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepLoop(sweepCtx, cleanup)

	go func() {
		slog.Info("server listening", "addr", server.Addr, "store", cfg.StoreBackend, "relay", cfg.Relay)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newRepository(cfg *config.Config) (repository.RateLimitRepository, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := repository.NewPool(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPgRateLimitRepository(pool), pool.Close, nil
	case "memory":
		return repository.NewMemoryRateLimitRepository(), func() {}, nil
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return repository.NewRedisRateLimitRepository(rdb), func() { _ = rdb.Close() }, nil
	}
}

func sweepLoop(ctx context.Context, cleanup service.CleanupService) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := cleanup.Sweep(ctx)
			if err != nil {
				slog.Warn("background sweep failed", "error", err)
				continue
			}
			slog.Info("background sweep completed", "scanned", res.Scanned, "deleted", res.DeletedCount)
		}
	}
}
