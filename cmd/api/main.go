package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/censusconnect/gatekeeper/internal/auth"
	"github.com/censusconnect/gatekeeper/internal/background"
	"github.com/censusconnect/gatekeeper/internal/config"
	"github.com/censusconnect/gatekeeper/internal/database"
	"github.com/censusconnect/gatekeeper/internal/handlers"
	middlewareCustom "github.com/censusconnect/gatekeeper/internal/middleware"
	"github.com/censusconnect/gatekeeper/internal/repositories"
	"github.com/censusconnect/gatekeeper/internal/routes"
	"github.com/censusconnect/gatekeeper/internal/services"
	pkghttp "github.com/censusconnect/gatekeeper/pkg/http"
	pkglogger "github.com/censusconnect/gatekeeper/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if err := database.Migrate(cfg.Database.DSN(), logger); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	accountRepo := repositories.NewAccountRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	historyRepo := repositories.NewLoginHistoryRepository(db)
	throttleRepo := repositories.NewThrottleRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Security.TimingDelayBaseMs,
		RandomDelayMs: cfg.Security.TimingDelayRandomMs,
	})

	// Email sender: SES when a from-address is configured, log sink otherwise
	var emailSender services.EmailSender
	if cfg.Email.FromAddress != "" {
		sesSender, err := services.NewSESEmailSender(
			context.Background(), cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.BaseURL, logger)
		if err != nil {
			logger.Error("failed to initialize email sender", slog.Any("error", err))
			os.Exit(1)
		}
		emailSender = sesSender
	} else {
		logger.Info("no from-address configured, emails go to the log")
		emailSender = services.NewLogEmailSender(logger)
	}

	// Services
	throttleService := services.NewThrottleService(throttleRepo, services.ThrottleConfig{
		Retention:    cfg.Security.ThrottleRetention,
		StoreTimeout: cfg.Database.StoreTimeout,
	}, logger, auditLogger)

	credentialService := services.NewCredentialService(accountRepo, historyRepo, services.CredentialConfig{
		LockoutThreshold: cfg.Security.LockoutThreshold,
		LockoutDuration:  cfg.Security.LockoutDuration,
		StoreTimeout:     cfg.Database.StoreTimeout,
	}, timingDelay, logger, auditLogger)

	sessionService := services.NewSessionService(sessionRepo, services.SessionConfig{
		TTL:          cfg.Security.SessionTTL,
		StoreTimeout: cfg.Database.StoreTimeout,
	}, logger, auditLogger)

	lifecycleService := services.NewLifecycleService(accountRepo, sessionService, emailSender, services.LifecycleConfig{
		ActivationTokenTTL: cfg.Security.ActivationTokenTTL,
		ResetTokenTTL:      cfg.Security.ResetTokenTTL,
		BcryptCost:         cfg.Security.BcryptCost,
		AutoActivate:       cfg.Security.AutoActivate,
		StoreTimeout:       cfg.Database.StoreTimeout,
	}, logger, auditLogger)

	core := services.NewCore(throttleService, credentialService, sessionService, lifecycleService)

	cleanupManager := background.NewCleanupManager(throttleService, sessionService, logger, cfg.Security.CleanupInterval)

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "lax",
	}
	authHandler := handlers.NewAuthHandler(core, ipConfig, cookieConfig)

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, throttleService, sessionService, ipConfig)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
