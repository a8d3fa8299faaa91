package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/diagnosis/onboarding/internal/handlers"
	"github.com/diagnosis/onboarding/internal/mailer"
	"github.com/diagnosis/onboarding/internal/provision"
	"github.com/diagnosis/onboarding/internal/repository"
	"github.com/diagnosis/onboarding/internal/service"
	"github.com/diagnosis/onboarding/internal/trigger"
	"github.com/diagnosis/onboarding/pkg/config"
	"github.com/diagnosis/onboarding/pkg/database"
	"github.com/diagnosis/onboarding/pkg/events"
	"github.com/diagnosis/onboarding/pkg/logger"
	mw "github.com/diagnosis/onboarding/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Error("Failed to configure Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Repositories
	identityRepo := repository.NewIdentityRepository(pool)
	codeRepo := repository.NewCodeRepository(pool)
	accountRepo := repository.NewAccountRepository(pool)
	rateLimitRepo := repository.NewRateLimitRepository(pool)
	throttle := repository.NewThrottleRepository(redisClient)

	// Mailer selection mirrors the email config: dev mode prints to logs,
	// MailerSend when a key is present, plain SMTP otherwise.
	var mailSvc mailer.Service
	switch {
	case cfg.Email.DevMode:
		mailSvc = mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		mailSvc = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.SMTPFromName, cfg.Email.SMTPFrom)
	default:
		mailSvc = mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	}

	// Services
	watcher := provision.NewWatcher(accountRepo, cfg.Provisioning)
	diagnostics := service.NewDiagnosticsService(identityRepo, accountRepo, eventBus, cfg)
	signupSvc := service.NewSignupService(identityRepo, codeRepo, throttle, mailSvc, eventBus, cfg)
	verifySvc := service.NewVerifyService(identityRepo, codeRepo, watcher, diagnostics, eventBus, cfg)

	// Downstream provisioning trigger
	provisioner := trigger.NewProvisioner(identityRepo, accountRepo, eventBus)
	if err := provisioner.Start(cfg.NATS.QueueName); err != nil {
		logger.Error("Failed to start provisioner", "error", err)
		os.Exit(1)
	}

	// Background sweep for dead verification codes and stale rate-limit rows.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := codeRepo.DeleteExpired(ctx); err != nil {
				logger.Error("Verification code cleanup failed", "error", err)
			} else if n > 0 {
				logger.Info("Cleaned up verification codes", "deleted", n)
			}
			if n, err := rateLimitRepo.CleanupExpired(ctx); err != nil {
				logger.Error("Rate limit cleanup failed", "error", err)
			} else if n > 0 {
				logger.Info("Cleaned up rate limit entries", "deleted", n)
			}
		}
	}()

	h := handlers.New(signupSvc, verifySvc, diagnostics, rateLimitRepo, cfg)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("onboarding"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Idempotency(repository.NewRedisIdempotencyStore(redisClient)))

	r.Group(func(r chi.Router) {
		r.Use(h.SignupRateLimit())
		r.Post("/signup", h.Signup)
		r.Post("/resend-otp", h.ResendOTP)
		r.Post("/verify-otp", h.VerifyOTP)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.RequireAdminJWT())
		r.Get("/accounts/{id}/diagnostics", h.Diagnostics)
		r.Post("/accounts/{id}/repair", h.Repair)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down onboarding service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Onboarding service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting onboarding service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Onboarding service error", "error", err)
		os.Exit(1)
	}
}
