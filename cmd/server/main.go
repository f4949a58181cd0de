package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnoverseas/payments-service/internal/api"
	"github.com/bnoverseas/payments-service/internal/config"
	"github.com/bnoverseas/payments-service/internal/handler"
	"github.com/bnoverseas/payments-service/internal/infrastructure/kafka"
	"github.com/bnoverseas/payments-service/internal/infrastructure/redis"
	"github.com/bnoverseas/payments-service/internal/notification"
	"github.com/bnoverseas/payments-service/internal/observability"
	core "github.com/bnoverseas/payments-service/internal/repository/postgres"
	service "github.com/bnoverseas/payments-service/internal/services"
	"github.com/bnoverseas/payments-service/migrations"
	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Логи, метрики, трейсы
	shutdownTracing := observability.Setup(cfg.ServiceName, cfg.LogLevel)
	defer shutdownTracing(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RunMigrations {
		if err := migrations.Up(cfg.PostgresDSN); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	transactionRepo := core.NewPostgresTransactionRepository(db)
	userRepo := core.NewPostgresUserRepository(db)
	courseRepo := core.NewPostgresCourseRepository(db)
	enrollmentRepo := core.NewPostgresEnrollmentRepository(db)
	appointmentRepo := core.NewPostgresAppointmentRepository(db)
	subscriptionRepo := core.NewPostgresSubscriptionRepository(db)
	emailLogRepo := core.NewPostgresEmailLogRepository(db)

	// Без Redis дубликаты отсекаются только условными апдейтами в БД.
	var redisClient redis.RedisClient
	if client, err := redis.NewClient(ctx, cfg.RedisAddr); err != nil {
		slog.Warn("continuing without webhook delivery dedup", "error", err)
	} else {
		redisClient = client
		defer client.Close()
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()
	dispatcher := notification.NewKafkaDispatcher(producer, cfg.NotificationsTopic)

	var sender notification.Sender = notification.LogSender{}
	if cfg.SMTP.Enabled() {
		sender = notification.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		slog.Warn("SMTP not configured, notification emails will only be logged")
	}
	processor := notification.NewProcessor(sender, emailLogRepo)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.NotificationsTopic, cfg.NotificationsGroup, processor.HandleMessage)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Consume(ctx)
	}()

	webhookSvc := service.NewWebhookService(service.WebhookDeps{
		Transactions:  transactionRepo,
		Enrollments:   enrollmentRepo,
		Courses:       courseRepo,
		Appointments:  appointmentRepo,
		Subscriptions: subscriptionRepo,
		Users:         userRepo,
		Dispatcher:    dispatcher,
		Redis:         redisClient,
	}, cfg.AppURL, cfg.EventClaimTTL, cfg.EventDedupeTTL)
	transactionSvc := service.NewTransactionService(transactionRepo, courseRepo, appointmentRepo)

	h := handler.NewHandler(webhookSvc, transactionSvc, cfg.WebhookSecret)
	router := api.SetupRouter(h, cfg.JWTSecret)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	cancel()
	<-consumerDone
	if err := consumer.Close(); err != nil {
		slog.Error("failed to close Kafka consumer", "error", err)
	}
	slog.Info("server stopped")
}
