package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/medibook/healthcare-booking/internal/api"
	"github.com/medibook/healthcare-booking/internal/audit"
	"github.com/medibook/healthcare-booking/internal/booking"
	"github.com/medibook/healthcare-booking/internal/config"
	"github.com/medibook/healthcare-booking/internal/db"
	"github.com/medibook/healthcare-booking/internal/events"
	"github.com/medibook/healthcare-booking/internal/notify"
	"github.com/medibook/healthcare-booking/internal/observability"
	redisclient "github.com/medibook/healthcare-booking/internal/redis"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.InitLogger("api-server", "dev")
		log.Fatal().Err(err).Msg("config load error")
	}

	observability.InitLogger("api-server", cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	// Optional AMQP for outbound events and SMS notifications
	var publisher events.Publisher = events.NoopPublisher{}
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connection error")
		}
		defer conn.Close()

		amqpPublisher, err := events.NewAMQPPublisher(conn, cfg.EventQueue)
		if err != nil {
			log.Fatal().Err(err).Msg("event publisher setup error")
		}
		publisher = amqpPublisher

		amqpNotifier, err := notify.NewAMQPNotifier(conn, cfg.SMSQueue)
		if err != nil {
			log.Fatal().Err(err).Msg("sms notifier setup error")
		}
		notifier = amqpNotifier

		log.Info().Str("event_queue", cfg.EventQueue).Str("sms_queue", cfg.SMSQueue).Msg("connected to RabbitMQ")
	} else {
		log.Warn().Msg("AMQP_URL not set, events and notifications are disabled")
	}

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	recorder := audit.NewPgRecorder(pgPool)
	svc := booking.NewService(repo, locker, publisher, recorder, notifier)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()

	log.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown error")
	}
}
