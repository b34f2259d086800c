package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gobarber/appointments/libs/config"
	"github.com/gobarber/appointments/libs/events"
	"github.com/gobarber/appointments/libs/httpx"
	"github.com/gobarber/appointments/libs/kafkax"
	otelx "github.com/gobarber/appointments/libs/otel"
	"github.com/gobarber/appointments/libs/runtime"
	"github.com/gobarber/appointments/services/notification-service/internal/consumer"
	"github.com/gobarber/appointments/services/notification-service/internal/inbox"
	"github.com/gobarber/appointments/services/notification-service/internal/mail"
	"github.com/gobarber/appointments/services/notification-service/internal/processor"
	"github.com/gobarber/appointments/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	mongoURI, err := config.RequiredString("MONGO_URI")
	if err != nil {
		panic(err)
	}
	client, err := storage.Connect(ctx, mongoURI)
	if err != nil {
		logger.Error("mongo connection failed", "err", err)
		panic(err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}()
	database := client.Database(config.String("MONGO_DATABASE", "gobarber"))

	notifications := storage.NewNotifications(database)
	inboxRepo := inbox.NewRepository(database)
	for _, ensure := range []func(context.Context) error{notifications.EnsureIndexes, inboxRepo.EnsureIndexes} {
		if err := ensure(ctx); err != nil {
			logger.Error("mongo index setup failed", "err", err)
			panic(err)
		}
	}

	mailer, err := mail.NewMailer(mail.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "Equipe GoBarber <noreply@gobarber.local>"),
	))
	if err != nil {
		panic(err)
	}
	proc := processor.New(notifications, mailer, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	checks := []runtime.ReadyCheck{{Name: "mongo", Check: storage.ReadyCheck(client)}}
	if len(kafkax.SplitBrokers(brokers)) == 0 {
		logger.Warn("event consumers disabled (no kafka brokers configured)")
	} else {
		for topic, handle := range map[string]consumer.Handler{
			events.AppointmentBooked:   proc.Booked,
			events.AppointmentCanceled: proc.Canceled,
		} {
			cfg := consumer.Config{
				Brokers:     brokers,
				GroupID:     groupID,
				Topic:       topic,
				MaxAttempts: config.Int("CONSUMER_MAX_ATTEMPTS", 3),
				Backoff:     config.Duration("CONSUMER_BACKOFF", time.Second),
			}
			go consumer.New(logger, consumer.NewReader(cfg), inboxRepo, cfg, handle).Run(ctx)
		}
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}
