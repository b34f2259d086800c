package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gobarber/appointments/libs/config"
	"github.com/gobarber/appointments/libs/db"
	"github.com/gobarber/appointments/libs/grpcx"
	"github.com/gobarber/appointments/libs/httpx"
	"github.com/gobarber/appointments/libs/kafkax"
	otelx "github.com/gobarber/appointments/libs/otel"
	"github.com/gobarber/appointments/libs/runtime"
	"github.com/gobarber/appointments/services/appointment-service/internal/appointments"
	"github.com/gobarber/appointments/services/appointment-service/internal/directory"
	"github.com/gobarber/appointments/services/appointment-service/internal/handlers"
	"github.com/gobarber/appointments/services/appointment-service/internal/outbox"
	"github.com/gobarber/appointments/services/appointment-service/internal/slot"
	"github.com/gobarber/appointments/services/appointment-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8083")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("DB_AUTO_MIGRATE", false) {
		applied, err := storage.Migrate(ctx, pool)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "files", applied)
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	localUsers := storage.NewUsers(pool)
	var dir directory.Directory = localUsers
	if addr := config.String("DIRECTORY_GRPC_ADDR", ""); addr != "" {
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
		if err != nil {
			logger.Error("directory dial failed", "err", err, "addr", addr)
			panic(err)
		}
		defer conn.Close()
		dir = directory.NewGRPC(conn)
		logger.Info("using remote directory", "addr", addr)
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		dir = directory.NewCached(dir, rdb, config.Duration("DIRECTORY_CACHE_TTL", 5*time.Minute), logger)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	brokers := config.String("KAFKA_BROKERS", "")
	if brokerList := kafkax.SplitBrokers(brokers); len(brokerList) > 0 {
		writer := outbox.NewKafkaWriter(brokerList)
		defer writer.Close()
		publisher := outbox.NewPublisher(outbox.NewRepository(pool), writer, logger, outbox.PublisherConfig{
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("outbox publisher disabled (no kafka brokers configured)")
	}

	if grpcPort := config.String("GRPC_PORT", ""); grpcPort != "" {
		go serveDirectory(ctx, grpcPort, localUsers, logger)
	}

	engine := appointments.NewService(storage.NewLedger(pool), dir, slot.SystemClock(), logger, appointments.Config{
		FilesBaseURL: config.String("FILES_BASE_URL", "http://localhost:3333/files"),
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewAppointmentHandler(engine, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(64<<10),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointments")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

// serveDirectory exposes the Postgres directory to sibling services over gRPC.
func serveDirectory(ctx context.Context, port string, users directory.Directory, logger *slog.Logger) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		logger.Error("grpc listen failed", "err", err, "port", port)
		return
	}
	srv := grpcx.NewServer()
	directory.Register(srv, users)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	logger.Info("grpc directory server starting", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil {
		logger.Error("grpc server error", "err", err)
	}
}
