package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/gobarber/appointments/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates deliveries by event id.
type Inbox interface {
	Claim(ctx context.Context, eventID, eventType string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader      Reader
	logger      *slog.Logger
	inbox       Inbox
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// MaxAttempts bounds handler retries before a message is logged and skipped.
	MaxAttempts int
	Backoff     time.Duration
}

func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func New(logger *slog.Logger, reader Reader, inbox Inbox, cfg Config, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{
		reader:      reader,
		logger:      logger.With("topic", cfg.Topic),
		inbox:       inbox,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "offset", msg.Offset)
		}
	}
}

// process handles one message at most once per event id. A message whose handler keeps
// failing is released from the inbox and skipped so the partition keeps moving. An inbox
// that cannot be reached blocks the partition instead; process reports false only when ctx
// ends first, and the message must then stay uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	logger := c.logger.With("event_id", meta.EventID, "event_type", meta.EventType, "aggregate_id", meta.AggregateID)

	ok, err := c.claim(ctxSpan, logger, meta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox claim failed")
		return false
	}
	if !ok {
		logger.Info("duplicate event ignored")
		return true
	}

	for attempt := 1; ; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			return true
		}
		span.RecordError(err)
		if attempt >= c.maxAttempts || !sleep(ctx, c.backoff) {
			break
		}
		logger.Warn("handler failed, retrying", "err", err, "attempt", attempt)
	}

	span.SetStatus(codes.Error, "handler failed")
	logger.Error("handler failed, event skipped", "err", err)
	if err := c.inbox.Release(context.WithoutCancel(ctxSpan), meta.EventID); err != nil {
		logger.Error("inbox release failed", "err", err)
	}
	return true
}

// claim retries the inbox until it answers or ctx ends.
func (c *Consumer) claim(ctx context.Context, logger *slog.Logger, meta kafkax.EventMeta) (bool, error) {
	for attempt := 1; ; attempt++ {
		ok, err := c.inbox.Claim(ctx, meta.EventID, meta.EventType)
		if err == nil {
			return ok, nil
		}
		logger.Error("inbox claim failed", "err", err, "attempt", attempt)
		if !sleep(ctx, c.backoff) {
			return false, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
