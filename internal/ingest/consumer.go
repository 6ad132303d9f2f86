package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/config"
	"github.com/budget-france/chorus-backend/pkg/enums"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/logger"
	"github.com/budget-france/chorus-backend/pkg/metrics"
	"github.com/budget-france/chorus-backend/pkg/outbox"
	"github.com/budget-france/chorus-backend/pkg/outbox/payloads"
)

type chunkProcessor interface {
	ProcessChunk(ctx context.Context, chunk payloads.ChunkDispatched) error
}

type retryScheduler interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Consumer pulls chunk messages off the ingest subscription and runs the
// pipeline. Transient failures are converted into scheduled redeliveries via
// the outbox; the message itself is always acked once the retry row is
// durable.
type Consumer struct {
	pipeline     chunkProcessor
	db           retryScheduler
	events       eventEmitter
	subscription *pubsub.Subscriber
	validate     *validator.Validate
	metrics      *metrics.IngestMetrics
	logg         *logger.Logger
	cfg          config.IngestConfig
}

func NewConsumer(
	pipeline chunkProcessor,
	db retryScheduler,
	events eventEmitter,
	subscription *pubsub.Subscriber,
	ingestMetrics *metrics.IngestMetrics,
	logg *logger.Logger,
	cfg config.IngestConfig,
) (*Consumer, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if db == nil {
		return nil, errors.New("db client is required")
	}
	if events == nil {
		return nil, errors.New("event emitter is required")
	}
	if subscription == nil {
		return nil, errors.New("ingest subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		pipeline:     pipeline,
		db:           db,
		events:       events,
		subscription: subscription,
		validate:     validator.New(),
		metrics:      ingestMetrics,
		logg:         logg,
		cfg:          cfg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	chunk, err := c.decodeChunk(msg)
	if err != nil {
		// Malformed messages would fail identically on redelivery.
		c.logg.Error(c.logg.WithField(ctx, "message_id", msg.ID), "dropping undecodable chunk message", err)
		return processResult{ack: true}
	}

	ctx = c.logg.WithImportTask(ctx, chunk.Submission.ImportTaskID)
	ctx = c.logg.WithChunk(ctx, chunk.StartIndex, len(chunk.Lines))

	err = c.pipeline.ProcessChunk(ctx, *chunk)
	if err == nil {
		return processResult{ack: true}
	}

	switch apperrors.CodeOf(err) {
	case apperrors.CodeRateLimit:
		// Reschedule the whole chunk after the upstream cooldown plus a
		// fixed padding. Unbounded budget: rate limiting is not a failure.
		delay := c.cfg.RateLimitPadding
		if retryAfter, ok := apperrors.RetryAfterOf(err); ok {
			delay += retryAfter
		}
		c.metrics.IncChunkRetry("rate_limit")
		return c.scheduleRetry(ctx, *chunk, delay, "rate_limit")

	case apperrors.CodeConflict:
		// Reference creation races and deadlocks: benign contention,
		// bounded fixed-spacing retry.
		if chunk.Attempt+1 >= c.cfg.RetryMaxAttempts {
			c.logg.Error(ctx, "chunk retry budget exhausted", err)
			return processResult{nack: true}
		}
		c.metrics.IncChunkRetry("contention")
		return c.scheduleRetry(ctx, *chunk, c.cfg.RetryDelay, "contention")

	default:
		c.logg.Error(ctx, "chunk processing failed", err)
		return processResult{nack: true}
	}
}

// scheduleRetry persists the redelivery as a deferred outbox row. Once the
// row commits the original message is acked; the publisher re-emits the
// chunk when publish_after comes due.
func (c *Consumer) scheduleRetry(ctx context.Context, chunk payloads.ChunkDispatched, delay time.Duration, cause string) processResult {
	chunk.Attempt++
	retry := payloads.ChunkRetryScheduled{
		Chunk: chunk,
		Cause: cause,
	}
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		return c.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChunkRetryScheduled,
			AggregateType: enums.AggregateImportChunk,
			AggregateID:   chunkAggregateID(chunk),
			Data:          retry,
			Version:       1,
			Delay:         delay,
		})
	})
	if err != nil {
		// Could not make the retry durable; let Pub/Sub redeliver instead.
		c.logg.Error(ctx, "scheduling chunk retry failed", err)
		return processResult{nack: true}
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"retry_cause": cause,
		"retry_delay": delay.String(),
		"attempt":     chunk.Attempt,
	}), "chunk retry scheduled")
	return processResult{ack: true}
}

func (c *Consumer) decodeChunk(msg *pubsub.Message) (*payloads.ChunkDispatched, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	var chunk payloads.ChunkDispatched
	switch eventType {
	case enums.EventChunkDispatchAE, enums.EventChunkDispatchCP:
		if err := json.Unmarshal(envelope.Data, &chunk); err != nil {
			return nil, fmt.Errorf("decoding chunk payload: %w", err)
		}
	case enums.EventChunkRetryScheduled:
		var retry payloads.ChunkRetryScheduled
		if err := json.Unmarshal(envelope.Data, &retry); err != nil {
			return nil, fmt.Errorf("decoding retry payload: %w", err)
		}
		chunk = retry.Chunk
	default:
		return nil, fmt.Errorf("unsupported event type %q", msg.Attributes["event_type"])
	}

	if err := c.validate.Struct(chunk); err != nil {
		return nil, fmt.Errorf("validating chunk payload: %w", err)
	}
	return &chunk, nil
}
