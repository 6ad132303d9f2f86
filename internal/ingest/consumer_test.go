package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/config"
	"github.com/budget-france/chorus-backend/pkg/enums"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/outbox"
	"github.com/budget-france/chorus-backend/pkg/outbox/payloads"
)

type fakeProcessor struct {
	err    error
	chunks []payloads.ChunkDispatched
}

func (f *fakeProcessor) ProcessChunk(_ context.Context, chunk payloads.ChunkDispatched) error {
	f.chunks = append(f.chunks, chunk)
	return f.err
}

type fakeScheduler struct {
	err error
}

func (f *fakeScheduler) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func consumerConfig() config.IngestConfig {
	return config.IngestConfig{
		BatchSize:        10,
		RetryMaxAttempts: 4,
		RetryDelay:       10 * time.Second,
		RateLimitPadding: 5 * time.Second,
	}
}

func newTestConsumer(t *testing.T, pipeline *fakeProcessor, scheduler *fakeScheduler, emitter *recordingEmitter) *Consumer {
	t.Helper()
	return &Consumer{
		pipeline: pipeline,
		db:       scheduler,
		events:   emitter,
		validate: validator.New(),
		logg:     testLogger(),
		cfg:      consumerConfig(),
	}
}

func chunkMessage(t *testing.T, eventType enums.OutboxEventType, body any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version: 1,
		EventID: "evt-1",
		Data:    data,
	})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:         "msg-1",
		Data:       envelope,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func dispatchedChunk() payloads.ChunkDispatched {
	return aeChunk(testSubmission(), aeRecord("2103105755", "5", "22500,12", "10.01.2023"))
}

func TestProcessAcksOnSuccess(t *testing.T) {
	pipeline := &fakeProcessor{}
	consumer := newTestConsumer(t, pipeline, &fakeScheduler{}, &recordingEmitter{})

	msg := chunkMessage(t, enums.EventChunkDispatchAE, dispatchedChunk())
	result := consumer.process(context.Background(), msg)

	assert.True(t, result.ack)
	assert.False(t, result.nack)
	require.Len(t, pipeline.chunks, 1)
	assert.Equal(t, "2103105755", pipeline.chunks[0].Lines[0]["n_ej"])
}

func TestProcessUnwrapsRetryEnvelope(t *testing.T) {
	pipeline := &fakeProcessor{}
	consumer := newTestConsumer(t, pipeline, &fakeScheduler{}, &recordingEmitter{})

	chunk := dispatchedChunk()
	chunk.Attempt = 2
	msg := chunkMessage(t, enums.EventChunkRetryScheduled, payloads.ChunkRetryScheduled{
		Chunk: chunk,
		Cause: "contention",
	})

	result := consumer.process(context.Background(), msg)

	assert.True(t, result.ack)
	require.Len(t, pipeline.chunks, 1)
	assert.Equal(t, 2, pipeline.chunks[0].Attempt)
}

func TestProcessDropsUndecodableMessages(t *testing.T) {
	pipeline := &fakeProcessor{}
	consumer := newTestConsumer(t, pipeline, &fakeScheduler{}, &recordingEmitter{})

	cases := map[string]*pubsub.Message{
		"garbage body": {ID: "m", Data: []byte("not json"), Attributes: map[string]string{"event_type": string(enums.EventChunkDispatchAE)}},
		"unknown event type": chunkMessage(t, enums.OutboxEventType("mystery"), dispatchedChunk()),
		"failed validation":  chunkMessage(t, enums.EventChunkDispatchAE, payloads.ChunkDispatched{EntityType: "FINANCIAL_DATA_AE"}),
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			result := consumer.process(context.Background(), msg)
			assert.True(t, result.ack, "redelivery would fail identically")
		})
	}
	assert.Empty(t, pipeline.chunks)
}

func TestProcessSchedulesRateLimitRetry(t *testing.T) {
	pipeline := &fakeProcessor{err: apperrors.RateLimited("registry throttled", 30*time.Second)}
	emitter := &recordingEmitter{}
	consumer := newTestConsumer(t, pipeline, &fakeScheduler{}, emitter)

	msg := chunkMessage(t, enums.EventChunkDispatchAE, dispatchedChunk())
	result := consumer.process(context.Background(), msg)

	assert.True(t, result.ack, "the retry row is durable, so the message is done")
	require.Len(t, emitter.events, 1)
	event := emitter.events[0]
	assert.Equal(t, enums.EventChunkRetryScheduled, event.EventType)
	assert.Equal(t, 35*time.Second, event.Delay, "upstream cooldown plus padding")

	retry, ok := event.Data.(payloads.ChunkRetryScheduled)
	require.True(t, ok)
	assert.Equal(t, "rate_limit", retry.Cause)
	assert.Equal(t, 1, retry.Chunk.Attempt)
}

func TestProcessSchedulesContentionRetry(t *testing.T) {
	pipeline := &fakeProcessor{err: apperrors.New(apperrors.CodeConflict, "reference creation race")}
	emitter := &recordingEmitter{}
	consumer := newTestConsumer(t, pipeline, &fakeScheduler{}, emitter)

	msg := chunkMessage(t, enums.EventChunkDispatchAE, dispatchedChunk())
	result := consumer.process(context.Background(), msg)

	assert.True(t, result.ack)
	require.Len(t, emitter.events, 1)
	assert.Equal(t, 10*time.Second, emitter.events[0].Delay)
	retry := emitter.events[0].Data.(payloads.ChunkRetryScheduled)
	assert.Equal(t, "contention", retry.Cause)
}

func TestProcessNacksWhenRetryBudgetExhausted(t *testing.T) {
	pipeline := &fakeProcessor{err: apperrors.New(apperrors.CodeConflict, "reference creation race")}
	emitter := &recordingEmitter{}
	consumer := newTestConsumer(t, pipeline, &fakeScheduler{}, emitter)

	chunk := dispatchedChunk()
	chunk.Attempt = 3
	msg := chunkMessage(t, enums.EventChunkDispatchAE, chunk)
	result := consumer.process(context.Background(), msg)

	assert.True(t, result.nack)
	assert.Empty(t, emitter.events, "no further retry is scheduled past the budget")
}

func TestProcessNacksOnUnclassifiedFailure(t *testing.T) {
	pipeline := &fakeProcessor{err: errors.New("disk full")}
	consumer := newTestConsumer(t, pipeline, &fakeScheduler{}, &recordingEmitter{})

	msg := chunkMessage(t, enums.EventChunkDispatchAE, dispatchedChunk())
	result := consumer.process(context.Background(), msg)

	assert.True(t, result.nack)
}

func TestProcessNacksWhenRetryCannotBePersisted(t *testing.T) {
	pipeline := &fakeProcessor{err: apperrors.New(apperrors.CodeConflict, "race")}
	consumer := newTestConsumer(t, pipeline, &fakeScheduler{err: errors.New("db down")}, &recordingEmitter{})

	msg := chunkMessage(t, enums.EventChunkDispatchAE, dispatchedChunk())
	result := consumer.process(context.Background(), msg)

	assert.True(t, result.nack, "pubsub redelivery covers a lost retry row")
}
