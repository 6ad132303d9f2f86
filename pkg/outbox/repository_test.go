package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/enums"
	"github.com/budget-france/chorus-backend/pkg/logger"
)

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		publish_after DATETIME NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`).Error)
	return db
}

func insertEvent(t *testing.T, repo *Repository, db *gorm.DB, aggregateID string, publishAfter time.Time) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		EventType:     enums.EventChunkDispatchAE,
		AggregateType: enums.AggregateImportChunk,
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{}`),
		PublishAfter:  publishAfter,
	}
	require.NoError(t, repo.Insert(db, row))
	var stored models.OutboxEvent
	require.NoError(t, db.First(&stored, "aggregate_id = ?", aggregateID).Error)
	return stored
}

func TestFetchDueForPublishSkipsDeferredRows(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)
	now := time.Now()

	insertEvent(t, repo, db, "due", now.Add(-time.Minute))
	insertEvent(t, repo, db, "deferred", now.Add(time.Hour))

	rows, err := repo.FetchDueForPublish(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "due", rows[0].AggregateID, "a future publish_after hides the row")
}

func TestFetchDueForPublishSkipsPublishedRows(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)

	row := insertEvent(t, repo, db, "done", time.Now().Add(-time.Minute))
	require.NoError(t, repo.MarkPublishedTx(db, row.ID))

	rows, err := repo.FetchDueForPublish(db, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkFailedDefersTheRow(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)

	row := insertEvent(t, repo, db, "flaky", time.Now().Add(-time.Minute))
	require.NoError(t, repo.MarkFailedTx(db, row.ID, errors.New("broker unavailable"), time.Hour))

	rows, err := repo.FetchDueForPublish(db, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows, "a failed row waits out its retry delay")

	var stored models.OutboxEvent
	require.NoError(t, db.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "broker unavailable")
}

func TestMarkTerminalParksTheRow(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)

	row := insertEvent(t, repo, db, "poison", time.Now().Add(-time.Minute))
	require.NoError(t, repo.MarkTerminalTx(db, row.ID, errors.New("unroutable event"), 5))

	rows, err := repo.FetchDueForPublish(db, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows, "a parked row never comes due again")
}

func TestDeletePublishedBefore(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	old := insertEvent(t, repo, db, "old", time.Now().Add(-time.Minute))
	require.NoError(t, repo.MarkPublishedTx(db, old.ID))
	insertEvent(t, repo, db, "pending", time.Now().Add(-time.Minute))

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "unpublished rows survive retention, however old")
}

func TestServiceEmitWritesDeferredEnvelope(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	service := NewService(repo, logg)

	err := service.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventChunkRetryScheduled,
		AggregateType: enums.AggregateImportChunk,
		AggregateID:   "task-1:FINANCIAL_DATA_AE:0",
		Data:          map[string]any{"cause": "rate_limit"},
		Version:       1,
		Delay:         30 * time.Second,
	})
	require.NoError(t, err)

	var stored models.OutboxEvent
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, enums.EventChunkRetryScheduled, stored.EventType)
	assert.True(t, stored.PublishAfter.After(time.Now().Add(20*time.Second)), "the delay lands in publish_after")

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(stored.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)

	rows, err := repo.FetchDueForPublish(db, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows, "the scheduled retry is invisible until it comes due")
}

func TestServiceEmitRequiresTransaction(t *testing.T) {
	db := setupOutboxDB(t)
	service := NewService(NewRepository(db), nil)

	err := service.Emit(context.Background(), nil, DomainEvent{})
	require.Error(t, err)
}
