package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateImportChunk OutboxAggregateType = "import_chunk"
	AggregateImportTask  OutboxAggregateType = "import_task"
	AggregateDemarche    OutboxAggregateType = "demarche"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateImportChunk,
	AggregateImportTask,
	AggregateDemarche,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventChunkDispatchAE        OutboxEventType = "chunk_dispatch_ae"
	EventChunkDispatchCP        OutboxEventType = "chunk_dispatch_cp"
	EventChunkRetryScheduled    OutboxEventType = "chunk_retry_scheduled"
	EventImportTaskCompleted    OutboxEventType = "import_task_completed"
	EventReconciliationComplete OutboxEventType = "reconciliation_completed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventChunkDispatchAE,
	EventChunkDispatchCP,
	EventChunkRetryScheduled,
	EventImportTaskCompleted,
	EventReconciliationComplete,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
