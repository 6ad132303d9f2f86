// Package payloads defines the typed event bodies carried through the outbox.
package payloads

import "time"

// LineRecord is the flat field map of one accounting-export line as shaped by
// the upstream CSV reader. Keys follow the Chorus export column names.
type LineRecord map[string]string

// SubmissionContext identifies the originating import run.
type SubmissionContext struct {
	SourceRegion string `json:"sourceRegion" validate:"required"`
	Annee        int    `json:"annee" validate:"required"`
	Username     string `json:"username"`
	ImportTaskID string `json:"importTaskId" validate:"required"`
}

// ChunkDispatched is one unit of work for the ingest pipeline. StartIndex is
// the zero-based index of the chunk's first line within the original file, so
// the (taskid, lineno) de-duplication key survives re-chunking.
type ChunkDispatched struct {
	EntityType string            `json:"entityType" validate:"required"`
	DataSource string            `json:"dataSource" validate:"required"`
	Submission SubmissionContext `json:"submission" validate:"required"`
	StartIndex int               `json:"startIndex" validate:"gte=0"`
	Lines      []LineRecord      `json:"lines" validate:"required,min=1,dive,required"`
	// Attempt counts prior deliveries of this same chunk; zero on first
	// dispatch.
	Attempt int `json:"attempt" validate:"gte=0"`
	// Children carries payment chunks buffered behind the engagements of
	// this chunk. They are correlated by the submission's line ordering,
	// not by a database join, and are dispatched once this chunk commits.
	Children []ChildChunk `json:"children,omitempty" validate:"dive"`
}

// ChildChunk is a buffered batch of lines released into the pipeline after
// the parent chunk commits.
type ChildChunk struct {
	EntityType string       `json:"entityType" validate:"required"`
	StartIndex int          `json:"startIndex" validate:"gte=0"`
	Lines      []LineRecord `json:"lines" validate:"required,min=1,dive,required"`
}

// ChunkRetryScheduled wraps a chunk redispatched after a transient failure.
type ChunkRetryScheduled struct {
	Chunk     ChunkDispatched `json:"chunk" validate:"required"`
	Cause     string          `json:"cause" validate:"required"`
	NotBefore time.Time       `json:"notBefore"`
}

// ImportTaskCompleted signals every chunk of an import task has been
// committed.
type ImportTaskCompleted struct {
	ImportTaskID string `json:"importTaskId" validate:"required"`
	LineCount    int    `json:"lineCount" validate:"gte=0"`
}

// ReconciliationCompleted signals a démarche reconciliation run finished.
type ReconciliationCompleted struct {
	DemarcheID   int64     `json:"demarcheId" validate:"required"`
	LinkCount    int       `json:"linkCount" validate:"gte=0"`
	ReconciledAt time.Time `json:"reconciledAt"`
}
