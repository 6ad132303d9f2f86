package models

import (
	"encoding/json"
	"time"
)

// Demarche is an external administrative process whose accepted dossiers are
// reconciled against ingested engagements. Rows are synced by an out-of-scope
// collaborator; this service reads them and stamps reconciliation runs.
type Demarche struct {
	ID    int64   `gorm:"column:id;primaryKey"`
	Title *string `gorm:"column:title"`

	// FieldMapping maps semantic roles (EJ number, SIRET, amount) to the
	// dossier field ids carrying them.
	FieldMapping json.RawMessage `gorm:"column:field_mapping;type:jsonb"`
	// ContextFilters holds the optional equality constraints applied to
	// SIRET+amount matches.
	ContextFilters json.RawMessage `gorm:"column:context_filters;type:jsonb"`

	ReconciledAt *time.Time `gorm:"column:reconciled_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
