package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reconciliation links a dossier to an engagement. All links for a démarche
// share the run's timestamp so a batch is identifiable at a glance.
type Reconciliation struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DemarcheID   int64     `gorm:"column:demarche_id;not null;index"`
	DossierID    int64     `gorm:"column:dossier_id;not null;index"`
	EngagementID uuid.UUID `gorm:"column:engagement_id;type:uuid;not null;index"`
	ReconciledAt time.Time `gorm:"column:reconciled_at;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *Reconciliation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
