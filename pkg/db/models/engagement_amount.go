package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EngagementAmount is one (amount, fiscal year) entry of an engagement's
// amount history. At most one positive entry exists per engagement; negative
// corrections accumulate per year.
type EngagementAmount struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EngagementID uuid.UUID       `gorm:"column:engagement_id;type:uuid;not null;index"`
	Montant      decimal.Decimal `gorm:"column:montant;type:numeric(14,2);not null"`
	Annee        int             `gorm:"column:annee;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *EngagementAmount) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
