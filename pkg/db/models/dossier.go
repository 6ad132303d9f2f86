package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dossier is one submission under a démarche.
type Dossier struct {
	ID         int64   `gorm:"column:id;primaryKey"`
	DemarcheID int64   `gorm:"column:demarche_id;not null;index"`
	State      string  `gorm:"column:state;not null"`
	Siret      *string `gorm:"column:siret"`

	FieldValues []DossierFieldValue `gorm:"foreignKey:DossierID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// DossierFieldValue is one raw field value extracted from a dossier.
type DossierFieldValue struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DossierID int64     `gorm:"column:dossier_id;not null;index"`
	FieldID   string    `gorm:"column:field_id;not null"`
	Value     *string   `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (v *DossierFieldValue) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
