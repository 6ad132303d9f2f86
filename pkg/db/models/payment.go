package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/enums"
)

// Payment is a disbursement line (CP). n_dp may legitimately repeat;
// de-duplication is enforced on the technical import key instead.
type Payment struct {
	ID  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NDp string    `gorm:"column:n_dp;not null"`

	NEj        *string          `gorm:"column:n_ej"`
	NPosteEj   *int             `gorm:"column:n_poste_ej"`
	DataSource enums.DataSource `gorm:"column:data_source;not null"`

	// EngagementID is resolved at insert time; nil marks an orphan payment.
	// Orphans are not retroactively re-linked when their engagement arrives
	// in a later chunk.
	EngagementID *uuid.UUID `gorm:"column:engagement_id;type:uuid;index"`

	SourceRegion string `gorm:"column:source_region;not null"`
	Annee        int    `gorm:"column:annee;not null"`

	Programme                *string `gorm:"column:programme"`
	DomaineFonctionnel       *string `gorm:"column:domaine_fonctionnel"`
	CentreCouts              *string `gorm:"column:centre_couts"`
	ReferentielProgrammation *string `gorm:"column:referentiel_programmation"`
	FournisseurPaye          *string `gorm:"column:fournisseur_paye"`
	Siret                    *string `gorm:"column:siret"`

	Montant decimal.Decimal `gorm:"column:montant;type:numeric(14,2);not null"`

	DateBaseDp             *time.Time `gorm:"column:date_base_dp"`
	DateDerniereOperationDp *time.Time `gorm:"column:date_derniere_operation_dp"`

	FileImportTaskID string `gorm:"column:file_import_taskid;not null;uniqueIndex:ux_payments_import_key,priority:1"`
	FileImportLineNo int    `gorm:"column:file_import_lineno;not null;uniqueIndex:ux_payments_import_key,priority:2"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
