package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/enums"
)

// Engagement is a budgetary commitment line (AE) keyed by
// (n_ej, n_poste_ej, data_source).
type Engagement struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NEj        string           `gorm:"column:n_ej;not null;uniqueIndex:ux_engagements_identity,priority:1"`
	NPosteEj   int              `gorm:"column:n_poste_ej;not null;uniqueIndex:ux_engagements_identity,priority:2"`
	DataSource enums.DataSource `gorm:"column:data_source;not null;uniqueIndex:ux_engagements_identity,priority:3"`

	SourceRegion string `gorm:"column:source_region;not null"`
	// Annee is the headline fiscal year. A negative correction never moves
	// it backward; only positive amounts may update it.
	Annee int `gorm:"column:annee;not null"`

	Programme                      *string `gorm:"column:programme"`
	DomaineFonctionnel             *string `gorm:"column:domaine_fonctionnel"`
	CentreCouts                    *string `gorm:"column:centre_couts"`
	ReferentielProgrammation       *string `gorm:"column:referentiel_programmation"`
	FournisseurTitulaire           *string `gorm:"column:fournisseur_titulaire"`
	Siret                          *string `gorm:"column:siret"`
	LocalisationInterministerielle *string `gorm:"column:localisation_interministerielle"`
	GroupeMarchandise              *string `gorm:"column:groupe_marchandise"`
	ContratEtatRegion              *string `gorm:"column:contrat_etat_region"`
	CompteBudgetaire               *string `gorm:"column:compte_budgetaire"`

	DateModification *time.Time `gorm:"column:date_modification"`

	FileImportTaskID string `gorm:"column:file_import_taskid;not null"`
	FileImportLineNo int    `gorm:"column:file_import_lineno;not null"`

	Amounts []EngagementAmount `gorm:"foreignKey:EngagementID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *Engagement) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
