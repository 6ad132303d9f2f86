package models

import "time"

// Siret is a 14-digit legal-entity identifier with denormalized fields
// populated by the companies-registry enrichment call.
type Siret struct {
	Code string `gorm:"column:code;primaryKey"`

	Denomination       *string `gorm:"column:denomination"`
	Adresse            *string `gorm:"column:adresse"`
	CodeCommune        *string `gorm:"column:code_commune;index"`
	CategorieJuridique *string `gorm:"column:categorie_juridique"`
	CodeQpv            *string `gorm:"column:code_qpv"`

	EnrichedAt *time.Time `gorm:"column:enriched_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
