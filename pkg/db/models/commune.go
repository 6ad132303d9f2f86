package models

import "time"

// Commune is an INSEE commune row enriched from the geo API.
type Commune struct {
	Code string `gorm:"column:code;primaryKey"`

	Label            *string `gorm:"column:label"`
	CodeDepartement  *string `gorm:"column:code_departement"`
	LabelDepartement *string `gorm:"column:label_departement"`
	CodeRegion       *string `gorm:"column:code_region"`
	LabelRegion      *string `gorm:"column:label_region"`
	CodeEpci         *string `gorm:"column:code_epci"`
	LabelEpci        *string `gorm:"column:label_epci"`

	// EnrichedAt stays nil while the geo lookup has not succeeded yet; the
	// cron refresh picks those rows up.
	EnrichedAt *time.Time `gorm:"column:enriched_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
