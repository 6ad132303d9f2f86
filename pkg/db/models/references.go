package models

import "time"

// Reference rows are created lazily the first time a financial line mentions
// an unseen code. Labels are backfilled by the out-of-band sync job, so every
// label column is nullable.

// Program is a budgetary program ("programme", 3-digit code).
type Program struct {
	Code          string    `gorm:"column:code;primaryKey"`
	Label         *string   `gorm:"column:label"`
	CodeMinistere *string   `gorm:"column:code_ministere"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CostCenter is a "centre de coûts" row.
type CostCenter struct {
	Code      string    `gorm:"column:code;primaryKey"`
	Label     *string   `gorm:"column:label"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// FunctionalDomain is a "domaine fonctionnel" row.
type FunctionalDomain struct {
	Code      string    `gorm:"column:code;primaryKey"`
	Label     *string   `gorm:"column:label"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Supplier is a Chorus supplier ("fournisseur") row.
type Supplier struct {
	Code      string    `gorm:"column:code;primaryKey"`
	Label     *string   `gorm:"column:label"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CommodityGroup is a "groupe de marchandises" row.
type CommodityGroup struct {
	Code      string    `gorm:"column:code;primaryKey"`
	Label     *string   `gorm:"column:label"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// InterministerialLocation is a "localisation interministérielle" row.
type InterministerialLocation struct {
	Code      string    `gorm:"column:code;primaryKey"`
	Label     *string   `gorm:"column:label"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ProgrammingPlan is a "référentiel de programmation" row.
type ProgrammingPlan struct {
	Code      string    `gorm:"column:code;primaryKey"`
	Label     *string   `gorm:"column:label"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Region is an administrative region row.
type Region struct {
	Code      string    `gorm:"column:code;primaryKey"`
	Label     *string   `gorm:"column:label"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
