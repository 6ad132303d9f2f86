// Package payment persists disbursement lines (CP). Payments are insert-only;
// duplicate protection runs on the technical import key, never on n_dp.
package payment

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ExistsByImportKeyTx reports whether the (taskid, lineno) technical key has
// already been ingested.
func (r *Repository) ExistsByImportKeyTx(tx *gorm.DB, taskID string, lineNo int) (bool, error) {
	var count int64
	err := tx.Model(&models.Payment{}).
		Where("file_import_taskid = ? AND file_import_lineno = ?", taskID, lineNo).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) CreateTx(tx *gorm.DB, row *models.Payment) error {
	return tx.Create(row).Error
}

// FindEngagementIDTx resolves the owning engagement's id for the AE
// back-reference; nil when the engagement is unknown (orphan payment).
func (r *Repository) FindEngagementIDTx(tx *gorm.DB, nEj string, nPosteEj int, source enums.DataSource) (*uuid.UUID, error) {
	var row models.Engagement
	err := tx.Select("id").
		Where("n_ej = ? AND n_poste_ej = ? AND data_source = ?", nEj, nPosteEj, source).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	id := row.ID
	return &id, nil
}
