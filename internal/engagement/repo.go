package engagement

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

// FindByIdentityTx loads the engagement for the identity key, with its amount
// history, or nil when unseen.
func (r *Repository) FindByIdentityTx(tx *gorm.DB, nEj string, nPosteEj int, source enums.DataSource) (*models.Engagement, error) {
	var row models.Engagement
	err := tx.Preload("Amounts").
		Where("n_ej = ? AND n_poste_ej = ? AND data_source = ?", nEj, nPosteEj, source).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repository) CreateTx(tx *gorm.DB, row *models.Engagement) error {
	return tx.Create(row).Error
}

// UpdateTx persists the scalar columns of an already-loaded engagement.
// Amount history rows are written separately via ReplaceAmountsTx.
func (r *Repository) UpdateTx(tx *gorm.DB, row *models.Engagement) error {
	return tx.Omit("Amounts").Save(row).Error
}

// ReplaceAmountsTx rewrites the amount history from the merged entries.
func (r *Repository) ReplaceAmountsTx(tx *gorm.DB, engagementID uuid.UUID, entries []AmountEntry) error {
	if err := tx.Where("engagement_id = ?", engagementID).Delete(&models.EngagementAmount{}).Error; err != nil {
		return err
	}
	for _, entry := range entries {
		row := models.EngagementAmount{
			EngagementID: engagementID,
			Montant:      entry.Montant,
			Annee:        entry.Annee,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// HistoryOf converts stored amount rows to merge entries.
func HistoryOf(row *models.Engagement) []AmountEntry {
	if row == nil {
		return nil
	}
	entries := make([]AmountEntry, 0, len(row.Amounts))
	for _, amount := range row.Amounts {
		entries = append(entries, AmountEntry{Montant: amount.Montant, Annee: amount.Annee})
	}
	return entries
}
