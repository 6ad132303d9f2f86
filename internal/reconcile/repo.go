package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/budget-france/chorus-backend/pkg/db"
	"github.com/budget-france/chorus-backend/pkg/db/models"
)

// dossierStateAccepted is the only state reconciliation considers; dossiers
// still in draft or instruction are skipped entirely.
const dossierStateAccepted = "accepte"

// Repository gives the reconciliation run its database surface. Every method
// takes the run's transaction so a failed run leaves no partial link set.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) FindDemarcheTx(tx *gorm.DB, id int64) (*models.Demarche, error) {
	var demarche models.Demarche
	err := tx.First(&demarche, "id = ?", id).Error
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &demarche, nil
}

func (r *Repository) AcceptedDossiersTx(tx *gorm.DB, demarcheID int64) ([]models.Dossier, error) {
	var dossiers []models.Dossier
	err := tx.
		Preload("FieldValues").
		Where("demarche_id = ? AND state = ?", demarcheID, dossierStateAccepted).
		Order("id").
		Find(&dossiers).Error
	if err != nil {
		return nil, err
	}
	return dossiers, nil
}

// ClearLinksTx removes every prior link of the démarche; each run is a full
// recompute, never incremental.
func (r *Repository) ClearLinksTx(tx *gorm.DB, demarcheID int64) error {
	return tx.Where("demarche_id = ?", demarcheID).Delete(&models.Reconciliation{}).Error
}

func (r *Repository) CreateLinksTx(tx *gorm.DB, links []models.Reconciliation) error {
	if len(links) == 0 {
		return nil
	}
	return tx.Create(&links).Error
}

// FindByEjTx returns all engagements carrying the EJ number, across every
// poste. A single commitment is validly represented by several postes, so
// there is no ambiguity guard on this lookup.
func (r *Repository) FindByEjTx(tx *gorm.DB, nEj string) ([]models.Engagement, error) {
	var rows []models.Engagement
	err := tx.Where("n_ej = ?", nEj).Order("n_poste_ej").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindBySiretAmountTx returns the engagements of the legal entity that carry
// at least one amount-history entry equal to the requested amount.
func (r *Repository) FindBySiretAmountTx(tx *gorm.DB, siretCode string, amount decimal.Decimal) ([]models.Engagement, error) {
	var rows []models.Engagement
	err := tx.
		Distinct("engagements.*").
		Joins("JOIN engagement_amounts ON engagement_amounts.engagement_id = engagements.id").
		Where("engagements.siret = ?", siretCode).
		Where("engagement_amounts.montant = ?", amount).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CommuneOfSiretTx resolves the commune reference behind a siret; nil when
// either hop is missing.
func (r *Repository) CommuneOfSiretTx(tx *gorm.DB, siretCode string) (*models.Commune, error) {
	var siretRow models.Siret
	err := tx.First(&siretRow, "code = ?", siretCode).Error
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if siretRow.CodeCommune == nil {
		return nil, nil
	}
	var commune models.Commune
	err = tx.First(&commune, "code = ?", *siretRow.CodeCommune).Error
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &commune, nil
}

func (r *Repository) StampDemarcheTx(tx *gorm.DB, demarcheID int64, at time.Time) error {
	return tx.Model(&models.Demarche{}).
		Where("id = ?", demarcheID).
		Update("reconciled_at", at).Error
}
