// Package reconcile matches accepted dossiers of a démarche against ingested
// engagements and persists the resulting links.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/enums"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/logger"
	"github.com/budget-france/chorus-backend/pkg/outbox"
	"github.com/budget-france/chorus-backend/pkg/outbox/payloads"
)

// fieldMapping maps the semantic roles reconciliation understands to the
// dossier field ids carrying them. Stored per démarche as raw JSON.
type fieldMapping struct {
	ChampEJ      *string `json:"champEJ"`
	ChampSiret   *string `json:"champSiret"`
	ChampMontant *string `json:"champMontant"`
}

// contextFilters are the optional equality constraints applied to
// siret+amount matches. An unset filter always passes.
type contextFilters struct {
	CentreCouts        *string `json:"centreCouts"`
	DomaineFonctionnel *string `json:"domaineFonctionnel"`
	RefProg            *string `json:"refProg"`
	Annee              *int    `json:"annee"`
	Commune            *string `json:"commune"`
	Epci               *string `json:"epci"`
	Departement        *string `json:"departement"`
	Region             *string `json:"region"`
}

func (f contextFilters) needsCommune() bool {
	return f.Commune != nil || f.Epci != nil || f.Departement != nil || f.Region != nil
}

type dbClient interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type linkStore interface {
	FindDemarcheTx(tx *gorm.DB, id int64) (*models.Demarche, error)
	AcceptedDossiersTx(tx *gorm.DB, demarcheID int64) ([]models.Dossier, error)
	ClearLinksTx(tx *gorm.DB, demarcheID int64) error
	CreateLinksTx(tx *gorm.DB, links []models.Reconciliation) error
	FindByEjTx(tx *gorm.DB, nEj string) ([]models.Engagement, error)
	FindBySiretAmountTx(tx *gorm.DB, siretCode string, amount decimal.Decimal) ([]models.Engagement, error)
	CommuneOfSiretTx(tx *gorm.DB, siretCode string) (*models.Commune, error)
	StampDemarcheTx(tx *gorm.DB, demarcheID int64, at time.Time) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	DB     dbClient
	Repo   linkStore
	Events eventEmitter
	Logger *logger.Logger
}

// Service recomputes the links of one démarche per run. A run is a single
// transaction: clear, rematch, stamp.
type Service struct {
	db     dbClient
	repo   linkStore
	events eventEmitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db client is required")
	}
	if params.Repo == nil {
		return nil, errors.New("repository is required")
	}
	if params.Events == nil {
		return nil, errors.New("event emitter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:     params.DB,
		repo:   params.Repo,
		events: params.Events,
		logg:   params.Logger,
		now:    time.Now,
	}, nil
}

// Reconcile clears and recomputes every link of the démarche. All links of
// the run share one timestamp so a batch is identifiable at a glance.
func (s *Service) Reconcile(ctx context.Context, demarcheID int64) error {
	ctx = s.logg.WithField(ctx, "demarche_id", demarcheID)

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		demarche, err := s.repo.FindDemarcheTx(tx, demarcheID)
		if err != nil {
			return err
		}
		if demarche == nil {
			return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("demarche %d not found", demarcheID))
		}

		mapping, filters, err := decodeSettings(demarche)
		if err != nil {
			return err
		}

		if err := s.repo.ClearLinksTx(tx, demarcheID); err != nil {
			return err
		}

		dossiers, err := s.repo.AcceptedDossiersTx(tx, demarcheID)
		if err != nil {
			return err
		}

		runAt := s.now().UTC()
		communes := map[string]*models.Commune{}
		var links []models.Reconciliation
		for _, dossier := range dossiers {
			matches, err := s.matchDossier(ctx, tx, dossier, mapping, filters, communes)
			if err != nil {
				return err
			}
			for _, engagement := range matches {
				links = append(links, models.Reconciliation{
					DemarcheID:   demarcheID,
					DossierID:    dossier.ID,
					EngagementID: engagement.ID,
					ReconciledAt: runAt,
				})
			}
		}

		if err := s.repo.CreateLinksTx(tx, links); err != nil {
			return err
		}
		if err := s.repo.StampDemarcheTx(tx, demarcheID, runAt); err != nil {
			return err
		}

		err = s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReconciliationComplete,
			AggregateType: enums.AggregateDemarche,
			AggregateID:   fmt.Sprintf("%d", demarcheID),
			Data: payloads.ReconciliationCompleted{
				DemarcheID:   demarcheID,
				LinkCount:    len(links),
				ReconciledAt: runAt,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}

		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"dossier_count": len(dossiers),
			"link_count":    len(links),
		}), "reconciliation run complete")
		return nil
	})
}

// matchDossier picks the matching strategy from the populated roles, EJ
// number first.
func (s *Service) matchDossier(
	ctx context.Context,
	tx *gorm.DB,
	dossier models.Dossier,
	mapping fieldMapping,
	filters contextFilters,
	communes map[string]*models.Commune,
) ([]models.Engagement, error) {
	ctx = s.logg.WithField(ctx, "dossier_id", dossier.ID)
	values := fieldValuesByID(dossier)

	if nEj := mappedValue(values, mapping.ChampEJ); nEj != nil {
		return s.repo.FindByEjTx(tx, *nEj)
	}

	if rawAmount := mappedValue(values, mapping.ChampMontant); rawAmount != nil {
		siretCode := mappedValue(values, mapping.ChampSiret)
		if siretCode == nil {
			siretCode = dossier.Siret
		}
		if siretCode == nil {
			s.logg.Info(ctx, "dossier carries an amount but no siret, skipping")
			return nil, nil
		}
		return s.matchBySiretAmount(ctx, tx, *siretCode, *rawAmount, filters, communes)
	}

	s.logg.Info(ctx, "reconciliation method not implemented")
	return nil, nil
}

func (s *Service) matchBySiretAmount(
	ctx context.Context,
	tx *gorm.DB,
	siretCode string,
	rawAmount string,
	filters contextFilters,
	communes map[string]*models.Commune,
) ([]models.Engagement, error) {
	amount, err := ParseDossierAmount(rawAmount)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "montant", rawAmount), "unparseable dossier amount, skipping")
		return nil, nil
	}

	candidates, err := s.repo.FindBySiretAmountTx(tx, siretCode, amount)
	if err != nil {
		return nil, err
	}

	var matched []models.Engagement
	for _, candidate := range candidates {
		keep, err := s.passesFilters(tx, candidate, filters, communes)
		if err != nil {
			return nil, err
		}
		if keep {
			matched = append(matched, candidate)
		}
	}

	// Ambiguity is a no-match, never an arbitrary pick.
	if len(matched) > 1 {
		s.logg.Info(s.logg.WithField(ctx, "candidate_count", len(matched)), "ambiguous siret+amount match, no links created")
		return nil, nil
	}
	return matched, nil
}

func (s *Service) passesFilters(
	tx *gorm.DB,
	engagement models.Engagement,
	filters contextFilters,
	communes map[string]*models.Commune,
) (bool, error) {
	if !stringFilterPasses(filters.CentreCouts, engagement.CentreCouts) {
		return false, nil
	}
	if !stringFilterPasses(filters.DomaineFonctionnel, engagement.DomaineFonctionnel) {
		return false, nil
	}
	if !stringFilterPasses(filters.RefProg, engagement.ReferentielProgrammation) {
		return false, nil
	}
	if filters.Annee != nil && *filters.Annee != engagement.Annee {
		return false, nil
	}

	if !filters.needsCommune() {
		return true, nil
	}
	if engagement.Siret == nil {
		return false, nil
	}
	commune, err := s.communeOf(tx, *engagement.Siret, communes)
	if err != nil {
		return false, err
	}
	if commune == nil {
		return false, nil
	}
	if !stringFilterPasses(filters.Commune, &commune.Code) {
		return false, nil
	}
	if !stringFilterPasses(filters.Epci, commune.CodeEpci) {
		return false, nil
	}
	if !stringFilterPasses(filters.Departement, commune.CodeDepartement) {
		return false, nil
	}
	if !stringFilterPasses(filters.Region, commune.CodeRegion) {
		return false, nil
	}
	return true, nil
}

// communeOf memoizes the siret-to-commune hop for the duration of a run.
func (s *Service) communeOf(tx *gorm.DB, siretCode string, communes map[string]*models.Commune) (*models.Commune, error) {
	if commune, seen := communes[siretCode]; seen {
		return commune, nil
	}
	commune, err := s.repo.CommuneOfSiretTx(tx, siretCode)
	if err != nil {
		return nil, err
	}
	communes[siretCode] = commune
	return commune, nil
}

func decodeSettings(demarche *models.Demarche) (fieldMapping, contextFilters, error) {
	var mapping fieldMapping
	var filters contextFilters
	if len(demarche.FieldMapping) > 0 {
		if err := json.Unmarshal(demarche.FieldMapping, &mapping); err != nil {
			return mapping, filters, apperrors.Wrap(apperrors.CodeConfig, "decoding field mapping", err)
		}
	}
	if len(demarche.ContextFilters) > 0 {
		if err := json.Unmarshal(demarche.ContextFilters, &filters); err != nil {
			return mapping, filters, apperrors.Wrap(apperrors.CodeConfig, "decoding context filters", err)
		}
	}
	return mapping, filters, nil
}

func fieldValuesByID(dossier models.Dossier) map[string]string {
	values := make(map[string]string, len(dossier.FieldValues))
	for _, field := range dossier.FieldValues {
		if field.Value == nil {
			continue
		}
		value := strings.TrimSpace(*field.Value)
		if value == "" {
			continue
		}
		values[field.FieldID] = value
	}
	return values
}

func mappedValue(values map[string]string, fieldID *string) *string {
	if fieldID == nil {
		return nil
	}
	value, ok := values[*fieldID]
	if !ok {
		return nil
	}
	return &value
}

func stringFilterPasses(filter, actual *string) bool {
	if filter == nil {
		return true
	}
	return actual != nil && *filter == *actual
}

// ParseDossierAmount normalizes a free-text dossier amount. Everything except
// digits and separators is stripped, then the decimal comma becomes a dot.
func ParseDossierAmount(raw string) (decimal.Decimal, error) {
	var builder strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			builder.WriteRune(r)
		}
	}
	normalized := strings.ReplaceAll(builder.String(), ",", ".")
	if normalized == "" {
		return decimal.Decimal{}, fmt.Errorf("amount %q carries no digits", raw)
	}
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	return amount, nil
}
