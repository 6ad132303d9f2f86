package siret

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/entreprise"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/logger"
	retrypkg "github.com/budget-france/chorus-backend/pkg/retry"
)

// fetchPolicy absorbs transient registry hiccups in-process. Rate limits are
// never retried here; the chunk reschedule path owns those.
var fetchPolicy = retrypkg.Contention(3, 500*time.Millisecond)

// quotaGate bounds outbound registry calls across worker replicas.
type quotaGate interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Service ensures a siret row exists and is enriched with registry data.
type Service struct {
	fetcher entreprise.Fetcher
	quota   quotaGate
	limit   int64
	window  time.Duration
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(fetcher entreprise.Fetcher, logg *logger.Logger) *Service {
	return &Service{fetcher: fetcher, logg: logg, now: time.Now}
}

// WithQuota caps registry calls to limit per window, shared across replicas.
// Exceeding the cap surfaces as a rate-limit error before the call is made,
// so the chunk is rescheduled without burning upstream quota.
func (s *Service) WithQuota(quota quotaGate, limit int64, window time.Duration) *Service {
	s.quota = quota
	s.limit = limit
	s.window = window
	return s
}

// Ensure creates or enriches the siret row inside the caller's transaction.
// A rate-limit error from the registry propagates unchanged; the pipeline
// converts it into a scheduled retry of the whole chunk.
func (s *Service) Ensure(ctx context.Context, tx *gorm.DB, code string) error {
	var existing models.Siret
	err := tx.Where("code = ?", code).First(&existing).Error
	switch {
	case err == nil:
		if existing.EnrichedAt != nil {
			return nil
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to enrichment
	default:
		return err
	}

	if err := s.reserveQuota(ctx); err != nil {
		return err
	}

	etab, err := s.fetch(ctx, code)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeRateLimit {
			return err
		}
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			// Unknown to the registry; keep the bare row so the line still
			// carries its identifier.
			return s.upsert(tx, models.Siret{Code: code})
		}
		return err
	}

	enrichedAt := s.now()
	row := models.Siret{
		Code:               code,
		Denomination:       etab.Denomination,
		Adresse:            etab.Adresse,
		CodeCommune:        etab.CodeCommune,
		CategorieJuridique: etab.CategorieJuridique,
		CodeQpv:            etab.CodeQpv,
		EnrichedAt:         &enrichedAt,
	}
	if err := s.upsert(tx, row); err != nil {
		return err
	}

	if etab.CodeCommune != nil && *etab.CodeCommune != "" {
		if err := s.ensureCommune(tx, *etab.CodeCommune); err != nil {
			return err
		}
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithField(ctx, "siret", code), "siret enriched")
	}
	return nil
}

// fetch calls the registry under the retry policy. Only dependency failures
// (timeouts, 5xx) are worth another in-process attempt.
func (s *Service) fetch(ctx context.Context, code string) (*entreprise.Etablissement, error) {
	var etab *entreprise.Etablissement
	err := fetchPolicy.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		etab, fetchErr = s.fetcher.FetchEtablissement(ctx, code)
		if fetchErr != nil && apperrors.CodeOf(fetchErr) == apperrors.CodeDependency {
			return retrypkg.Retryable(fetchErr)
		}
		return fetchErr
	})
	return etab, err
}

func (s *Service) reserveQuota(ctx context.Context) error {
	if s.quota == nil || s.limit <= 0 {
		return nil
	}
	allowed, _, err := s.quota.FixedWindowAllow(ctx, "entreprise", s.limit, s.window)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.RateLimited("registry call quota exhausted", s.window)
	}
	return nil
}

func (s *Service) upsert(tx *gorm.DB, row models.Siret) error {
	var count int64
	if err := tx.Model(&models.Siret{}).Where("code = ?", row.Code).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return tx.Model(&models.Siret{}).Where("code = ?", row.Code).Updates(map[string]any{
			"denomination":        row.Denomination,
			"adresse":             row.Adresse,
			"code_commune":        row.CodeCommune,
			"categorie_juridique": row.CategorieJuridique,
			"code_qpv":            row.CodeQpv,
			"enriched_at":         row.EnrichedAt,
		}).Error
	}
	return tx.Create(&row).Error
}

// ensureCommune creates a bare commune row; the geo enrichment cron fills in
// labels later.
func (s *Service) ensureCommune(tx *gorm.DB, code string) error {
	var count int64
	if err := tx.Model(&models.Commune{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&models.Commune{Code: code}).Error
}
