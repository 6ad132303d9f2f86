package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/db/models"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/geo"
	"github.com/budget-france/chorus-backend/pkg/logger"
)

const defaultCommuneBatchSize = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type CommuneEnrichmentJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Fetcher   geo.Fetcher
	BatchSize int
}

// NewCommuneEnrichmentJob resolves commune rows the pipeline created as bare
// codes. Each cycle picks up the oldest unenriched rows; a row the geo API
// does not know stays pending and is retried on the next cycle.
func NewCommuneEnrichmentJob(params CommuneEnrichmentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Fetcher == nil {
		return nil, fmt.Errorf("geo fetcher required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultCommuneBatchSize
	}
	return &communeEnrichmentJob{
		logg:      params.Logger,
		db:        params.DB,
		fetcher:   params.Fetcher,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type communeEnrichmentJob struct {
	logg      *logger.Logger
	db        txRunner
	fetcher   geo.Fetcher
	batchSize int
	now       func() time.Time
}

func (j *communeEnrichmentJob) Name() string { return "commune-enrichment" }

func (j *communeEnrichmentJob) Run(ctx context.Context) error {
	var pending []models.Commune
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Where("enriched_at IS NULL").
			Order("created_at").
			Limit(j.batchSize).
			Find(&pending).Error
	})
	if err != nil {
		return fmt.Errorf("loading pending communes: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	var errs error
	enriched := 0
	for _, commune := range pending {
		if err := j.enrichOne(ctx, commune.Code); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("commune %s: %w", commune.Code, err))
			continue
		}
		enriched++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"pending":  len(pending),
		"enriched": enriched,
	})
	j.logg.Info(logCtx, "commune enrichment pass complete")
	return errs
}

func (j *communeEnrichmentJob) enrichOne(ctx context.Context, code string) error {
	info, err := j.fetcher.FetchCommune(ctx, code)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			j.logg.Warn(j.logg.WithField(ctx, "code_commune", code), "commune unknown to geo api, left pending")
			return nil
		}
		return err
	}

	enrichedAt := j.now().UTC()
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.Commune{}).
			Where("code = ?", code).
			Updates(map[string]any{
				"label":             info.Label,
				"code_departement":  info.CodeDepartement,
				"label_departement": info.LabelDepartement,
				"code_region":       info.CodeRegion,
				"label_region":      info.LabelRegion,
				"code_epci":         info.CodeEpci,
				"label_epci":        info.LabelEpci,
				"enriched_at":       enrichedAt,
			}).Error
	})
}
