package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/logger"
)

type reconciler interface {
	Reconcile(ctx context.Context, demarcheID int64) error
}

type ReconcileJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Reconciler reconciler
}

// NewReconcileJob recomputes the links of every démarche. Each démarche runs
// in its own transaction, so one failing démarche never holds back the rest.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconcileJob{
		logg:       params.Logger,
		db:         params.DB,
		reconciler: params.Reconciler,
	}, nil
}

type reconcileJob struct {
	logg       *logger.Logger
	db         txRunner
	reconciler reconciler
}

func (j *reconcileJob) Name() string { return "demarche-reconcile" }

func (j *reconcileJob) Run(ctx context.Context) error {
	var ids []int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.Demarche{}).Order("id").Pluck("id", &ids).Error
	})
	if err != nil {
		return fmt.Errorf("listing demarches: %w", err)
	}

	var errs error
	for _, id := range ids {
		if err := j.reconciler.Reconcile(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("demarche %d: %w", id, err))
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "demarche_count", len(ids)), "reconciliation sweep complete")
	return errs
}
