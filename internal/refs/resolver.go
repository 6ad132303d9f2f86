// Package refs materializes reference rows (program, cost center, supplier,
// ...) the first time a financial line mentions an unseen code.
package refs

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	dbpkg "github.com/budget-france/chorus-backend/pkg/db"
	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/enums"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/logger"
)

// legacyPrefix is the Chorus namespace prefix carried by cost-center and
// programming-plan codes in raw exports.
const legacyPrefix = "BG00/"

// NormalizeCode applies the per-kind code cleanup used both by the resolver
// and by the line builders, so the code stored on the financial line and the
// reference row's key always agree.
func NormalizeCode(kind enums.ReferenceKind, raw string) string {
	code := strings.TrimSpace(raw)
	switch kind {
	case enums.ReferenceCostCenter, enums.ReferenceProgrammingPlan:
		code = strings.TrimPrefix(code, legacyPrefix)
	case enums.ReferenceProgram:
		code = strings.TrimLeft(code, "0")
	}
	return code
}

// Resolver ensures reference rows exist for the codes a chunk mentions.
type Resolver struct {
	logg *logger.Logger
}

func NewResolver(logg *logger.Logger) *Resolver {
	return &Resolver{logg: logg}
}

// Ensure creates the reference row for (kind, code) if it does not exist yet.
// A uniqueness violation from a concurrent worker is surfaced as a conflict
// error so the caller retries the whole chunk; it is expected contention, not
// a failure.
func (r *Resolver) Ensure(ctx context.Context, tx *gorm.DB, kind enums.ReferenceKind, rawCode string) error {
	code := NormalizeCode(kind, rawCode)
	if code == "" {
		return nil
	}

	row, err := rowFor(kind, code)
	if err != nil {
		return err
	}

	var count int64
	if err := tx.Model(row).Where("code = ?", code).Count(&count).Error; err != nil {
		return fmt.Errorf("looking up %s %q: %w", kind, code, err)
	}
	if count > 0 {
		return nil
	}

	if err := tx.Create(row).Error; err != nil {
		return classifyCreateError(kind, code, err)
	}

	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"reference_kind": kind,
			"reference_code": code,
		})
		r.logg.Debug(logCtx, "reference row created")
	}
	return nil
}

// classifyCreateError separates expected cross-worker contention from real
// write failures.
func classifyCreateError(kind enums.ReferenceKind, code string, err error) error {
	if dbpkg.IsUniqueViolation(err) {
		return apperrors.Wrap(apperrors.CodeConflict,
			fmt.Sprintf("concurrent creation of %s %q", kind, code), err)
	}
	return fmt.Errorf("creating %s %q: %w", kind, code, err)
}

// rowFor maps a kind to its model. The switch is exhaustive over the closed
// kind set; an unknown kind is a configuration error, never retried.
func rowFor(kind enums.ReferenceKind, code string) (any, error) {
	switch kind {
	case enums.ReferenceProgram:
		return &models.Program{Code: code}, nil
	case enums.ReferenceCostCenter:
		return &models.CostCenter{Code: code}, nil
	case enums.ReferenceFunctionalDomain:
		return &models.FunctionalDomain{Code: code}, nil
	case enums.ReferenceSupplier:
		return &models.Supplier{Code: code}, nil
	case enums.ReferenceCommodityGroup:
		return &models.CommodityGroup{Code: code}, nil
	case enums.ReferenceInterministerialLocation:
		return &models.InterministerialLocation{Code: code}, nil
	case enums.ReferenceProgrammingPlan:
		return &models.ProgrammingPlan{Code: code}, nil
	default:
		return nil, apperrors.New(apperrors.CodeConfig, fmt.Sprintf("unknown reference kind %q", kind))
	}
}
