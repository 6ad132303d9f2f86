package refs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/enums"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/logger"
)

var refTables = []string{
	"programs", "cost_centers", "functional_domains", "suppliers",
	"commodity_groups", "interministerial_locations", "programming_plans",
}

func setupRefsDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	for _, table := range refTables {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			code TEXT PRIMARY KEY,
			label TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)`, table)
		require.NoError(t, db.Exec(ddl).Error)
	}
	require.NoError(t, db.Exec(`ALTER TABLE programs ADD COLUMN code_ministere TEXT`).Error)
	return db
}

func newTestResolver() *Resolver {
	return NewResolver(logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard}))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "DREETS0035", NormalizeCode(enums.ReferenceCostCenter, "BG00/DREETS0035"))
	assert.Equal(t, "010300000108", NormalizeCode(enums.ReferenceProgrammingPlan, "BG00/010300000108"))
	assert.Equal(t, "103", NormalizeCode(enums.ReferenceProgram, "0103"))
	assert.Equal(t, "0103-01-01", NormalizeCode(enums.ReferenceFunctionalDomain, " 0103-01-01 "), "only whitespace is trimmed for other kinds")
}

func TestEnsureCreatesOnce(t *testing.T) {
	db := setupRefsDB(t)
	resolver := newTestResolver()
	ctx := context.Background()

	require.NoError(t, resolver.Ensure(ctx, db, enums.ReferenceProgram, "0103"))
	require.NoError(t, resolver.Ensure(ctx, db, enums.ReferenceProgram, "103"))

	var rows []models.Program
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1, "both spellings normalize to the same code")
	assert.Equal(t, "103", rows[0].Code)
}

func TestEnsureStripsAccountingPrefix(t *testing.T) {
	db := setupRefsDB(t)
	resolver := newTestResolver()

	require.NoError(t, resolver.Ensure(context.Background(), db, enums.ReferenceCostCenter, "BG00/DREETS0035"))

	var row models.CostCenter
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "DREETS0035", row.Code)
}

func TestEnsureSkipsEmptyNormalizedCode(t *testing.T) {
	db := setupRefsDB(t)
	resolver := newTestResolver()

	// A program code of only zeros normalizes to the empty string.
	require.NoError(t, resolver.Ensure(context.Background(), db, enums.ReferenceProgram, "000"))

	var count int64
	require.NoError(t, db.Model(&models.Program{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEnsureUnknownKindIsConfigError(t *testing.T) {
	db := setupRefsDB(t)
	resolver := newTestResolver()

	err := resolver.Ensure(context.Background(), db, enums.ReferenceKind("bogus"), "X1")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfig, apperrors.CodeOf(err))
}

func TestEnsureConcurrentCreateIsConflict(t *testing.T) {
	db := setupRefsDB(t)

	// A duplicate insert stands in for the race two workers lose and win.
	require.NoError(t, db.Create(&models.Supplier{Code: "1001465507"}).Error)
	err := db.Create(&models.Supplier{Code: "1001465507"}).Error
	require.Error(t, err)

	wrapped := classifyCreateError(enums.ReferenceSupplier, "1001465507", err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(wrapped))
}
