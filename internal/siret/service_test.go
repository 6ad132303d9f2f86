package siret

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/budget-france/chorus-backend/pkg/db/models"
	"github.com/budget-france/chorus-backend/pkg/entreprise"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/logger"
)

func setupSiretDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sirets (
			code TEXT PRIMARY KEY,
			denomination TEXT,
			adresse TEXT,
			code_commune TEXT,
			categorie_juridique TEXT,
			code_qpv TEXT,
			enriched_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS communes (
			code TEXT PRIMARY KEY,
			label TEXT,
			code_departement TEXT,
			label_departement TEXT,
			code_region TEXT,
			label_region TEXT,
			code_epci TEXT,
			label_epci TEXT,
			enriched_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type fakeFetcher struct {
	etablissements map[string]*entreprise.Etablissement
	failures       int
	calls          int
}

func (f *fakeFetcher) FetchEtablissement(_ context.Context, code string) (*entreprise.Etablissement, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, apperrors.New(apperrors.CodeDependency, "registry timeout")
	}
	etab, ok := f.etablissements[code]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "unknown etablissement")
	}
	return etab, nil
}

type fakeQuota struct {
	remaining int64
}

func (f *fakeQuota) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	if f.remaining <= 0 {
		return false, 0, nil
	}
	f.remaining--
	return true, f.remaining, nil
}

func newFetcher(codes ...string) *fakeFetcher {
	etabs := make(map[string]*entreprise.Etablissement, len(codes))
	for _, code := range codes {
		denomination := "ACME " + code
		commune := "35238"
		etabs[code] = &entreprise.Etablissement{
			Siret:        code,
			Denomination: &denomination,
			CodeCommune:  &commune,
		}
	}
	return &fakeFetcher{etablissements: etabs}
}

func siretTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func TestEnsureEnrichesUnseenSiret(t *testing.T) {
	db := setupSiretDB(t)
	fetcher := newFetcher("06380341500023")
	service := NewService(fetcher, siretTestLogger())

	require.NoError(t, service.Ensure(context.Background(), db, "06380341500023"))

	var row models.Siret
	require.NoError(t, db.First(&row, "code = ?", "06380341500023").Error)
	require.NotNil(t, row.Denomination)
	assert.Equal(t, "ACME 06380341500023", *row.Denomination)
	assert.NotNil(t, row.EnrichedAt)

	var commune models.Commune
	require.NoError(t, db.First(&commune, "code = ?", "35238").Error)
	assert.Nil(t, commune.EnrichedAt, "the bare commune row waits for the geo cron")
}

func TestEnsureSkipsAlreadyEnrichedSiret(t *testing.T) {
	db := setupSiretDB(t)
	now := time.Now()
	require.NoError(t, db.Create(&models.Siret{Code: "06380341500023", EnrichedAt: &now}).Error)

	fetcher := newFetcher()
	service := NewService(fetcher, siretTestLogger())

	require.NoError(t, service.Ensure(context.Background(), db, "06380341500023"))
	assert.Zero(t, fetcher.calls, "an enriched row never triggers a registry call")
}

func TestEnsureKeepsBareRowForUnknownSiret(t *testing.T) {
	db := setupSiretDB(t)
	service := NewService(newFetcher(), siretTestLogger())

	require.NoError(t, service.Ensure(context.Background(), db, "99999999999999"))

	var row models.Siret
	require.NoError(t, db.First(&row, "code = ?", "99999999999999").Error)
	assert.Nil(t, row.Denomination)
	assert.Nil(t, row.EnrichedAt, "unknown identifiers stay pending")
}

func TestEnsureRetriesTransientRegistryFailures(t *testing.T) {
	db := setupSiretDB(t)
	fetcher := newFetcher("06380341500023")
	fetcher.failures = 2
	service := NewService(fetcher, siretTestLogger())

	require.NoError(t, service.Ensure(context.Background(), db, "06380341500023"))
	assert.Equal(t, 3, fetcher.calls)

	var row models.Siret
	require.NoError(t, db.First(&row, "code = ?", "06380341500023").Error)
	assert.NotNil(t, row.EnrichedAt)
}

func TestEnsureQuotaExhaustionIsRateLimit(t *testing.T) {
	db := setupSiretDB(t)
	fetcher := newFetcher("06380341500023")
	service := NewService(fetcher, siretTestLogger()).
		WithQuota(&fakeQuota{remaining: 0}, 250, time.Minute)

	err := service.Ensure(context.Background(), db, "06380341500023")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRateLimit, apperrors.CodeOf(err))
	assert.Zero(t, fetcher.calls, "the gate fires before the upstream call")
}
