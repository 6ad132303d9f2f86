package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budget-france/chorus-backend/pkg/enums"
	"github.com/budget-france/chorus-backend/pkg/outbox/payloads"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"decimal comma", "22500,12", "22500.12"},
		{"decimal dot", "22500.12", "22500.12"},
		{"nbsp thousands separator", "1 234,50", "1234.50"},
		{"narrow nbsp thousands separator", "1 234,50", "1234.50"},
		{"plain space separator", "1 234,50", "1234.50"},
		{"euro sign", "150,00 €", "150.00"},
		{"en dash negative", "–5,50", "-5.50"},
		{"minus sign negative", "−5,50", "-5.50"},
		{"em dash negative", "—5,50", "-5.50"},
		{"ascii negative", "-5,50", "-5.50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.raw)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.String())
		})
	}

	t.Run("placeholder is nil without error", func(t *testing.T) {
		got, err := ParseAmount("#")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
	t.Run("empty is nil without error", func(t *testing.T) {
		got, err := ParseAmount("")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
	t.Run("garbage errors", func(t *testing.T) {
		_, err := ParseAmount("abc")
		require.Error(t, err)
	})
}

func TestParseDate(t *testing.T) {
	t.Run("dotted", func(t *testing.T) {
		got, err := ParseDate("24.01.2023")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2023, 1, 24, 0, 0, 0, 0, time.UTC), *got)
	})
	t.Run("slashed", func(t *testing.T) {
		got, err := ParseDate("24/01/2023")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2023, 1, 24, 0, 0, 0, 0, time.UTC), *got)
	})
	t.Run("placeholder is nil", func(t *testing.T) {
		got, err := ParseDate("#")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
	t.Run("malformed errors", func(t *testing.T) {
		_, err := ParseDate("2023-01-24")
		require.Error(t, err)
	})
}

func TestCleanField(t *testing.T) {
	assert.Nil(t, CleanField(""))
	assert.Nil(t, CleanField("#"))
	assert.Nil(t, CleanField("   "))
	require.NotNil(t, CleanField(" abc "))
	assert.Equal(t, "abc", *CleanField(" abc "))
}

func testSubmission() payloads.SubmissionContext {
	return payloads.SubmissionContext{
		SourceRegion: "53",
		Annee:        2023,
		Username:     "import-bot",
		ImportTaskID: "task-1",
	}
}

func TestBuildAELine(t *testing.T) {
	record := payloads.LineRecord{
		"n_ej":                            "2103105755",
		"n_poste_ej":                      "5",
		"programme":                       "0103",
		"domaine_fonctionnel":             "0103-01-01",
		"centre_couts":                    "BG00/DREETS0035",
		"referentiel_programmation":       "BG00/010300000108",
		"fournisseur_titulaire":           "1001465507",
		"siret":                           "6380341500023",
		"localisation_interministerielle": "N35",
		"groupe_marchandise":              "09.02.01",
		"contrat_etat_region":             "#",
		"compte_budgetaire":               "65100000",
		"montant":                         "22500,12",
		"date_modification_ej":            "10.01.2023",
	}

	line, err := BuildAELine(record, testSubmission(), enums.DataSourceRegion, 12)
	require.NoError(t, err)

	assert.Equal(t, "2103105755", line.NEj)
	assert.Equal(t, 5, line.NPosteEj)
	assert.Equal(t, "53", line.SourceRegion)
	assert.Equal(t, 2023, line.Annee)
	require.NotNil(t, line.Programme)
	assert.Equal(t, "103", *line.Programme, "leading zeros stripped from program code")
	require.NotNil(t, line.CentreCouts)
	assert.Equal(t, "DREETS0035", *line.CentreCouts, "accounting prefix stripped")
	require.NotNil(t, line.ReferentielProgrammation)
	assert.Equal(t, "010300000108", *line.ReferentielProgrammation)
	require.NotNil(t, line.Siret)
	assert.Equal(t, "06380341500023", *line.Siret)
	assert.Nil(t, line.ContratEtatRegion)
	require.NotNil(t, line.Montant)
	assert.Equal(t, "22500.12", line.Montant.String())
	require.NotNil(t, line.DateModification)
	assert.Equal(t, 12, line.FileImportLineNo)
	assert.Equal(t, "task-1", line.FileImportTaskID)
}

func TestBuildAELineRejectsMissingIdentity(t *testing.T) {
	_, err := BuildAELine(payloads.LineRecord{"n_poste_ej": "1"}, testSubmission(), enums.DataSourceRegion, 0)
	require.Error(t, err)

	_, err = BuildAELine(payloads.LineRecord{"n_ej": "X", "n_poste_ej": "abc"}, testSubmission(), enums.DataSourceRegion, 0)
	require.Error(t, err)
}

func TestBuildCPLine(t *testing.T) {
	record := payloads.LineRecord{
		"n_dp":                       "100011352",
		"n_ej":                       "2103105755",
		"n_poste_ej":                 "5",
		"programme":                  "103",
		"fournisseur_paye":           "1001465507",
		"siret":                      "#",
		"montant":                    "-5,50",
		"date_base_dp":               "25/12/2022",
		"date_derniere_operation_dp": "28.12.2022",
	}

	line, err := BuildCPLine(record, testSubmission(), enums.DataSourceRegion, 40)
	require.NoError(t, err)

	assert.Equal(t, "100011352", line.NDp)
	require.NotNil(t, line.NEj)
	assert.Equal(t, "2103105755", *line.NEj)
	require.NotNil(t, line.NPosteEj)
	assert.Equal(t, 5, *line.NPosteEj)
	assert.Nil(t, line.Siret)
	assert.Equal(t, "-5.50", line.Montant.String())
	require.NotNil(t, line.DateBaseDp)
	require.NotNil(t, line.DateDerniereOperationDp)
}

func TestBuildCPLineRequiresAmount(t *testing.T) {
	record := payloads.LineRecord{"n_dp": "100011352", "montant": "#"}
	_, err := BuildCPLine(record, testSubmission(), enums.DataSourceRegion, 0)
	require.Error(t, err)
}
