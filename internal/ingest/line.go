// Package ingest runs the chunked import pipeline for AE and CP lines.
package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/budget-france/chorus-backend/internal/refs"
	"github.com/budget-france/chorus-backend/internal/siret"
	"github.com/budget-france/chorus-backend/pkg/enums"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
	"github.com/budget-france/chorus-backend/pkg/outbox/payloads"
)

// amountReplacer maps the dash glyphs and padding the Chorus export uses to
// something strconv understands: en dash, minus sign and em dash become '-',
// NBSP/narrow NBSP/space/euro sign disappear, the decimal comma becomes a
// dot.
var amountReplacer = strings.NewReplacer(
	"–", "-",
	"−", "-",
	"—", "-",
	" ", "",
	" ", "",
	" ", "",
	"€", "",
	",", ".",
)

// CleanField trims a raw field and maps the '#' placeholder and empty values
// to nil.
func CleanField(raw string) *string {
	value := strings.TrimSpace(raw)
	if value == "" || value == "#" {
		return nil
	}
	return &value
}

// ParseAmount normalizes a locale-formatted amount. nil means the line
// carries no amount at all.
func ParseAmount(raw string) (*decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == "#" {
		return nil, nil
	}
	normalized := amountReplacer.Replace(value)
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	return &amount, nil
}

// ParseDate parses the source system's DD.MM.YYYY dates, tolerating '/' as
// the separator.
func ParseDate(raw string) (*time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == "#" {
		return nil, nil
	}
	value = strings.ReplaceAll(value, "/", ".")
	parsed, err := time.Parse("02.01.2006", value)
	if err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", raw, err)
	}
	return &parsed, nil
}

// AELine is one coerced engagement line. All field cleanup happens here,
// once, at construction; nothing downstream re-parses raw strings.
type AELine struct {
	NEj        string
	NPosteEj   int
	DataSource enums.DataSource

	SourceRegion string
	Annee        int

	Programme                      *string
	DomaineFonctionnel             *string
	CentreCouts                    *string
	ReferentielProgrammation       *string
	FournisseurTitulaire           *string
	Siret                          *string
	LocalisationInterministerielle *string
	GroupeMarchandise              *string
	ContratEtatRegion              *string
	CompteBudgetaire               *string

	Montant          *decimal.Decimal
	DateModification *time.Time

	FileImportTaskID string
	FileImportLineNo int
}

// BuildAELine coerces one raw AE record. lineNo is the absolute position in
// the original file, forming the technical de-duplication key with the task
// id.
func BuildAELine(record payloads.LineRecord, sub payloads.SubmissionContext, source enums.DataSource, lineNo int) (*AELine, error) {
	nEj := strings.TrimSpace(record["n_ej"])
	if nEj == "" {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("line %d: missing n_ej", lineNo))
	}
	nPosteEj, err := strconv.Atoi(strings.TrimSpace(record["n_poste_ej"]))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("line %d: invalid n_poste_ej", lineNo), err)
	}

	montant, err := ParseAmount(record["montant"])
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("line %d: invalid montant", lineNo), err)
	}
	dateModification, err := ParseDate(record["date_modification_ej"])
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("line %d: invalid date_modification_ej", lineNo), err)
	}

	line := &AELine{
		NEj:                            nEj,
		NPosteEj:                       nPosteEj,
		DataSource:                     source,
		SourceRegion:                   sub.SourceRegion,
		Annee:                          sub.Annee,
		Programme:                      normalizedRef(enums.ReferenceProgram, record["programme"]),
		DomaineFonctionnel:             normalizedRef(enums.ReferenceFunctionalDomain, record["domaine_fonctionnel"]),
		CentreCouts:                    normalizedRef(enums.ReferenceCostCenter, record["centre_couts"]),
		ReferentielProgrammation:       normalizedRef(enums.ReferenceProgrammingPlan, record["referentiel_programmation"]),
		FournisseurTitulaire:           CleanField(record["fournisseur_titulaire"]),
		LocalisationInterministerielle: normalizedRef(enums.ReferenceInterministerialLocation, record["localisation_interministerielle"]),
		GroupeMarchandise:              normalizedRef(enums.ReferenceCommodityGroup, record["groupe_marchandise"]),
		ContratEtatRegion:              CleanField(record["contrat_etat_region"]),
		CompteBudgetaire:               CleanField(record["compte_budgetaire"]),
		Montant:                        montant,
		DateModification:               dateModification,
		FileImportTaskID:               sub.ImportTaskID,
		FileImportLineNo:               lineNo,
	}
	if raw := CleanField(record["siret"]); raw != nil {
		line.Siret = siret.Normalize(*raw)
	}
	return line, nil
}

// CPLine is one coerced payment line.
type CPLine struct {
	NDp        string
	NEj        *string
	NPosteEj   *int
	DataSource enums.DataSource

	SourceRegion string
	Annee        int

	Programme                *string
	DomaineFonctionnel       *string
	CentreCouts              *string
	ReferentielProgrammation *string
	FournisseurPaye          *string
	Siret                    *string

	Montant                 decimal.Decimal
	DateBaseDp              *time.Time
	DateDerniereOperationDp *time.Time

	FileImportTaskID string
	FileImportLineNo int
}

// BuildCPLine coerces one raw CP record.
func BuildCPLine(record payloads.LineRecord, sub payloads.SubmissionContext, source enums.DataSource, lineNo int) (*CPLine, error) {
	nDp := strings.TrimSpace(record["n_dp"])
	if nDp == "" {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("line %d: missing n_dp", lineNo))
	}

	montant, err := ParseAmount(record["montant"])
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("line %d: invalid montant", lineNo), err)
	}
	if montant == nil {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("line %d: missing montant", lineNo))
	}
	dateBase, err := ParseDate(record["date_base_dp"])
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("line %d: invalid date_base_dp", lineNo), err)
	}
	dateDerniere, err := ParseDate(record["date_derniere_operation_dp"])
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("line %d: invalid date_derniere_operation_dp", lineNo), err)
	}

	line := &CPLine{
		NDp:                      nDp,
		NEj:                      CleanField(record["n_ej"]),
		DataSource:               source,
		SourceRegion:             sub.SourceRegion,
		Annee:                    sub.Annee,
		Programme:                normalizedRef(enums.ReferenceProgram, record["programme"]),
		DomaineFonctionnel:       normalizedRef(enums.ReferenceFunctionalDomain, record["domaine_fonctionnel"]),
		CentreCouts:              normalizedRef(enums.ReferenceCostCenter, record["centre_couts"]),
		ReferentielProgrammation: normalizedRef(enums.ReferenceProgrammingPlan, record["referentiel_programmation"]),
		FournisseurPaye:          CleanField(record["fournisseur_paye"]),
		Montant:                  *montant,
		DateBaseDp:               dateBase,
		DateDerniereOperationDp:  dateDerniere,
		FileImportTaskID:         sub.ImportTaskID,
		FileImportLineNo:         lineNo,
	}
	if raw := CleanField(record["n_poste_ej"]); raw != nil {
		nPoste, err := strconv.Atoi(*raw)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("line %d: invalid n_poste_ej", lineNo), err)
		}
		line.NPosteEj = &nPoste
	}
	if raw := CleanField(record["siret"]); raw != nil {
		line.Siret = siret.Normalize(*raw)
	}
	return line, nil
}

func normalizedRef(kind enums.ReferenceKind, raw string) *string {
	cleaned := CleanField(raw)
	if cleaned == nil {
		return nil
	}
	code := refs.NormalizeCode(kind, *cleaned)
	if code == "" {
		return nil
	}
	return &code
}
