package engagement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/budget-france/chorus-backend/pkg/db/models"
)

// Decision is the outcome of the upsert policy for one incoming line.
type Decision string

const (
	DecisionCreate Decision = "CREATE"
	DecisionUpdate Decision = "UPDATE"
	DecisionSkip   Decision = "SKIP"
)

// Incoming carries the fields of one parsed line the decision depends on.
type Incoming struct {
	SourceRegion     string
	Montant          *decimal.Decimal
	Annee            int
	DateModification *time.Time
}

// Decide applies the upsert truth table: no existing record means CREATE; an
// amount-affecting line means UPDATE (which triggers the merge); otherwise
// the source modification timestamp breaks the tie.
func Decide(existing *models.Engagement, history []AmountEntry, in Incoming) Decision {
	if existing == nil {
		return DecisionCreate
	}

	if IsAmountAffecting(existing, history, in) {
		return DecisionUpdate
	}

	if in.DateModification == nil {
		return DecisionSkip
	}
	if existing.DateModification == nil {
		return DecisionUpdate
	}
	if in.DateModification.After(*existing.DateModification) {
		return DecisionUpdate
	}
	return DecisionSkip
}

// IsAmountAffecting reports whether the incoming line should mutate the
// existing record's amount history. Cross-region noise never mutates another
// region's record; a line without an amount cannot affect amounts; an exact
// (amount, year) replay is a no-op.
func IsAmountAffecting(existing *models.Engagement, history []AmountEntry, in Incoming) bool {
	if existing == nil {
		return false
	}
	if in.SourceRegion != existing.SourceRegion {
		return false
	}
	if in.Montant == nil {
		return false
	}
	if ContainsEntry(history, *in.Montant, in.Annee) {
		return false
	}
	return true
}
