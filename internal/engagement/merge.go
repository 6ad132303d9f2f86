// Package engagement holds the AE upsert policy: the signed-amount merge
// algorithm and the create/update/skip decision.
package engagement

import "github.com/shopspring/decimal"

// AmountEntry is one (amount, fiscal year) pair of an amount history.
type AmountEntry struct {
	Montant decimal.Decimal
	Annee   int
}

// Merge applies one incoming amount to a history and returns it.
//
// The history carries at most one positive entry, the current valid
// commitment amount. Positive amounts supersede by year: the latest fiscal
// year wins, amounts are never summed, and a late-arriving older positive
// never regresses a newer one. Negative corrections accumulate per year;
// re-applying a correction for an already-corrected year replaces that
// year's amount. Year comparison, not arrival order, is the tie-break, so
// the result is stable under out-of-order chunk processing.
func Merge(history []AmountEntry, amount decimal.Decimal, year int) []AmountEntry {
	if len(history) == 0 {
		return append(history, AmountEntry{Montant: amount, Annee: year})
	}

	sameYear := indexOfYear(history, year)

	if amount.IsPositive() {
		posIdx := indexOfPositive(history)
		if posIdx < 0 {
			if sameYear < 0 {
				return append(history, AmountEntry{Montant: amount, Annee: year})
			}
			history[sameYear] = AmountEntry{Montant: amount, Annee: year}
			return history
		}
		if history[posIdx].Annee <= year {
			history[posIdx] = AmountEntry{Montant: amount, Annee: year}
		}
		return history
	}

	if sameYear < 0 {
		return append(history, AmountEntry{Montant: amount, Annee: year})
	}
	history[sameYear].Montant = amount
	return history
}

// ContainsEntry reports whether the exact (amount, year) pair is already in
// the history. Used by the decision engine so replays of an already-applied
// correction are no-ops.
func ContainsEntry(history []AmountEntry, amount decimal.Decimal, year int) bool {
	for _, entry := range history {
		if entry.Annee == year && entry.Montant.Equal(amount) {
			return true
		}
	}
	return false
}

func indexOfYear(history []AmountEntry, year int) int {
	for i, entry := range history {
		if entry.Annee == year {
			return i
		}
	}
	return -1
}

func indexOfPositive(history []AmountEntry) int {
	for i, entry := range history {
		if entry.Montant.IsPositive() {
			return i
		}
	}
	return -1
}
