package engagement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/budget-france/chorus-backend/pkg/db/models"
)

func TestDecideCreatesWhenUnseen(t *testing.T) {
	montant := amt("100")
	got := Decide(nil, nil, Incoming{SourceRegion: "53", Montant: &montant, Annee: 2023})

	assert.Equal(t, DecisionCreate, got)
}

func TestDecideUpdatesWhenAmountAffecting(t *testing.T) {
	existing := &models.Engagement{SourceRegion: "53"}
	history := entries(AmountEntry{Montant: amt("100"), Annee: 2022})
	montant := amt("250")

	got := Decide(existing, history, Incoming{SourceRegion: "53", Montant: &montant, Annee: 2023})

	assert.Equal(t, DecisionUpdate, got)
}

func TestDecideCrossRegionFallsThroughToTimestamp(t *testing.T) {
	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	existing := &models.Engagement{SourceRegion: "35", DateModification: &older}
	montant := amt("999")

	in := Incoming{SourceRegion: "11", Montant: &montant, Annee: 2023}
	assert.False(t, IsAmountAffecting(existing, nil, in), "another region's line never touches amounts")

	in.DateModification = &newer
	assert.Equal(t, DecisionUpdate, Decide(existing, nil, in))

	in.DateModification = &older
	assert.Equal(t, DecisionSkip, Decide(existing, nil, in))
}

func TestDecideTimestampTieBreak(t *testing.T) {
	reference := time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)
	earlier := reference.Add(-24 * time.Hour)
	later := reference.Add(24 * time.Hour)

	cases := []struct {
		name     string
		existing *time.Time
		incoming *time.Time
		want     Decision
	}{
		{"incoming nil skips", &reference, nil, DecisionSkip},
		{"existing nil updates", nil, &reference, DecisionUpdate},
		{"strictly newer updates", &reference, &later, DecisionUpdate},
		{"equal skips", &reference, &reference, DecisionSkip},
		{"older skips", &reference, &earlier, DecisionSkip},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			existing := &models.Engagement{SourceRegion: "53", DateModification: tc.existing}
			in := Incoming{SourceRegion: "53", Annee: 2023, DateModification: tc.incoming}

			assert.Equal(t, tc.want, Decide(existing, nil, in))
		})
	}
}

func TestIsAmountAffecting(t *testing.T) {
	existing := &models.Engagement{SourceRegion: "53"}
	history := entries(AmountEntry{Montant: amt("100"), Annee: 2022})

	newAmount := amt("250")
	replayed := amt("100")
	var nilAmount *decimal.Decimal

	assert.True(t, IsAmountAffecting(existing, history, Incoming{SourceRegion: "53", Montant: &newAmount, Annee: 2022}))
	assert.False(t, IsAmountAffecting(existing, history, Incoming{SourceRegion: "53", Montant: &replayed, Annee: 2022}), "exact replay is a no-op")
	assert.True(t, IsAmountAffecting(existing, history, Incoming{SourceRegion: "53", Montant: &replayed, Annee: 2023}), "same amount at a new year still counts")
	assert.False(t, IsAmountAffecting(existing, history, Incoming{SourceRegion: "53", Montant: nilAmount, Annee: 2022}))
	assert.False(t, IsAmountAffecting(nil, history, Incoming{SourceRegion: "53", Montant: &newAmount, Annee: 2022}))
}
