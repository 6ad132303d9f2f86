package siret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want *string
	}{
		{"pads a truncated identifier", "6380341500023", ptr("06380341500023")},
		{"keeps a full identifier", "26350579400028", ptr("26350579400028")},
		{"placeholder maps to nil", "#", nil},
		{"empty maps to nil", "", nil},
		{"whitespace maps to nil", "   ", nil},
		{"trims before padding", " 123 ", ptr("00000000000123")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.raw)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}

func ptr(s string) *string { return &s }
