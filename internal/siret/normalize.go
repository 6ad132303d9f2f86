// Package siret validates and enriches legal-entity identifiers.
package siret

import "strings"

const siretLength = 14

// Normalize cleans a raw SIRET-like value. The '#' placeholder and empty
// values mean "no identity" and map to nil. Shorter values are left-zero
// padded to 14; the value stays a string throughout to preserve leading
// zeros.
func Normalize(raw string) *string {
	value := strings.TrimSpace(raw)
	if value == "" || value == "#" {
		return nil
	}
	if len(value) < siretLength {
		value = strings.Repeat("0", siretLength-len(value)) + value
	}
	return &value
}
