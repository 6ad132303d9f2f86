package enums

import "fmt"

// ReferenceKind names the reference tables resolved during ingestion.
type ReferenceKind string

const (
	ReferenceProgram                  ReferenceKind = "program"
	ReferenceCostCenter               ReferenceKind = "cost_center"
	ReferenceFunctionalDomain         ReferenceKind = "functional_domain"
	ReferenceSupplier                 ReferenceKind = "supplier"
	ReferenceCommodityGroup           ReferenceKind = "commodity_group"
	ReferenceInterministerialLocation ReferenceKind = "interministerial_location"
	ReferenceProgrammingPlan          ReferenceKind = "programming_plan"
)

func (k ReferenceKind) String() string {
	return string(k)
}

func (k ReferenceKind) IsValid() bool {
	switch k {
	case ReferenceProgram, ReferenceCostCenter, ReferenceFunctionalDomain,
		ReferenceSupplier, ReferenceCommodityGroup,
		ReferenceInterministerialLocation, ReferenceProgrammingPlan:
		return true
	}
	return false
}

func ParseReferenceKind(value string) (ReferenceKind, error) {
	k := ReferenceKind(value)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid reference kind %q", value)
	}
	return k, nil
}
