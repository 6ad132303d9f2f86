package enums

import "fmt"

// FinancialEntityType is the closed set of line kinds the pipeline handles.
type FinancialEntityType string

const (
	FinancialEntityEngagement FinancialEntityType = "FINANCIAL_DATA_AE"
	FinancialEntityPayment    FinancialEntityType = "FINANCIAL_DATA_CP"
	FinancialEntityGrant      FinancialEntityType = "ADEME"
)

func (t FinancialEntityType) String() string {
	return string(t)
}

func (t FinancialEntityType) IsValid() bool {
	switch t {
	case FinancialEntityEngagement, FinancialEntityPayment, FinancialEntityGrant:
		return true
	}
	return false
}

func ParseFinancialEntityType(value string) (FinancialEntityType, error) {
	t := FinancialEntityType(value)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid financial entity type %q", value)
	}
	return t, nil
}
