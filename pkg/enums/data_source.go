package enums

import "fmt"

// DataSource identifies which upstream feed produced a financial line.
type DataSource string

const (
	DataSourceRegion   DataSource = "REGION"
	DataSourceNational DataSource = "NATION"
)

func (s DataSource) String() string {
	return string(s)
}

func (s DataSource) IsValid() bool {
	switch s {
	case DataSourceRegion, DataSourceNational:
		return true
	}
	return false
}

func ParseDataSource(value string) (DataSource, error) {
	s := DataSource(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid data source %q", value)
	}
	return s, nil
}
