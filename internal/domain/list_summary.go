package domain

// AllTypes is the applicable-type wildcard.
const AllTypes = "ALL"

// ListSummary is the cached view of an enabled list.
type ListSummary struct {
	ID    uint           `json:"id"`
	Name  string         `json:"name"`
	Type  ComparisonType `json:"type"`
	Types []string       `json:"types"`
}

// AppliesTo reports whether the list should be checked for the given indicator type.
func (s ListSummary) AppliesTo(indicatorType string) bool {
	for _, t := range s.Types {
		if t == AllTypes || t == indicatorType {
			return true
		}
	}
	return false
}
