package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// ComparisonType is the closed set of algorithms a list can use to test values.
type ComparisonType string

const (
	ComparisonString    ComparisonType = "string"
	ComparisonSubstring ComparisonType = "substring"
	ComparisonCIDR      ComparisonType = "cidr"
	ComparisonHostname  ComparisonType = "hostname"
	ComparisonRegex     ComparisonType = "regex"
)

var comparisonTypes = []ComparisonType{
	ComparisonString,
	ComparisonSubstring,
	ComparisonCIDR,
	ComparisonHostname,
	ComparisonRegex,
}

// ComparisonTypes returns every supported comparison type.
func ComparisonTypes() []ComparisonType {
	out := make([]ComparisonType, len(comparisonTypes))
	copy(out, comparisonTypes)
	return out
}

// ParseComparisonType maps a raw value onto the closed set.
func ParseComparisonType(raw string) (ComparisonType, error) {
	candidate := ComparisonType(strings.ToLower(strings.TrimSpace(raw)))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", fmt.Errorf("domain: unknown comparison type %q", raw)
}

func (c ComparisonType) Valid() bool {
	for _, known := range comparisonTypes {
		if c == known {
			return true
		}
	}
	return false
}

func (c ComparisonType) String() string {
	return string(c)
}

// Value implements driver.Valuer.
func (c ComparisonType) Value() (driver.Value, error) {
	return string(c), nil
}

// Scan implements sql.Scanner. Unknown stored values are kept verbatim so the
// matcher can treat them as "no match" instead of failing the whole read.
func (c *ComparisonType) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*c = ""
	case string:
		*c = ComparisonType(v)
	case []byte:
		*c = ComparisonType(string(v))
	default:
		return fmt.Errorf("domain.ComparisonType: unsupported type %T", value)
	}
	return nil
}
