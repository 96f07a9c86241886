package warninglist

import (
	"strings"

	"warnlist/internal/domain"
)

const compositeMalwareSample = "malware-sample"

// Result describes a single list hit.
type Result struct {
	// Entry is the normalized list entry that matched.
	Entry string
	// Value is the (part of the) indicator value that matched.
	Value string
}

// Match tests a single value against the set.
func (es *EntrySet) Match(value string) (string, bool) {
	if es == nil || value == "" || len(es.values) == 0 {
		return "", false
	}

	switch es.kind {
	case domain.ComparisonString:
		if _, found := es.set[value]; found {
			return value, true
		}
		return "", false
	case domain.ComparisonSubstring:
		for _, entry := range es.values {
			if strings.Contains(value, entry) {
				return entry, true
			}
		}
		return "", false
	case domain.ComparisonHostname:
		return es.matchHostname(value)
	case domain.ComparisonCIDR:
		return es.matchCIDR(value)
	case domain.ComparisonRegex:
		return es.matchRegex(value)
	default:
		return "", false
	}
}

// SplitValue returns the parts of an indicator value that are checked independently.
// Composite types carry two values separated by the first "|".
func SplitValue(indicatorType, value string) []string {
	if indicatorType == compositeMalwareSample || strings.Contains(indicatorType, "|") {
		return strings.SplitN(value, "|", 2)
	}
	return []string{value}
}

// CheckValue tests an indicator value against the set. For composite values
// the first matching part wins.
func CheckValue(es *EntrySet, indicatorType, value string) (Result, bool) {
	for _, part := range SplitValue(indicatorType, value) {
		if entry, ok := es.Match(part); ok {
			return Result{Entry: entry, Value: part}, true
		}
	}
	return Result{}, false
}

// QuickCheck normalizes an ad-hoc set of values and reports whether value matches it.
func QuickCheck(kind domain.ComparisonType, raw []string, value string) bool {
	_, ok := CheckValue(Normalize(kind, raw), "", value)
	return ok
}
