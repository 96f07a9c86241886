package warninglist

import (
	"regexp"
	"strings"

	"warnlist/internal/domain"
)

// EntrySet is the comparison-ready form of a list's entries.
type EntrySet struct {
	kind domain.ComparisonType

	// values keeps normalized entries in input order, deduplicated.
	values []string
	// set backs string, hostname and cidr lookups.
	set map[string]struct{}
	// ipv6 holds the IPv6 networks of a cidr list in storage order.
	ipv6 []ipv6Network
	// patterns is aligned with values for regex lists.
	patterns []*regexp.Regexp
}

// Normalize turns raw list values into an EntrySet for the given comparison type.
// Malformed values are dropped; the rest of the list is kept. Normalizing an
// already normalized set yields the same set.
func Normalize(kind domain.ComparisonType, raw []string) *EntrySet {
	es := &EntrySet{kind: kind}

	switch kind {
	case domain.ComparisonString:
		es.set = make(map[string]struct{}, len(raw))
		for _, v := range raw {
			es.addToSet(v)
		}
	case domain.ComparisonHostname:
		es.set = make(map[string]struct{}, len(raw))
		for _, v := range raw {
			host := normalizeHostname(v)
			if host == "" {
				continue
			}
			es.addToSet(host)
		}
	case domain.ComparisonCIDR:
		es.set = make(map[string]struct{}, len(raw))
		for _, v := range raw {
			prefix, ok := parseEntryCIDR(v)
			if !ok {
				continue
			}
			canonical := prefix.String()
			if _, exists := es.set[canonical]; exists {
				continue
			}
			es.addToSet(canonical)
			if prefix.Addr().Is6() {
				es.ipv6 = append(es.ipv6, newIPv6Network(prefix))
			}
		}
	case domain.ComparisonSubstring:
		for _, v := range raw {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			es.values = append(es.values, v)
		}
	case domain.ComparisonRegex:
		for _, v := range raw {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			re, err := compilePattern(v)
			if err != nil {
				continue
			}
			es.values = append(es.values, v)
			es.patterns = append(es.patterns, re)
		}
	}

	return es
}

func (es *EntrySet) addToSet(v string) {
	if _, exists := es.set[v]; exists {
		return
	}
	es.set[v] = struct{}{}
	es.values = append(es.values, v)
}

// Type returns the comparison type the set was built for.
func (es *EntrySet) Type() domain.ComparisonType {
	if es == nil {
		return ""
	}
	return es.kind
}

// Len returns the number of usable entries.
func (es *EntrySet) Len() int {
	if es == nil {
		return 0
	}
	return len(es.values)
}

// Values returns a copy of the normalized entries in stable order.
func (es *EntrySet) Values() []string {
	if es == nil || len(es.values) == 0 {
		return nil
	}
	out := make([]string, len(es.values))
	copy(out, es.values)
	return out
}
