package domain

// ListDefinition is a parsed distributable list, as handed to the update pipeline.
type ListDefinition struct {
	Name            string         `json:"name" validate:"required"`
	Description     string         `json:"description" validate:"required"`
	Version         uint64         `json:"version" validate:"required,min=1"`
	Type            ComparisonType `json:"type" validate:"required,oneof=string substring cidr hostname regex"`
	Entries         []string       `json:"list"`
	ApplicableTypes []string       `json:"matching_attributes"`
}

// NonEmptyEntries drops empty values; empty entries are never stored.
func (d ListDefinition) NonEmptyEntries() []string {
	out := make([]string, 0, len(d.Entries))
	for _, v := range d.Entries {
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// TypesOrAll returns the declared applicable types, defaulting to ALL.
func (d ListDefinition) TypesOrAll() []string {
	if len(d.ApplicableTypes) == 0 {
		return []string{AllTypes}
	}
	out := make([]string, 0, len(d.ApplicableTypes))
	seen := make(map[string]struct{}, len(d.ApplicableTypes))
	for _, t := range d.ApplicableTypes {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return []string{AllTypes}
	}
	return out
}
