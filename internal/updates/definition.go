package updates

import (
	"errors"
	"strconv"
	"strings"

	"warnlist/internal/domain"

	"github.com/tidwall/gjson"
)

var errMalformedDefinition = errors.New("malformed list.json")

// ParseListDefinition reads a distributable list.json document. A missing
// version means 1, a missing type means string and an array type uses its
// first element. A version that is not a positive integer is kept as zero and
// rejected by validation.
func ParseListDefinition(data []byte) (domain.ListDefinition, error) {
	if !gjson.ValidBytes(data) {
		return domain.ListDefinition{}, errMalformedDefinition
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return domain.ListDefinition{}, errMalformedDefinition
	}

	def := domain.ListDefinition{
		Name:            strings.TrimSpace(root.Get("name").String()),
		Description:     strings.TrimSpace(root.Get("description").String()),
		Version:         parseVersion(root.Get("version")),
		Type:            parseType(root.Get("type")),
		Entries:         stringArray(root.Get("list")),
		ApplicableTypes: stringArray(root.Get("matching_attributes")),
	}
	return def, nil
}

func parseVersion(v gjson.Result) uint64 {
	switch v.Type {
	case gjson.Null:
		if v.Exists() {
			return 0
		}
		return 1
	case gjson.Number:
		if v.Num < 1 || v.Num != float64(uint64(v.Num)) {
			return 0
		}
		return v.Uint()
	case gjson.String:
		n, err := strconv.ParseUint(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func parseType(v gjson.Result) domain.ComparisonType {
	if v.IsArray() {
		v = v.Get("0")
	}
	raw := strings.TrimSpace(v.String())
	if raw == "" {
		return domain.ComparisonString
	}
	if kind, err := domain.ParseComparisonType(raw); err == nil {
		return kind
	}
	// unknown types are kept so validation can name them
	return domain.ComparisonType(raw)
}

func stringArray(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	var out []string
	v.ForEach(func(_, item gjson.Result) bool {
		out = append(out, item.String())
		return true
	})
	return out
}
