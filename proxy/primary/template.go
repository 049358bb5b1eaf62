package primary

import (
	"encoding/json"
	"regexp"
	"strconv"
)

// Vars are the values substituted into a method descriptor.
// Only keyword, page and limit are recognized; any other placeholder
// resolves to the empty string.
type Vars struct {
	Keyword string
	Page    int
	Limit   int
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

func (v Vars) lookup(name string) string {
	switch name {
	case "keyword":
		return v.Keyword
	case "page":
		return strconv.Itoa(v.Page)
	case "limit":
		return strconv.Itoa(v.Limit)
	default:
		return ""
	}
}

// FillTemplate replaces {{keyword}}, {{page}} and {{limit}} in s.
func FillTemplate(s string, vars Vars) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars.lookup(name)
	})
}

// fillJSON substitutes into a JSON document, escaping values so that a
// keyword with quotes cannot break the body.
func fillJSON(s string, vars Vars) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		encoded, err := json.Marshal(vars.lookup(name))
		if err != nil || len(encoded) < 2 {
			return ""
		}
		return string(encoded[1 : len(encoded)-1])
	})
}
