package primary

import (
	"strconv"
	"strings"
)

// DefaultQuotaStatuses and DefaultQuotaKeywords are the built-in triggers.
var (
	DefaultQuotaStatuses = []int{402, 403}
	DefaultQuotaKeywords = []string{"quota", "insufficient", "credits", "余额", "额度", "积分"}
)

// QuotaDetector decides whether an error reply means the primary API key
// ran out of allowance. Both trigger sets are configurable.
type QuotaDetector struct {
	statuses map[int]bool
	keywords []string
}

// NewQuotaDetector builds a detector. Nil slices select the defaults;
// empty non-nil slices disable that trigger.
func NewQuotaDetector(statuses []int, keywords []string) *QuotaDetector {
	if statuses == nil {
		statuses = DefaultQuotaStatuses
	}
	if keywords == nil {
		keywords = DefaultQuotaKeywords
	}
	d := &QuotaDetector{statuses: make(map[int]bool, len(statuses))}
	for _, code := range statuses {
		d.statuses[code] = true
	}
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			d.keywords = append(d.keywords, kw)
		}
	}
	return d
}

// ParseStatuses converts config strings to status codes, skipping junk.
func ParseStatuses(values []string) []int {
	out := make([]int, 0, len(values))
	for _, v := range values {
		if code, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && code > 0 {
			out = append(out, code)
		}
	}
	return out
}

// Match reports whether status or message signal an exhausted quota.
// Only call it for replies that already failed.
func (d *QuotaDetector) Match(status int, message string) bool {
	if d == nil {
		return false
	}
	if d.statuses[status] {
		return true
	}
	return d.MatchMessage(message)
}

// MatchMessage checks message against the keyword set, ignoring case.
func (d *QuotaDetector) MatchMessage(message string) bool {
	if d == nil || message == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, kw := range d.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
