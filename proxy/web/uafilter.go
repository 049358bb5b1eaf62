package web

import (
	"net/http"
	"strings"
)

const placeholderPage = `<!DOCTYPE html>
<html lang="zh-CN">
<head><meta charset="utf-8"><title>SongProxy</title></head>
<body><p>This service is meant to be used from the WeChat song-request plugin.</p></body>
</html>
`

// UAFilter lets the in-app browser and non-browser clients through. Other
// browsers get a placeholder page instead of API output.
type UAFilter struct {
	allow  []string
	always map[string]bool
	soft   map[string]bool
}

// NewUAFilter creates a UAFilter. Empty allow selects MicroMessenger.
func NewUAFilter(allow []string) *UAFilter {
	keywords := make([]string, 0, len(allow))
	for _, keyword := range allow {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			keywords = append(keywords, strings.ToLower(keyword))
		}
	}
	if len(keywords) == 0 {
		keywords = []string{"micromessenger"}
	}
	return &UAFilter{
		allow:  keywords,
		always: map[string]bool{"/health": true},
		soft:   map[string]bool{"/": true, "/sources": true},
	}
}

// Allowed reports whether ua may reach the API.
func (f *UAFilter) Allowed(ua string) bool {
	ua = strings.TrimSpace(ua)
	if ua == "" || !strings.HasPrefix(ua, "Mozilla/") {
		return true
	}
	lower := strings.ToLower(ua)
	for _, keyword := range f.allow {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// Middleware wraps next with the filter.
func (f *UAFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.always[r.URL.Path] || f.Allowed(r.UserAgent()) {
			next.ServeHTTP(w, r)
			return
		}
		status := http.StatusForbidden
		if f.soft[r.URL.Path] {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(placeholderPage))
	})
}
