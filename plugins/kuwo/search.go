package kuwo

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// musicRIDPattern pulls the numeric id out of composite ids like "MUSIC_123".
	musicRIDPattern = regexp.MustCompile(`(?:MUSIC_)?(\d+)`)

	// Only quotes next to structural characters delimit strings; an
	// apostrophe inside a title like 'Don't Cry' stays as it is.
	openQuotePattern  = regexp.MustCompile(`([{\[,:]\s*)'`)
	closeQuotePattern = regexp.MustCompile(`'(\s*[:,}\]])`)
)

// ParseSearch returns the first song id in a kuwo search payload.
// Both the legacy abslist reply and the newer data.list reply are accepted.
func ParseSearch(payload []byte) (string, bool) {
	if !gjson.ValidBytes(payload) {
		// The legacy endpoint answers with single-quoted pseudo JSON.
		payload = requote(payload)
		if !gjson.ValidBytes(payload) {
			return "", false
		}
	}

	root := gjson.ParseBytes(payload)
	if list := root.Get("abslist"); list.IsArray() {
		for _, item := range list.Array() {
			if id := ridOf(item.Get("MUSICRID").String()); id != "" {
				return id, true
			}
			if id := ridOf(item.Get("DC_TARGETID").String()); id != "" {
				return id, true
			}
		}
	}
	if list := root.Get("data.list"); list.IsArray() {
		for _, item := range list.Array() {
			if id := ridOf(item.Get("rid").String()); id != "" {
				return id, true
			}
			if id := ridOf(item.Get("musicrid").String()); id != "" {
				return id, true
			}
		}
	}
	return "", false
}

func requote(payload []byte) []byte {
	payload = bytes.ReplaceAll(payload, []byte(`"`), []byte(`\"`))
	payload = openQuotePattern.ReplaceAll(payload, []byte(`${1}"`))
	return closeQuotePattern.ReplaceAll(payload, []byte(`"${1}`))
}

func ridOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	m := musicRIDPattern.FindStringSubmatch(raw)
	if len(m) != 2 {
		return ""
	}
	return m[1]
}
