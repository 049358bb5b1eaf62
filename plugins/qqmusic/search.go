package qqmusic

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParseSearch returns the first songmid of a QQ Music search reply. The
// legacy soso endpoint and the musicu.fcg envelope are both accepted.
func ParseSearch(payload []byte) (string, bool) {
	if !gjson.ValidBytes(payload) {
		return "", false
	}
	root := gjson.ParseBytes(payload)

	if list := root.Get("data.song.list"); list.IsArray() {
		if mid := firstMid(list, "songmid", "mid"); mid != "" {
			return mid, true
		}
	}
	for _, key := range []string{"req", "req_0", "req_1"} {
		list := root.Get(key + ".data.body.song.list")
		if !list.IsArray() {
			continue
		}
		if mid := firstMid(list, "mid", "songmid"); mid != "" {
			return mid, true
		}
	}
	return "", false
}

func firstMid(list gjson.Result, fields ...string) string {
	for _, item := range list.Array() {
		for _, field := range fields {
			if mid := strings.TrimSpace(item.Get(field).String()); mid != "" {
				return mid
			}
		}
	}
	return ""
}
