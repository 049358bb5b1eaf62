package netease

import (
	"strconv"

	"github.com/tidwall/gjson"
)

var songIDPaths = []string{"result.songs", "data.songs", "songs"}

// ParseSearch returns the first song id of a NetEase cloudsearch reply.
func ParseSearch(payload []byte) (string, bool) {
	if !gjson.ValidBytes(payload) {
		return "", false
	}
	root := gjson.ParseBytes(payload)
	for _, path := range songIDPaths {
		songs := root.Get(path)
		if !songs.IsArray() {
			continue
		}
		for _, song := range songs.Array() {
			id := song.Get("id")
			if id.Type == gjson.Number && id.Int() > 0 {
				return strconv.FormatInt(id.Int(), 10), true
			}
			if id.Type == gjson.String {
				if n, err := strconv.ParseInt(id.String(), 10, 64); err == nil && n > 0 {
					return id.String(), true
				}
			}
		}
	}
	return "", false
}
