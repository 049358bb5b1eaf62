package platform

import (
	"fmt"
	"net/url"
	"strings"
)

// Source identifies an upstream music platform.
type Source string

const (
	SourceKuwo     Source = "kuwo"
	SourceNetease  Source = "netease"
	SourceQQ       Source = "qq"
	SourceFallback Source = "kuwo-fallback"
)

// DefaultPriority is the primary source order used when none is configured.
var DefaultPriority = []Source{SourceKuwo, SourceNetease, SourceQQ}

// UnknownArtist fills SongRecord.Artist when the upstream omits it.
const UnknownArtist = "unknown"

var sourceAliases = map[string]Source{
	"kuwo":          SourceKuwo,
	"kw":            SourceKuwo,
	"netease":       SourceNetease,
	"163":           SourceNetease,
	"wy":            SourceNetease,
	"qq":            SourceQQ,
	"qqmusic":       SourceQQ,
	"tencent":       SourceQQ,
	"kuwo-fallback": SourceFallback,
}

// ParseSource resolves a source name or alias.
func ParseSource(s string) (Source, error) {
	if src, ok := sourceAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return src, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
}

// ParsePriority parses an ordered source list. Unknown and duplicate names
// are returned separately so the caller can log them.
func ParsePriority(names []string) (order []Source, rejected []string) {
	seen := make(map[Source]bool)
	for _, name := range names {
		src, err := ParseSource(name)
		if err != nil || src == SourceFallback || seen[src] {
			rejected = append(rejected, name)
			continue
		}
		seen[src] = true
		order = append(order, src)
	}
	return order, rejected
}

// AssetKind is one of the proxied resources of a song.
type AssetKind string

const (
	AssetAudio AssetKind = "audio"
	AssetCover AssetKind = "cover"
	AssetLyric AssetKind = "lyric"
)

// Asset holds resolved upstream locations. It never leaves the process.
type Asset struct {
	StreamURL string
	CoverURL  string
	LyricURL  string
	// Lyric is inline lyric text, when the resolver returns it directly.
	Lyric string
}

// URL returns the upstream location for kind.
func (a Asset) URL(kind AssetKind) string {
	switch kind {
	case AssetAudio:
		return a.StreamURL
	case AssetCover:
		return a.CoverURL
	case AssetLyric:
		return a.LyricURL
	default:
		return ""
	}
}

// SongRecord is the normalized result of a successful resolve.
// Source and ExternalID always travel together.
type SongRecord struct {
	Title      string
	Artist     string
	Source     Source
	ExternalID string
	DetailLink string
	Asset      Asset
}

// NewSongRecord fills the derived fields: the artist placeholder and the detail link.
func NewSongRecord(source Source, externalID, title, artist string, asset Asset) *SongRecord {
	artist = strings.TrimSpace(artist)
	if artist == "" {
		artist = UnknownArtist
	}
	return &SongRecord{
		Title:      strings.TrimSpace(title),
		Artist:     artist,
		Source:     source,
		ExternalID: externalID,
		DetailLink: DetailLink(source, externalID),
		Asset:      asset,
	}
}

// WithSource returns a copy tagged with another source. The detail link is
// recomputed.
func (r SongRecord) WithSource(source Source) *SongRecord {
	r.Source = source
	r.DetailLink = DetailLink(source, r.ExternalID)
	return &r
}

var detailTemplates = map[Source]string{
	SourceKuwo:     "https://www.kuwo.cn/play_detail/%s",
	SourceFallback: "https://www.kuwo.cn/play_detail/%s",
	SourceNetease:  "https://music.163.com/#/song?id=%s",
	SourceQQ:       "https://y.qq.com/n/ryqq/songDetail/%s",
}

// DetailLink derives the public song page from (source, id) alone.
func DetailLink(source Source, externalID string) string {
	tmpl, ok := detailTemplates[source]
	if !ok || externalID == "" {
		return ""
	}
	return fmt.Sprintf(tmpl, externalID)
}

// ProxyLinks are the self-referential URLs handed to the client.
type ProxyLinks struct {
	Stream string
	Cover  string
	Lyric  string
}

// Links builds proxy URLs for record under baseURL.
func Links(baseURL string, record *SongRecord, bitrate Bitrate) ProxyLinks {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	query := url.Values{}
	query.Set("source", string(record.Source))
	query.Set("id", record.ExternalID)
	asset := query.Encode()

	query.Set("br", bitrate.String())
	return ProxyLinks{
		Stream: base + "/stream?" + query.Encode(),
		Cover:  base + "/cover?" + asset,
		Lyric:  base + "/lyric?" + asset,
	}
}
