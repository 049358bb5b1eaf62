package fallback

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/liuran001/SongProxy-Go/proxy/platform"
	"github.com/liuran001/SongProxy-Go/proxy/upstream"
	"github.com/tidwall/gjson"
)

// Client calls the secondary free kuwo API. One call both searches and
// resolves, so a lookup never needs a second request.
type Client struct {
	baseURL string
	http    *upstream.Client
}

// New creates a Client for baseURL.
func New(baseURL string, http *upstream.Client) *Client {
	if http == nil {
		http = upstream.New(upstream.Options{Name: "fallback", MaxRetries: -1})
	}
	return &Client{baseURL: strings.TrimSpace(baseURL), http: http}
}

// Lookup finds the best match for keyword.
func (c *Client) Lookup(ctx context.Context, keyword string, bitrate platform.Bitrate) (*platform.SongRecord, error) {
	query := url.Values{}
	query.Set("name", keyword)
	query.Set("n", "1")
	query.Set("br", bitrate.FallbackParam())
	query.Set("type", "json")
	record, err := c.fetch(ctx, query, keyword)
	if err != nil {
		return nil, err
	}
	// Proxy links address the song by id; a match without one cannot be served.
	if record.ExternalID == "" {
		return nil, platform.NewNotFoundError(string(platform.SourceFallback), "lookup", keyword)
	}
	return record, nil
}

// Resolve looks a song up again by its kuwo rid.
func (c *Client) Resolve(ctx context.Context, externalID string, bitrate platform.Bitrate) (*platform.SongRecord, error) {
	query := url.Values{}
	query.Set("id", externalID)
	query.Set("br", bitrate.FallbackParam())
	query.Set("type", "json")
	record, err := c.fetch(ctx, query, externalID)
	if err != nil {
		return nil, err
	}
	if record.ExternalID == "" {
		record = platform.NewSongRecord(platform.SourceFallback, externalID, record.Title, record.Artist, record.Asset)
	}
	return record, nil
}

func (c *Client) fetch(ctx context.Context, query url.Values, key string) (*platform.SongRecord, error) {
	endpoint, err := withQuery(c.baseURL, query)
	if err != nil {
		return nil, err
	}
	body, err := c.http.GetBytes(ctx, endpoint, nil)
	if err != nil {
		return nil, platform.Wrap(string(platform.SourceFallback), "lookup", key, err)
	}
	record, ok := ParseReply(body)
	if !ok {
		return nil, platform.NewNotFoundError(string(platform.SourceFallback), "lookup", key)
	}
	return record, nil
}

func withQuery(base string, query url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid fallback url %q", base)
	}
	merged := u.Query()
	for key, values := range query {
		merged[key] = values
	}
	u.RawQuery = merged.Encode()
	return u.String(), nil
}

// ParseReply reads the API's loosely shaped reply. Field names vary between
// deployments, so several paths are tried for each value.
func ParseReply(body []byte) (*platform.SongRecord, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	root := gjson.ParseBytes(body)
	if code := root.Get("code"); code.Exists() && code.Int() != 200 && code.Int() != 0 {
		return nil, false
	}

	data := root.Get("data")
	if data.IsArray() {
		data = data.Get("0")
	}
	if !data.Exists() {
		data = root
	}

	streamURL := first(data, "url", "music_url", "src")
	if streamURL == "" {
		streamURL = first(root, "url", "music_url")
	}
	if streamURL == "" {
		return nil, false
	}

	id := strings.TrimPrefix(first(data, "rid", "id", "musicrid", "MUSICRID"), "MUSIC_")
	title := first(data, "song", "name", "songname", "title")
	artist := first(data, "singer", "artist", "author")
	asset := platform.Asset{
		StreamURL: streamURL,
		CoverURL:  first(data, "cover", "pic", "img", "picture"),
	}
	lyric := first(data, "lrc", "lyric", "lyrics")
	if strings.HasPrefix(lyric, "http://") || strings.HasPrefix(lyric, "https://") {
		asset.LyricURL = lyric
	} else {
		asset.Lyric = lyric
	}

	return platform.NewSongRecord(platform.SourceFallback, id, title, artist, asset), true
}

func first(result gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := strings.TrimSpace(result.Get(path).String()); v != "" {
			return v
		}
	}
	return ""
}
