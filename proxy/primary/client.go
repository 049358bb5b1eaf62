package primary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/liuran001/SongProxy-Go/proxy"
	"github.com/liuran001/SongProxy-Go/proxy/platform"
	"github.com/liuran001/SongProxy-Go/proxy/upstream"
	"github.com/tidwall/gjson"
)

const (
	defaultLimit = 10
	apiKeyHeader = "X-API-Key"
)

// Descriptor is the primary API's recipe for searching one platform.
// Its strings carry {{keyword}}, {{page}} and {{limit}} placeholders.
type Descriptor struct {
	Method  string
	URL     string
	Params  map[string]string
	Headers map[string]string
	// Body is raw JSON, empty for GET recipes.
	Body string
}

// Track is one entry of the parse endpoint's reply.
type Track struct {
	ID     string
	Title  string
	Artist string
	Album  string
	Cover  string
	URL    string
	Lyrics string
}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	// Limit fills {{limit}}. Zero means 10.
	Limit  int
	Quota  *QuotaDetector
	HTTP   *upstream.Client
	Logger proxy.Logger
}

// Client talks to the primary resolution API shared by the kuwo, netease
// and qq adapters.
type Client struct {
	baseURL string
	apiKey  string
	limit   int
	quota   *QuotaDetector
	http    *upstream.Client
	logger  proxy.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Quota == nil {
		opts.Quota = NewQuotaDetector(nil, nil)
	}
	if opts.HTTP == nil {
		opts.HTTP = upstream.New(upstream.Options{Name: "primary", MaxRetries: -1, Logger: opts.Logger})
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:  strings.TrimSpace(opts.APIKey),
		limit:   opts.Limit,
		quota:   opts.Quota,
		http:    opts.HTTP,
		logger:  proxy.OrNop(opts.Logger),
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) authHeader() http.Header {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.apiKey != "" {
		header.Set(apiKeyHeader, c.apiKey)
	}
	return header
}

// Descriptor fetches the search recipe for source.
func (c *Client) Descriptor(ctx context.Context, source platform.Source) (*Descriptor, error) {
	endpoint := fmt.Sprintf("%s/v1/methods/%s/search", c.baseURL, url.PathEscape(string(source)))
	resp, err := c.http.Fetch(ctx, http.MethodGet, endpoint, c.authHeader(), nil)
	if err != nil {
		return nil, platform.Wrap(string(source), "descriptor", "", err)
	}

	data, err := c.envelope(source, "descriptor", resp)
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{
		Method:  strings.ToUpper(data.Get("method").String()),
		URL:     data.Get("url").String(),
		Params:  stringMap(data.Get("params")),
		Headers: stringMap(data.Get("headers")),
	}
	if body := data.Get("body"); body.Exists() && body.Type != gjson.Null {
		if body.Type == gjson.String {
			desc.Body = body.String()
		} else {
			desc.Body = body.Raw
		}
	}
	if desc.Method == "" {
		desc.Method = http.MethodGet
	}
	if desc.URL == "" {
		return nil, &platform.PlatformError{
			Platform: string(source),
			Resource: "descriptor",
			Err:      fmt.Errorf("%w: descriptor has no url", platform.ErrUpstream),
		}
	}
	return desc, nil
}

// Execute fills desc with vars and issues the platform request it describes.
// The raw platform payload is returned for the adapter to parse.
func (c *Client) Execute(ctx context.Context, source platform.Source, desc *Descriptor, vars Vars) ([]byte, error) {
	if vars.Page <= 0 {
		vars.Page = 1
	}
	if vars.Limit <= 0 {
		vars.Limit = c.limit
	}

	target, err := url.Parse(FillTemplate(desc.URL, vars))
	if err != nil {
		return nil, platform.Wrap(string(source), "search", vars.Keyword, fmt.Errorf("%w: descriptor url: %v", platform.ErrUpstream, err))
	}
	if len(desc.Params) > 0 {
		query := target.Query()
		for key, value := range desc.Params {
			query.Set(key, FillTemplate(value, vars))
		}
		target.RawQuery = query.Encode()
	}

	header := http.Header{}
	for key, value := range desc.Headers {
		header.Set(key, FillTemplate(value, vars))
	}

	var body []byte
	if desc.Body != "" && desc.Method != http.MethodGet {
		body = []byte(fillJSON(desc.Body, vars))
	}

	resp, err := c.http.Fetch(ctx, desc.Method, target.String(), header, body)
	if err != nil {
		return nil, platform.Wrap(string(source), "search", vars.Keyword, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, platform.Wrap(string(source), "search", vars.Keyword, &upstream.StatusError{
			Method:     desc.Method,
			URL:        target.Redacted(),
			StatusCode: resp.StatusCode,
			Attempts:   1,
		})
	}
	return resp.Body, nil
}

// Search runs both search stages: descriptor fetch, then its execution.
func (c *Client) Search(ctx context.Context, source platform.Source, keyword string) ([]byte, error) {
	desc, err := c.Descriptor(ctx, source)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("executing search descriptor", "source", source, "method", desc.Method)
	return c.Execute(ctx, source, desc, Vars{Keyword: keyword, Page: 1, Limit: c.limit})
}

type parseRequest struct {
	Platform string `json:"platform"`
	IDs      string `json:"ids"`
	Quality  string `json:"quality"`
}

// Parse asks the resolver for playable data of one song.
func (c *Client) Parse(ctx context.Context, source platform.Source, id string, bitrate platform.Bitrate) (*Track, error) {
	payload, err := json.Marshal(parseRequest{Platform: string(source), IDs: id, Quality: bitrate.String()})
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Fetch(ctx, http.MethodPost, c.baseURL+"/v1/parse", c.authHeader(), payload)
	if err != nil {
		return nil, platform.Wrap(string(source), "parse", id, err)
	}

	data, err := c.envelope(source, "parse", resp)
	if err != nil {
		return nil, err
	}

	item := data.Get("data.0")
	if !item.Exists() {
		item = data.Get("0")
	}
	if !item.Exists() {
		return nil, platform.NewNotFoundError(string(source), "parse", id)
	}
	if success := item.Get("success"); success.Exists() && !success.Bool() {
		if msg := item.Get("error").String(); c.quota.MatchMessage(msg) {
			return nil, platform.NewQuotaError(string(source), "parse", msg)
		}
		return nil, platform.NewNotFoundError(string(source), "parse", id)
	}

	track := &Track{
		ID:     firstString(item, "id", "info.id"),
		Title:  firstString(item, "info.name", "name", "title"),
		Artist: firstString(item, "info.artist", "artist", "singer"),
		Album:  firstString(item, "info.album", "album"),
		Cover:  firstString(item, "cover", "info.cover", "pic"),
		URL:    firstString(item, "url", "music_url"),
		Lyrics: firstString(item, "lyrics", "lyric", "lrc"),
	}
	if track.ID == "" {
		track.ID = id
	}
	if track.URL == "" {
		return nil, platform.NewNotFoundError(string(source), "parse", id)
	}
	return track, nil
}

// envelope checks the {code,msg,data} wrapper and returns data. Quota
// signals are classified here for both stages.
func (c *Client) envelope(source platform.Source, resource string, resp *upstream.Response) (gjson.Result, error) {
	root := gjson.ParseBytes(resp.Body)
	message := firstString(root, "msg", "message", "error")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := message
		if detail == "" {
			detail = snippet(resp.Body)
		}
		if c.quota.Match(resp.StatusCode, detail) {
			return gjson.Result{}, platform.NewQuotaError(string(source), resource, fmt.Sprintf("status %d: %s", resp.StatusCode, detail))
		}
		if resp.StatusCode == http.StatusNotFound {
			return gjson.Result{}, platform.NewNotFoundError(string(source), resource, "")
		}
		return gjson.Result{}, platform.Wrap(string(source), resource, "", &upstream.StatusError{
			Method:     http.MethodGet,
			URL:        c.baseURL,
			StatusCode: resp.StatusCode,
			Attempts:   1,
		})
	}

	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, platform.Wrap(string(source), resource, "", fmt.Errorf("%w: malformed reply", platform.ErrUpstream))
	}
	if code := root.Get("code"); code.Exists() && code.Int() != 0 && code.Int() != 200 {
		if c.quota.MatchMessage(message) {
			return gjson.Result{}, platform.NewQuotaError(string(source), resource, message)
		}
		return gjson.Result{}, &platform.PlatformError{
			Platform: string(source),
			Resource: resource,
			Err:      fmt.Errorf("%w: code %d: %s", platform.ErrNotFound, code.Int(), message),
		}
	}

	data := root.Get("data")
	if !data.Exists() {
		return root, nil
	}
	return data, nil
}

func stringMap(result gjson.Result) map[string]string {
	if !result.IsObject() {
		return nil
	}
	out := make(map[string]string)
	result.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.String()
		return true
	})
	return out
}

func firstString(result gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := strings.TrimSpace(result.Get(path).String()); v != "" {
			return v
		}
	}
	return ""
}

func snippet(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
