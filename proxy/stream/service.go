package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/liuran001/SongProxy-Go/proxy"
	"github.com/liuran001/SongProxy-Go/proxy/platform"
	"github.com/liuran001/SongProxy-Go/proxy/upstream"
)

const copyBufferSize = 32 * 1024

// Resolver re-resolves a (source, id) pair. platform.Orchestrator satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, source platform.Source, externalID string, bitrate platform.Bitrate) (*platform.SongRecord, error)
}

// Request names one proxied asset.
type Request struct {
	Source  platform.Source
	ID      string
	Kind    platform.AssetKind
	Bitrate platform.Bitrate
	// Range is the client's Range header, forwarded as is.
	Range string
}

// Response is an opened upstream asset. The caller closes Body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Service relays audio, cover and lyric bytes without buffering them.
type Service struct {
	resolver Resolver
	client   *upstream.Client
	logger   proxy.Logger
}

// Options configures a Service.
type Options struct {
	Resolver Resolver
	// Client fetches the asset bytes. Its retries only cover establishing
	// the connection; a body already being relayed is never retried.
	Client *upstream.Client
	Logger proxy.Logger
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	client := opts.Client
	if client == nil {
		client = upstream.New(upstream.Options{Name: "assets", MaxRetries: -1, Logger: opts.Logger})
	}
	return &Service{
		resolver: opts.Resolver,
		client:   client,
		logger:   proxy.OrNop(opts.Logger),
	}
}

var referers = map[platform.Source]string{
	platform.SourceKuwo:     "https://www.kuwo.cn/",
	platform.SourceFallback: "https://www.kuwo.cn/",
	platform.SourceNetease:  "https://music.163.com/",
	platform.SourceQQ:       "https://y.qq.com/",
}

// Referer returns the Referer a source's CDN expects, or "".
func Referer(source platform.Source) string {
	return referers[source]
}

var mirroredHeaders = []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges"}

// Open resolves the asset afresh and opens it upstream.
func (s *Service) Open(ctx context.Context, req Request) (*Response, error) {
	record, err := s.resolver.Resolve(ctx, req.Source, req.ID, req.Bitrate)
	if err != nil {
		return nil, err
	}

	if req.Kind == platform.AssetLyric && record.Asset.Lyric != "" && record.Asset.LyricURL == "" {
		header := http.Header{}
		header.Set("Content-Type", "text/plain; charset=utf-8")
		header.Set("Content-Length", strconv.Itoa(len(record.Asset.Lyric)))
		return &Response{
			StatusCode: http.StatusOK,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader(record.Asset.Lyric)),
		}, nil
	}

	target := record.Asset.URL(req.Kind)
	if target == "" {
		return nil, platform.NewNotFoundError(string(req.Source), string(req.Kind), req.ID)
	}

	httpReq, err := s.client.NewRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: asset url: %v", platform.ErrUpstream, err)
	}
	if referer := Referer(req.Source); referer != "" {
		httpReq.Header.Set("Referer", referer)
	}
	if req.Range != "" {
		httpReq.Header.Set("Range", req.Range)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, platform.Wrap(string(req.Source), string(req.Kind), req.ID, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, platform.NewNotFoundError(string(req.Source), string(req.Kind), req.ID)
	default:
		resp.Body.Close()
		return nil, platform.Wrap(string(req.Source), string(req.Kind), req.ID, &upstream.StatusError{
			Method:     http.MethodGet,
			URL:        httpReq.URL.Redacted(),
			StatusCode: resp.StatusCode,
			Attempts:   1,
		})
	}

	header := http.Header{}
	for _, key := range mirroredHeaders {
		if value := resp.Header.Get(key); value != "" {
			header.Set(key, value)
		}
	}
	switch req.Kind {
	case platform.AssetLyric:
		header.Set("Content-Type", "text/plain; charset=utf-8")
	case platform.AssetAudio:
		if header.Get("Accept-Ranges") == "" {
			header.Set("Accept-Ranges", "bytes")
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: header, Body: resp.Body}, nil
}

// Serve opens the asset and relays it to w. An error is returned only when
// nothing has been written yet, so the caller can still pick a status code.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, req Request) error {
	resp, err := s.Open(r.Context(), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		w.Header()[key] = values
	}
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return nil
	}

	written, err := copyWithFlush(w, resp.Body)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("asset relay interrupted", "source", req.Source, "id", req.ID, "kind", req.Kind, "written", written, "error", err)
	}
	return nil
}

func copyWithFlush(w http.ResponseWriter, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	rc := http.NewResponseController(w)
	var written int64

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			_ = rc.Flush()
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
