package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/liuran001/SongProxy-Go/proxy/platform"
	"github.com/liuran001/SongProxy-Go/proxy/upstream"
)

type stubResolver struct {
	record *platform.SongRecord
	err    error
	calls  int
}

func (s *stubResolver) Resolve(ctx context.Context, source platform.Source, id string, bitrate platform.Bitrate) (*platform.SongRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

func newService(resolver Resolver) *Service {
	return NewService(Options{
		Resolver: resolver,
		Client:   upstream.New(upstream.Options{MaxRetries: 1, BackoffStep: time.Millisecond}),
	})
}

func TestServeForwardsRangeAndMirrorsHeaders(t *testing.T) {
	var gotRange, gotReferer string
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", "4")
		w.Header().Set("Content-Range", "bytes 0-3/100")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("X-Internal", "secret")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("abcd"))
	}))
	defer cdn.Close()

	resolver := &stubResolver{record: platform.NewSongRecord(platform.SourceNetease, "1", "t", "a", platform.Asset{StreamURL: cdn.URL + "/a.mp3"})}
	service := newService(resolver)

	req := httptest.NewRequest(http.MethodGet, "/stream?source=netease&id=1", nil)
	rec := httptest.NewRecorder()
	err := service.Serve(rec, req, Request{Source: platform.SourceNetease, ID: "1", Kind: platform.AssetAudio, Range: "bytes=0-3"})
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	if gotRange != "bytes=0-3" {
		t.Fatalf("range not forwarded: %q", gotRange)
	}
	if gotReferer != "https://music.163.com/" {
		t.Fatalf("unexpected referer: %q", gotReferer)
	}
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Header().Get("Content-Range") != "bytes 0-3/100" || rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Fatalf("range headers not mirrored: %v", rec.Header())
	}
	if rec.Header().Get("Content-Type") != "audio/mpeg" || rec.Header().Get("Content-Length") != "4" {
		t.Fatalf("content headers not mirrored: %v", rec.Header())
	}
	if rec.Header().Get("X-Internal") != "" {
		t.Fatalf("unexpected header leaked")
	}
	if rec.Body.String() != "abcd" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
	if resolver.calls != 1 {
		t.Fatalf("expected one resolve, got %d", resolver.calls)
	}
}

func TestServeResolvesOnEveryRequest(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer cdn.Close()

	resolver := &stubResolver{record: platform.NewSongRecord(platform.SourceKuwo, "1", "t", "a", platform.Asset{StreamURL: cdn.URL})}
	service := newService(resolver)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		if err := service.Serve(rec, httptest.NewRequest(http.MethodGet, "/stream", nil), Request{Source: platform.SourceKuwo, ID: "1", Kind: platform.AssetAudio}); err != nil {
			t.Fatalf("Serve failed: %v", err)
		}
		if rec.Header().Get("Accept-Ranges") != "bytes" {
			t.Fatalf("audio should advertise byte ranges")
		}
	}
	if resolver.calls != 3 {
		t.Fatalf("expected 3 resolves, got %d", resolver.calls)
	}
}

func TestOpenInlineLyric(t *testing.T) {
	resolver := &stubResolver{record: platform.NewSongRecord(platform.SourceKuwo, "1", "t", "a", platform.Asset{Lyric: "[00:00.00]hi"})}
	resp, err := newService(resolver).Open(context.Background(), Request{Source: platform.SourceKuwo, ID: "1", Kind: platform.AssetLyric})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "[00:00.00]hi" {
		t.Fatalf("unexpected lyric: %q", body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}
}

func TestOpenRemoteLyricForcesTextPlain(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("lrc"))
	}))
	defer cdn.Close()

	resolver := &stubResolver{record: platform.NewSongRecord(platform.SourceFallback, "1", "t", "a", platform.Asset{LyricURL: cdn.URL})}
	resp, err := newService(resolver).Open(context.Background(), Request{Source: platform.SourceFallback, ID: "1", Kind: platform.AssetLyric})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}
}

func TestOpenErrors(t *testing.T) {
	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer missing.Close()
	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer forbidden.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	record := func(streamURL string) *platform.SongRecord {
		return platform.NewSongRecord(platform.SourceKuwo, "1", "t", "a", platform.Asset{StreamURL: streamURL})
	}

	tests := []struct {
		name     string
		resolver *stubResolver
		kind     platform.AssetKind
		want     error
	}{
		{name: "resolve not found", resolver: &stubResolver{err: platform.NewNotFoundError("kuwo", "track", "1")}, kind: platform.AssetAudio, want: platform.ErrNotFound},
		{name: "no cover", resolver: &stubResolver{record: record("http://unused")}, kind: platform.AssetCover, want: platform.ErrNotFound},
		{name: "asset 404", resolver: &stubResolver{record: record(missing.URL)}, kind: platform.AssetAudio, want: platform.ErrNotFound},
		{name: "asset 403", resolver: &stubResolver{record: record(forbidden.URL)}, kind: platform.AssetAudio, want: platform.ErrUpstream},
		{name: "asset 502", resolver: &stubResolver{record: record(broken.URL)}, kind: platform.AssetAudio, want: platform.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(tt.resolver).Open(context.Background(), Request{Source: platform.SourceKuwo, ID: "1", Kind: tt.kind})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReferer(t *testing.T) {
	if Referer(platform.SourceKuwo) != "https://www.kuwo.cn/" || Referer(platform.SourceQQ) != "https://y.qq.com/" {
		t.Fatalf("unexpected referers")
	}
	if Referer("unknown") != "" {
		t.Fatalf("unknown source should have no referer")
	}
}
