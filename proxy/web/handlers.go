package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/liuran001/SongProxy-Go/proxy/platform"
	"github.com/liuran001/SongProxy-Go/proxy/stream"
)

// SongResponse is the body of a successful search.
type SongResponse struct {
	Code     int    `json:"code"`
	Title    string `json:"title"`
	Singer   string `json:"singer"`
	Cover    string `json:"cover"`
	Link     string `json:"link"`
	MusicURL string `json:"music_url"`
	Lyric    string `json:"lyric"`
	Source   string `json:"source"`
}

// ErrorResponse is the body of every JSON failure.
type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Name string `json:"name,omitempty"`
}

func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name := strings.TrimSpace(query.Get("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: http.StatusBadRequest, Msg: platform.NewValidationError("name").Error()})
		return
	}
	bitrate := platform.BitrateOr(query.Get("br"), s.opts.Bitrate)

	record, err := s.opts.Finder.Find(r.Context(), name, bitrate)
	if err != nil {
		switch {
		case errors.Is(err, platform.ErrValidation):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: http.StatusBadRequest, Msg: err.Error()})
		case errors.Is(err, platform.ErrNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Code: http.StatusNotFound, Msg: "song not found", Name: name})
		case errors.Is(err, context.Canceled):
			s.logger.Debug("search canceled by client", "name", name)
		default:
			s.logger.Error("search failed", "name", name, "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: http.StatusInternalServerError, Msg: "internal error"})
		}
		return
	}

	links := platform.Links(s.baseURL(r), record, bitrate)
	writeJSON(w, http.StatusOK, SongResponse{
		Code:     http.StatusOK,
		Title:    record.Title,
		Singer:   record.Artist,
		Cover:    links.Cover,
		Link:     record.DetailLink,
		MusicURL: links.Stream,
		Lyric:    links.Lyric,
		Source:   string(record.Source),
	})
}

func (s *Server) handleAsset(kind platform.AssetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.assetRequest(r, kind)
		if err == nil {
			err = s.opts.Relay.Serve(w, r, req)
		}
		if err == nil {
			return
		}

		status := assetStatus(err)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case status >= http.StatusInternalServerError:
			s.logger.Warn("asset proxy failed", "kind", kind, "source", req.Source, "id", req.ID, "error", err)
		}
		writeJSON(w, status, ErrorResponse{Code: status, Msg: assetMessage(status, err)})
	}
}

func (s *Server) assetRequest(r *http.Request, kind platform.AssetKind) (stream.Request, error) {
	query := r.URL.Query()
	req := stream.Request{
		ID:    strings.TrimSpace(query.Get("id")),
		Kind:  kind,
		Range: r.Header.Get("Range"),
	}

	rawSource := strings.TrimSpace(query.Get("source"))
	if rawSource == "" {
		return req, platform.NewValidationError("source")
	}
	source, err := platform.ParseSource(rawSource)
	if err != nil {
		return req, platform.NewInvalidParamError("source", rawSource)
	}
	req.Source = source
	if req.ID == "" {
		return req, platform.NewValidationError("id")
	}

	req.Bitrate = s.opts.Bitrate
	if raw := strings.TrimSpace(query.Get("br")); raw != "" && kind == platform.AssetAudio {
		bitrate, err := platform.ParseBitrate(raw)
		if err != nil {
			return req, platform.NewInvalidParamError("br", raw)
		}
		req.Bitrate = bitrate
	}
	return req, nil
}

func assetStatus(err error) int {
	switch {
	case errors.Is(err, platform.ErrValidation), errors.Is(err, platform.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, platform.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func assetMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusNotFound:
		return "resource not found"
	default:
		return "upstream unavailable"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.opts.Health.Get(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    status.State,
		"timestamp": status.CheckedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	status := s.opts.Finder.Status()
	priority := make([]string, 0, len(status.Priority))
	for _, source := range status.Priority {
		priority = append(priority, string(source))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":           http.StatusOK,
		"priority":       priority,
		"force_fallback": status.ForceFallback,
		"fallback":       status.Fallback,
	})
}

func (s *Server) baseURL(r *http.Request) string {
	if s.opts.BaseURL != "" {
		return s.opts.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return scheme + "://" + host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}
