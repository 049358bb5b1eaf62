package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/liuran001/SongProxy-Go/proxy"
	"github.com/liuran001/SongProxy-Go/proxy/platform"
	"github.com/liuran001/SongProxy-Go/proxy/stream"
)

// Finder is the part of platform.Orchestrator the handlers need.
type Finder interface {
	Find(ctx context.Context, keyword string, bitrate platform.Bitrate) (*platform.SongRecord, error)
	Status() platform.Status
}

// Relay serves proxied assets. stream.Service satisfies it.
type Relay interface {
	Serve(w http.ResponseWriter, r *http.Request, req stream.Request) error
}

// Options configures a Server.
type Options struct {
	Host string
	Port int

	// BaseURL prefixes the proxy links. Empty derives it per request.
	BaseURL string
	// Bitrate is used when a request carries no br.
	Bitrate platform.Bitrate

	Finder   Finder
	Relay    Relay
	Health   *HealthCache
	UAFilter *UAFilter
	Logger   proxy.Logger
}

// Server is the public HTTP surface.
type Server struct {
	opts   Options
	logger proxy.Logger
	router *mux.Router
	http   *http.Server
}

// NewServer creates a Server and its routes.
func NewServer(opts Options) *Server {
	if opts.Health == nil {
		opts.Health = NewHealthCache(func(context.Context) HealthStatus {
			return HealthStatus{State: HealthOK}
		}, 0, 0)
	}
	s := &Server{
		opts:   opts,
		logger: proxy.OrNop(opts.Logger),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(s.logRequests)
	if s.opts.UAFilter != nil {
		router.Use(s.opts.UAFilter.Middleware)
	}

	router.HandleFunc("/", s.handleSong).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/stream", s.handleAsset(platform.AssetAudio)).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	router.HandleFunc("/cover", s.handleAsset(platform.AssetCover)).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	router.HandleFunc("/lyric", s.handleAsset(platform.AssetLyric)).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/sources", s.handleSources).Methods(http.MethodGet, http.MethodOptions)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": http.StatusNotFound, "msg": "route not found"})
	})
	return router
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown. The server has no write timeout so long streams are not cut.
func (s *Server) Start() error {
	if s.opts.BaseURL == "" {
		s.logger.Warn("BASE_URL not set; proxy links are derived from each request's host")
	}
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
