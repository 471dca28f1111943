// Package web serves an authenticated preview of each report with a button
// to send it now, plus the delivery history.
package web

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"choirreport/internal/adapters/http/middleware"
	"choirreport/internal/adapters/http/perf"
	"choirreport/internal/adapters/storage/archive"
	"choirreport/internal/application/orchestrators"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("web").Funcs(template.FuncMap{
	"join": func(addrs []string) string { return strings.Join(addrs, ", ") },
}).ParseFS(templateFS, "templates/*.html"))

// Config holds the preview server settings.
type Config struct {
	// Runs is the scheduled configuration of each report kind; previews and
	// sends use it unchanged except for Force.
	Runs           map[orchestrators.Kind]orchestrators.RunInput
	Credentials    middleware.Credentials
	CSRFKey        []byte // 32 bytes
	Secure         bool   // served over HTTPS
	TrustedOrigins []string
	SourceCacheTTL time.Duration
	SlowRequest    time.Duration
	RatePerSecond  int
}

// Deps holds the server's collaborators.
type Deps struct {
	Run       orchestrators.RunDeps
	Archive   archive.Store  // optional; hides history when nil
	Collector *perf.Collector // optional
}

// Server renders report previews on demand.
type Server struct {
	cfg     Config
	deps    Deps
	sources *cache.Cache // orchestrators.Sources by kind
}

// NewServer validates cfg and builds a server.
// PRE: cfg.Runs has an entry for every kind to serve
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if len(cfg.CSRFKey) != 32 {
		return nil, errors.New("csrf key must be 32 bytes")
	}
	if cfg.Credentials.Username == "" || len(cfg.Credentials.PasswordHash) == 0 {
		return nil, errors.New("preview credentials are required")
	}
	if cfg.SourceCacheTTL <= 0 {
		cfg.SourceCacheTTL = 5 * time.Minute
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		sources: cache.New(cfg.SourceCacheTTL, 2*cfg.SourceCacheTTL),
	}, nil
}

// Handler returns the routes wrapped in the middleware chain:
// Timing -> RateLimit -> BasicAuth -> CSRF -> SecurityHeaders -> mux.
func (s *Server) Handler() http.Handler {
	limiter := middleware.NewRateLimiter(s.cfg.RatePerSecond, time.Second)
	return middleware.Chain(s.routes(),
		middleware.SecurityHeaders,
		middleware.CSRF(s.cfg.CSRFKey, s.cfg.Secure, s.cfg.TrustedOrigins),
		middleware.BasicAuth(s.cfg.Credentials, "choirreport"),
		middleware.RateLimit(limiter),
		middleware.Timing(s.deps.Collector, s.cfg.SlowRequest),
	)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /reports/{kind}", s.handlePreview)
	mux.HandleFunc("POST /reports/{kind}/send", s.handleSend)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /history/{id}", s.handleDelivery)
	mux.HandleFunc("GET /debug/timings", s.handleTimings)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

// kinds lists the configured report kinds in their canonical order.
func (s *Server) kinds() []orchestrators.Kind {
	var out []orchestrators.Kind
	for _, k := range orchestrators.Kinds {
		if _, ok := s.cfg.Runs[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
