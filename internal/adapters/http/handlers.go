package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/csrf"
	"github.com/patrickmn/go-cache"

	"choirreport/internal/adapters/http/middleware"
	"choirreport/internal/adapters/http/perf"
	"choirreport/internal/adapters/storage/archive"
	"choirreport/internal/application/orchestrators"
	emailDomain "choirreport/internal/domain/email"
)

const historyLimit = 50

// pageData is shared by every page template.
type pageData struct {
	Title string
	Kinds []orchestrators.Kind
}

type emailView struct {
	Subject      string
	To, Cc       []string
	WorthSending bool
	Body         template.HTML
}

func (s *Server) page(title string) pageData {
	return pageData{Title: title, Kinds: s.kinds()}
}

// render executes a page template into a buffer so a template error still
// yields a clean 500.
func render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// runFor resolves the {kind} path value to its configured run.
func (s *Server) runFor(w http.ResponseWriter, r *http.Request) (orchestrators.RunInput, bool) {
	kind, err := orchestrators.ParseKind(r.PathValue("kind"))
	if err != nil {
		http.NotFound(w, r)
		return orchestrators.RunInput{}, false
	}
	in, ok := s.cfg.Runs[kind]
	if !ok {
		http.NotFound(w, r)
		return orchestrators.RunInput{}, false
	}
	in.Kind = kind
	return in, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		pageData
		HasArchive bool
		Deliveries []emailDomain.Delivery
	}{pageData: s.page("Reports"), HasArchive: s.deps.Archive != nil}
	if s.deps.Archive != nil {
		ds, err := s.deps.Archive.List(r.Context(), "", 10)
		if err != nil {
			internalError(w, err)
			return
		}
		data.Deliveries = ds
	}
	render(w, http.StatusOK, "index", data)
}

// loadSources returns the kind's sources for today, fetched at most once per
// cache TTL. The key includes the date and the rehearsal cut-off so the
// evening switch-over is never served stale.
func (s *Server) loadSources(ctx context.Context, in orchestrators.RunInput, now time.Time, refresh bool) (orchestrators.Sources, bool, error) {
	li := in.LoadInput(now)
	key := string(in.Kind) + "/" + li.Today.String() + "/" + li.RehearsalsTo.String()
	if !refresh {
		if cached, found := s.sources.Get(key); found {
			return cached.(orchestrators.Sources), true, nil
		}
	}
	src, err := orchestrators.LoadSources(ctx, li, s.deps.Run.Sources)
	if err != nil {
		return orchestrators.Sources{}, false, err
	}
	s.sources.Set(key, src, cache.DefaultExpiration)
	return src, false, nil
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	in, ok := s.runFor(w, r)
	if !ok {
		return
	}
	now := s.deps.Run.Now()
	start := time.Now()

	src, cached, err := s.loadSources(r.Context(), in, now, r.URL.Query().Get("refresh") != "")
	if err != nil {
		slog.Error("preview_sources_failed", "kind", in.Kind, "error", err)
		http.Error(w, "could not load report data: "+err.Error(), http.StatusBadGateway)
		return
	}
	results, err := orchestrators.BuildReport(r.Context(), in.Kind, in.ReportInput(src, now),
		orchestrators.ReportDeps{Renderer: s.deps.Run.Renderer})
	if s.deps.Collector != nil {
		s.deps.Collector.Record(perf.Entry{
			Kind:       perf.KindBuild,
			Name:       string(in.Kind),
			DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
			Timestamp:  start,
		})
	}
	if err != nil {
		slog.Error("preview_build_failed", "kind", in.Kind, "error", err)
		http.Error(w, "could not build report: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	views := make([]emailView, len(results))
	for i, res := range results {
		views[i] = emailView{
			Subject:      res.Email.Subject,
			To:           res.Email.To,
			Cc:           res.Email.Cc,
			WorthSending: res.WorthSending,
			Body:         template.HTML(res.Email.HTML), // produced by render.Renderer, already escaped
		}
	}
	slog.Info("preview_rendered", "kind", in.Kind, "emails", len(views), "cached_sources", cached)
	render(w, http.StatusOK, "preview", struct {
		pageData
		Kind      orchestrators.Kind
		Cycle     string
		Season    string
		Now       time.Time
		Cached    bool
		CSRFToken string
		Emails    []emailView
	}{
		pageData:  s.page("Preview: " + string(in.Kind)),
		Kind:      in.Kind,
		Cycle:     src.Cycle.String(),
		Season:    src.Season,
		Now:       now,
		Cached:    cached,
		CSRFToken: csrf.Token(r),
		Emails:    views,
	})
}

// handleSend runs the report now with Force set, refetching every source.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	in, ok := s.runFor(w, r)
	if !ok {
		return
	}
	in.Force = true
	in.DryRun = in.DryRun || r.FormValue("dry_run") == "1"
	user, _ := middleware.UserFromContext(r.Context())
	slog.Info("preview_send_requested", "kind", in.Kind, "user", user, "dry_run", in.DryRun)

	summary, err := orchestrators.ExecuteRun(r.Context(), in, s.deps.Run)
	s.sources.Flush()

	status := http.StatusOK
	errText := ""
	if err != nil {
		status = http.StatusBadGateway
		errText = err.Error()
	}
	render(w, status, "sent", struct {
		pageData
		RunID      string
		Sent       int
		Error      string
		Deliveries []emailDomain.Delivery
	}{
		pageData:   s.page("Sent: " + string(in.Kind)),
		RunID:      summary.RunID,
		Sent:       summary.Sent(),
		Error:      errText,
		Deliveries: summary.Deliveries,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		http.NotFound(w, r)
		return
	}
	kind := r.URL.Query().Get("kind")
	limit := historyLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	ds, err := s.deps.Archive.List(r.Context(), kind, limit)
	if err != nil {
		internalError(w, err)
		return
	}
	render(w, http.StatusOK, "history", struct {
		pageData
		Deliveries []emailDomain.Delivery
	}{s.page("History"), ds})
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		http.NotFound(w, r)
		return
	}
	d, err := s.deps.Archive.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, archive.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	render(w, http.StatusOK, "delivery", struct {
		pageData
		Delivery emailDomain.Delivery
		Body     template.HTML
	}{s.page(d.Subject), d, template.HTML(d.HTML)})
}

func (s *Server) handleTimings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Collector == nil {
		http.NotFound(w, r)
		return
	}
	since := time.Hour
	if v, err := time.ParseDuration(r.URL.Query().Get("since")); err == nil && v > 0 {
		since = v
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.deps.Collector.Snapshot(time.Now().Add(-since), 10))
}
