package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/webmon/webmon/internal/httpapi/middleware"
	"github.com/webmon/webmon/internal/probe"
	"github.com/webmon/webmon/internal/registry"
	"github.com/webmon/webmon/internal/repo"
	"github.com/webmon/webmon/internal/stats"
	"github.com/webmon/webmon/internal/supervisor"
)

// Server exposes the monitoring core over a local HTTP API: one-shot
// checks, background job management and dashboards.
type Server struct {
	Logger     *zap.Logger
	Registry   *registry.Registry
	Supervisor *supervisor.Supervisor
	History    repo.HistoryStore
	Checker    probe.Checker
}

func NewServer(l *zap.Logger, reg *registry.Registry, sup *supervisor.Supervisor, hs repo.HistoryStore, chk probe.Checker) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Registry: reg, Supervisor: sup, History: hs, Checker: chk}
}

func (s *Server) Router(keys middleware.Keys, origins []string, rpm, burst int) http.Handler {
	r := chi.NewRouter()

	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
		}))
	} else {
		r.Use(cors.AllowAll().Handler)
	}
	r.Use(middleware.RateLimit(rpm, burst))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAny(keys))
		r.Post("/api/check", s.handleCheck)
		r.Get("/api/jobs", s.handleListJobs)
		r.Get("/api/jobs/{id}", s.handleJobDetails)
		r.Get("/api/jobs/{id}/logs", s.handleJobLogs)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(keys))
		r.Post("/api/jobs", s.handleStartJob)
		r.Delete("/api/jobs/{id}", s.handleStopJob)
	})

	return r
}

type checkPayload struct {
	URL string `json:"url"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var p checkPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.URL == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	url, err := probe.Normalize(p.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := s.Checker.Check(r.Context(), url)

	// a transport failure gets a DNS classification for diagnostics
	if !out.Success && out.StatusCode == 0 {
		dns := probe.CheckDNS(r.Context(), probe.HostOf(url))
		s.Logger.Info("dns_check",
			zap.String("domain", dns.Domain),
			zap.String("class", dns.Class),
			zap.String("resolver_error", dns.ResolverError),
		)
		if dns.Class != "RESOLVES" {
			out.Error = out.Error + " dns=" + dns.Class
		}
	}

	s.Logger.Info("checked",
		zap.String("url", url),
		zap.Bool("success", out.Success),
		zap.Int("status", out.StatusCode),
		zap.Float64("latency_ms", out.LatencyMS),
	)
	writeJSON(w, http.StatusOK, out)
}

type startPayload struct {
	URL             string `json:"url"`
	IntervalSeconds int    `json:"interval_seconds"`
	MaxChecks       int    `json:"max_checks"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var p startPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.URL == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if p.IntervalSeconds < 0 || p.MaxChecks < 0 {
		writeError(w, http.StatusBadRequest, "interval and max_checks must be non-negative")
		return
	}

	job, err := s.Supervisor.Start(r.Context(), p.URL, time.Duration(p.IntervalSeconds)*time.Second, p.MaxChecks)
	if err != nil {
		switch {
		case errors.Is(err, probe.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.Logger.Error("start_failed", zap.String("url", p.URL), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not start job")
		}
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.Registry.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleJobDetails(w http.ResponseWriter, r *http.Request) {
	job, err := s.Supervisor.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	dash, err := stats.Compute(r.Context(), job, s.History)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "aggregation error")
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	n := 20
	if q := r.URL.Query().Get("n"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			n = v
		}
	}
	lines, err := s.Supervisor.Logs(r.Context(), chi.URLParam(r, "id"), n)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	out, err := s.Supervisor.Stop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, registry.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.Logger.Error("stop_failed", zap.String("id", chi.URLParam(r, "id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":          out.Job.ID,
		"already_stopped": out.AlreadyStopped,
	})
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, registry.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "lookup error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
