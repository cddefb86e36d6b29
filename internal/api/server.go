// Package api exposes status resolution and report generation over HTTP.
package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/report"
	"github.com/partnerhealth/report-core/internal/status"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// StatusResolver resolves a user's unified status.
type StatusResolver interface {
	Status(ctx context.Context, q status.Query) (*status.Result, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers need. Progress and Realtime may be
// nil; Checkups nil disables ingestion.
type Deps struct {
	Status         StatusResolver
	Launcher       report.Launcher
	Checkups       CheckupWriter
	Progress       report.ProgressTracker
	Health         Pinger
	Realtime       http.Handler
	AllowedOrigins []string
}

// Server holds the handlers.
type Server struct {
	deps     Deps
	validate *validator.Validate
}

// NewServer creates a server.
func NewServer(deps Deps) *Server {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{deps: deps, validate: v}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if s.deps.Realtime != nil {
		r.Handle("/ws", s.deps.Realtime)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/reports/generate", s.handleGenerate)
		r.Get("/reports/progress", s.handleProgress)
		if s.deps.Checkups != nil {
			r.Post("/checkups", s.handleIngestCheckup)
		}
	})
	return r
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
