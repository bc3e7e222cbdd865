// Package httpapi serves subscribers over WebSocket, plus a small JSON API,
// health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperengineering/setaside"
)

// DefaultSendTimeout bounds a single write to a subscriber.
const DefaultSendTimeout = 5 * time.Second

// Options configures the router.
type Options struct {
	Coordinator *setaside.Coordinator
	// Health reports store health for /healthz. Optional.
	Health func(ctx context.Context) setaside.HealthStatus
	Logger log.Logger
	// AllowedOrigins lists browser origins allowed to call the API and open
	// subscriber sockets. "*" allows any.
	AllowedOrigins []string
	// JWTSecret, when set, requires an HS256 bearer token on /ws and /api.
	JWTSecret   string
	SendTimeout time.Duration
	// Gatherer serves /metrics. Defaults to the default registry.
	Gatherer prometheus.Gatherer
}

type server struct {
	opts   Options
	coord  *setaside.Coordinator
	logger log.Logger
}

// NewRouter returns the HTTP handler for `setaside serve`.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.SendTimeout == 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &server{
		opts:   opts,
		coord:  opts.Coordinator,
		logger: log.With(opts.Logger, "component", "http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(s.cors())
	}

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/ws", s.serveWS)
		r.Route("/api/collections", func(r chi.Router) {
			r.Get("/", s.listCollections)
			r.Post("/", s.setAside)
			r.Get("/{id}", s.getCollection)
			r.Delete("/{id}", s.removeCollection)
			r.Post("/{id}/restore", s.restoreCollection)
			r.Delete("/{id}/items/{item}", s.removeItem)
			r.Post("/{id}/items/{item}/restore", s.restoreItem)
		})
	})
	return r
}

func (s *server) cors() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
		},
		MaxAge: 300,
	}
	if !allowsAny(s.opts.AllowedOrigins) {
		opts.AllowCredentials = true
	}
	return cors.Handler(opts)
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// originPatterns converts allowed origins to the host patterns the WebSocket
// handshake checks.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		level.Debug(s.logger).Log(
			"op", "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	status := setaside.HealthStatus{Healthy: true, Ready: s.coord.Ready()}
	if s.opts.Health != nil {
		status = s.opts.Health(r.Context())
	}
	code := http.StatusOK
	if !status.Healthy || !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *server) listCollections(w http.ResponseWriter, r *http.Request) {
	if !s.coord.Ready() {
		writeError(w, http.StatusServiceUnavailable, setaside.ErrNotReady.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Collections())
}

func (s *server) getCollection(w http.ResponseWriter, r *http.Request) {
	col, ok := s.coord.Collection(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, setaside.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, col)
}

type setAsideRequest struct {
	Tabs []setaside.Tab `json:"tabs"`
}

func (s *server) setAside(w http.ResponseWriter, r *http.Request) {
	var req setAsideRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	col, err := s.coord.SetAside(r.Context(), req.Tabs)
	if err != nil {
		s.fail(w, "setAside", err)
		return
	}
	if col == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

func (s *server) removeCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.RemoveCollection(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "removeCollection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) restoreCollection(w http.ResponseWriter, r *http.Request) {
	dest := r.URL.Query().Get("destination")
	if err := s.coord.RestoreCollection(r.Context(), chi.URLParam(r, "id"), dest); err != nil {
		s.fail(w, "restoreCollection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) removeItem(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "item")); err != nil {
		s.fail(w, "removeItem", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) restoreItem(w http.ResponseWriter, r *http.Request) {
	dest := r.URL.Query().Get("destination")
	if err := s.coord.RestoreItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "item"), dest); err != nil {
		s.fail(w, "restoreItem", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) fail(w http.ResponseWriter, op string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, setaside.ErrQuotaExceeded):
		code = http.StatusInsufficientStorage
	case errors.Is(err, setaside.ErrNotReady):
		code = http.StatusServiceUnavailable
	case errors.Is(err, setaside.ErrOpenUnavailable):
		code = http.StatusNotImplemented
	default:
		level.Error(s.logger).Log("op", op, "error", err)
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
