// Package server exposes the location cache over a read-only HTTP API.
package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/resale-enrich/internal/address"
	"github.com/sells-group/resale-enrich/internal/locache"
)

// Source is the read side of the location cache.
type Source interface {
	Get(key address.Key) (locache.Entry, bool)
	Snapshot() locache.Entries
}

// LocationResponse is the body of a successful lookup.
type LocationResponse struct {
	Key      address.Key   `json:"key"`
	Location locache.Entry `json:"location"`
}

type handler struct {
	src Source
}

// NewRouter builds the API routes.
func NewRouter(src Source, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	h := &handler{src: src}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/locations", h.lookupByParts)
		r.Get("/locations/{key}", h.lookupByKey)
		r.Get("/cache/stats", h.cacheStats)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) lookupByKey(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}
	h.respond(w, address.Key(address.NormalizeStreet(raw)))
}

func (h *handler) lookupByParts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := address.NewKey(q.Get("block"), q.Get("street"))
	if key.IsZero() {
		writeError(w, http.StatusBadRequest, "block or street is required")
		return
	}
	h.respond(w, key)
}

func (h *handler) respond(w http.ResponseWriter, key address.Key) {
	if key.IsZero() {
		writeError(w, http.StatusBadRequest, "empty key")
		return
	}
	e, ok := h.src.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "address not cached: "+key.String())
		return
	}
	writeJSON(w, http.StatusOK, LocationResponse{Key: key, Location: e})
}

func (h *handler) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, locache.Summarize(h.src.Snapshot()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
