package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"death2data.org/internal/auth"
	"death2data.org/internal/certificate"
	"death2data.org/internal/export"
	"death2data.org/internal/obs"
	"death2data.org/internal/registry"
	"death2data.org/internal/saved"
	"death2data.org/internal/stream"
	"death2data.org/internal/usage"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth     *auth.Service
	registry *registry.Service
	certs    *certificate.Generator
	saves    *saved.Service
	exporter *export.Exporter
	meter    *usage.Meter
	stream   *stream.Stream
}

// Deps bundles the services the API fronts.
type Deps struct {
	Auth     *auth.Service
	Registry *registry.Service
	Certs    *certificate.Generator
	Saves    *saved.Service
	Exporter *export.Exporter
	Meter    *usage.Meter
	Stream   *stream.Stream
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       deps.Auth,
		registry:   deps.Registry,
		certs:      deps.Certs,
		saves:      deps.Saves,
		exporter:   deps.Exporter,
		meter:      deps.Meter,
		stream:     deps.Stream,
	}

	// health/ready/info/stats
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.HandleFunc("/v1/stats", a.Stats)

	// accounts and sessions
	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/session", a.handleSession)
	a.mux.HandleFunc("/v1/me/usage", a.handleUsage)
	a.mux.HandleFunc("/v1/me", a.handleAccount)

	// content registration and verification
	a.mux.HandleFunc("/v1/content", a.handleContentCollection)
	a.mux.HandleFunc("/v1/content/", a.handleContentResource)
	a.mux.HandleFunc("/v1/verify", a.handleVerify)

	// bookmarks and export
	a.mux.HandleFunc("/v1/saved", a.handleSavedCollection)
	a.mux.HandleFunc("/v1/saved/", a.handleSavedResource)
	a.mux.HandleFunc("/v1/export", a.handleExport)

	// SSE registration feed
	a.mux.HandleFunc("/v1/events", a.Stream)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the http.Handler for the server.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "d2d-registry",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "d2d-registry",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	records, err := a.registry.Count(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	users, err := a.auth.CountUsers(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registered_content": records,
		"users":              users,
		"as_of":              time.Now().UTC(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
