package httpapi

import (
	"context"
	"net/http"
	"time"

	"aedile.org/internal/audit"
	"aedile.org/internal/authz"
	"aedile.org/internal/obs"
	"aedile.org/internal/session"
)

// ReadyProbe — readiness check backed by the database pool.
type ReadyProbe struct {
	Check func(ctx context.Context) error
}

func (rp ReadyProbe) ok(ctx context.Context) error {
	if rp.Check == nil {
		return nil
	}
	return rp.Check(ctx)
}

// Config carries the API's deployment knobs.
type Config struct {
	Version string
	// Secure marks the session cookies Secure; set in production.
	Secure bool
	// Rate limits per client IP; zero values take the defaults. Auth
	// endpoints get their own tighter bucket.
	RateBurst      int
	RatePerSec     int
	AuthRateBurst  int
	AuthRatePerSec int
}

func (c *Config) applyDefaults() {
	if c.RateBurst == 0 {
		c.RateBurst = 50
	}
	if c.RatePerSec == 0 {
		c.RatePerSec = 25
	}
	if c.AuthRateBurst == 0 {
		c.AuthRateBurst = 10
	}
	if c.AuthRatePerSec == 0 {
		c.AuthRatePerSec = 2
	}
}

// API is the HTTP transport over the session manager and role service.
type API struct {
	mux      *http.ServeMux
	sessions *session.Manager
	roles    *authz.Service
	audit    *audit.Recorder
	probe    ReadyProbe
	cfg      Config
}

func New(sessions *session.Manager, roles *authz.Service, recorder *audit.Recorder, probe ReadyProbe, cfg Config) *API {
	cfg.applyDefaults()
	a := &API{
		mux:      http.NewServeMux(),
		sessions: sessions,
		roles:    roles,
		audit:    recorder,
		probe:    probe,
		cfg:      cfg,
	}

	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)

	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/users/", a.handleUserRoles)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.cfg.RateBurst, a.cfg.RatePerSec, a.cfg.AuthRateBurst, a.cfg.AuthRatePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "aedile-api",
		"version": a.cfg.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.ok(r.Context()); err != nil {
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
		"name":    "aedile-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.cfg.Version,
	})
}
