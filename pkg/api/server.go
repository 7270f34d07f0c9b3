// Package api wires the HTTP facade (C9's REST binding) and the admin CRUD
// surface over a chi router, mirroring the teacher's pkg/api/server.go
// composition-root style: one router, sub-routers mounted per concern.
package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/toolgateway/registry/pkg/audit"
	"github.com/toolgateway/registry/pkg/config"
	"github.com/toolgateway/registry/pkg/mcpfacade"
)

// Deps collects every collaborator the HTTP surface calls into.
type Deps struct {
	Facade    *mcpfacade.Facade
	Tools     ToolAdmin
	Discovery DiscoverySyncer
	Health    HealthChecker
	Auditor   *audit.Auditor
	Config    config.Config
}

// NewRouter builds the complete chi router: /mcp, /admin, and the health
// probes, wrapped in the teacher's standard middleware stack plus the
// request-size caps and admin-key gate this system adds.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if deps.Auditor != nil {
		r.Use(deps.Auditor.Middleware)
	}
	r.Use(maxBodyBytes(deps.Config.RequestLimits.MaxBodyBytes))
	if origins := deps.Config.Server.CORSOrigins; len(origins) > 0 {
		r.Use(corsMiddleware(origins, deps.Config.Production))
	}

	r.Mount("/mcp", mcpRouter(deps.Facade, deps.Config.RequestLimits))
	r.Mount("/admin", adminRouter(deps.Tools, deps.Discovery, deps.Config.Admin))

	r.Get("/health", healthHandler(deps.Health))
	r.Get("/ready", readyHandler(deps.Health))
	r.Get("/live", liveHandler(deps.Health))

	return r
}

// maxBodyBytes caps every request body at the configured ceiling (§6
// "request-size caps"), rejecting oversized bodies before they reach a
// handler's json.Decode.
func maxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware strips AllowCredentials whenever a wildcard origin is
// present: a "*" origin combined with credentials would leak the shared
// admin key to any page that can issue a fetch, so the rule applies
// unconditionally, not only in production (config.Load already rejects
// wildcard CORS outright when production is set, as a second, earlier
// line of defense).
func corsMiddleware(origins []string, _ bool) func(http.Handler) http.Handler {
	allowCredentials := true
	for _, o := range origins {
		if o == "*" {
			allowCredentials = false
			break
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Admin-Key"},
		AllowCredentials: allowCredentials,
	})
}

// requireAdminKey gates /admin/* on the single shared admin key (§9
// redesign note: constant-time comparison, no per-user identity model).
func requireAdminKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Admin-Key")
			if provided == "" {
				if auth := r.Header.Get("Authorization"); len(auth) > len("Bearer ") {
					provided = auth[len("Bearer "):]
				}
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
