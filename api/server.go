/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from the gateway's forwarding headers
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the voting frontend

ROUTE GROUPS:
  /health               Liveness + storage ping
  /metrics              Prometheus exposition (when enabled)
  /api/ballots/*        Voter operations
  /api/candidates       Candidate list
  /api/elections/*      Elections and scoped results
  /api/turnout/*        Scoped turnout
  /api/scenarios/*      Demo scenarios (dev only, system_admin)

AUTHENTICATION:
  Everything under /api requires gateway principal headers; see principal.go.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/ballotd/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/ballot-engine/ballot"
)

// RouterOptions toggles the optional parts of the API.
type RouterOptions struct {
	CORSOrigins  []string
	DevScenarios bool

	// MetricsHandler is mounted at MetricsPath when non-nil.
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			HeaderPrincipalID, HeaderPrincipalRole, HeaderPrincipalRegion, HeaderPrincipalZone,
		},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.MetricsHandler)
	}

	national := RequireRole(ballot.RoleNationalAdmin, ballot.RoleSystemAdmin)
	regional := RequireRole(ballot.RoleRegionAdmin, ballot.RoleNationalAdmin, ballot.RoleSystemAdmin)
	zonal := RequireRole(ballot.RoleZoneAdmin, ballot.RoleRegionAdmin, ballot.RoleNationalAdmin, ballot.RoleSystemAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate)

		// Voter routes
		r.Route("/ballots", func(r chi.Router) {
			r.Use(RequireRole(ballot.RoleVoter))
			r.Post("/", h.CastBallot)
			r.Get("/me", h.MyBallot)
			r.Get("/history", h.BallotHistory)
			r.Delete("/{candidateID}", h.RetractBallot)
		})

		r.Get("/candidates", h.ListCandidates)

		// Election and results routes
		r.Route("/elections", func(r chi.Router) {
			r.Get("/", h.ListElections)
			r.Route("/{electionID}", func(r chi.Router) {
				r.With(national).Get("/results", h.ElectionResults)
				r.With(national).Get("/summary", h.ElectionSummary)
				r.With(regional).Get("/regions/{region}/results", h.RegionResults)
				r.With(regional).Get("/regions/{region}/zones", h.RegionZones)
				r.With(zonal).Get("/zones/{zone}/results", h.ZoneResults)
			})
		})

		// Turnout routes
		r.Route("/turnout", func(r chi.Router) {
			r.With(regional).Get("/regions/{region}", h.RegionTurnout)
			r.With(zonal).Get("/zones/{zone}", h.ZoneTurnout)
		})

		// Scenario routes
		if opts.DevScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Use(RequireRole(ballot.RoleSystemAdmin))
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
