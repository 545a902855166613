/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the mobile/web clients
  5. Actor:      X-Actor-ID / X-Actor-Role headers into the request context

ROUTE GROUPS:
  /api/users/*   User balance, history and earning actions
  /api/tasks     Task catalog
  /api/admin/*   Adjustments, integrity audit, repair, promo management

AUTHENTICATION:
  Actor headers are trusted as set by the upstream gateway. Without them
  a request acts as an anonymous user; the admin group still requires
  the admin role.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/points-engine/auth"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Actor-Role"},
		AllowCredentials: true,
	}))
	r.Use(actorMiddleware)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.SignUp)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/audit", h.GetAuditTrail)
			r.Get("/{id}/commissions", h.GetCommissions)

			r.Post("/{id}/checkin", h.CheckIn)
			r.Post("/{id}/ads", h.WatchAd)
			r.Post("/{id}/tasks/{taskID}", h.CompleteTask)
			r.Post("/{id}/promo", h.RedeemPromo)
			r.Post("/{id}/redeem", h.RedeemPoints)
		})

		r.Get("/tasks", h.ListTasks)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", h.CreateAdjustment)
			r.Get("/audit", h.AuditAll)
			r.Get("/audit/{id}", h.AuditUser)
			r.Post("/repair", h.RepairAll)
			r.Post("/repair/{id}", h.RepairUser)
			r.Get("/promos", h.ListPromos)
			r.Post("/promos", h.CreatePromo)
		})
	})

	return r
}

// actorMiddleware lifts the gateway-provided actor headers into the
// request context. Requests without headers act as anonymous users.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Actor-ID")
		role := auth.Role(r.Header.Get("X-Actor-Role"))
		if role != auth.RoleAdmin && role != auth.RoleSystem {
			role = auth.RoleUser
		}
		if id != "" || role != auth.RoleUser {
			ctx := auth.WithActor(r.Context(), auth.Actor{ID: id, Role: role})
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
