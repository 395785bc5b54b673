package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/pharmaops/pharmaops/internal/audit/http"
	"github.com/pharmaops/pharmaops/internal/auth"
	"github.com/pharmaops/pharmaops/internal/credits"
	"github.com/pharmaops/pharmaops/internal/expenses"
	"github.com/pharmaops/pharmaops/internal/inventory"
	"github.com/pharmaops/pharmaops/internal/masterdata"
	"github.com/pharmaops/pharmaops/internal/observability"
	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/reports"
	"github.com/pharmaops/pharmaops/internal/sales"
	"github.com/pharmaops/pharmaops/internal/users"
	"github.com/pharmaops/pharmaops/jobs"
)

// Pinger is a dependency probed by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	CreditsHandler   *credits.Handler
	CustomersHandler *masterdata.Handler
	SuppliersHandler *masterdata.Handler
	ExpensesHandler  *expenses.Handler
	ReportsHandler   *reports.Handler
	AuditHandler     *audithttp.Handler
	JobHandler       *jobs.Handler
	RBACMiddleware   rbac.Middleware

	// Readiness maps dependency names to their probes.
	Readiness map[string]Pinger
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Readiness))

	r.Route("/api/v1", func(r chi.Router) {
		if params.AuthHandler == nil {
			return
		}
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthHandler.Authenticator().Require)
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			r.Route("/roles", params.RBACMiddleware.MountRoutes)
			if params.InventoryHandler != nil {
				r.Route("/medicines", params.InventoryHandler.MountRoutes)
			}
			if params.SalesHandler != nil {
				r.Route("/sales", params.SalesHandler.MountRoutes)
				r.Route("/returns", params.SalesHandler.MountReturnRoutes)
			}
			if params.CustomersHandler != nil {
				r.Route("/customers", params.CustomersHandler.MountRoutes)
			}
			if params.SuppliersHandler != nil {
				r.Route("/suppliers", params.SuppliersHandler.MountRoutes)
			}
			if params.CreditsHandler != nil {
				r.Route("/credits/{kind}", params.CreditsHandler.MountRoutes)
			}
			if params.ExpensesHandler != nil {
				r.Route("/expenses", params.ExpensesHandler.MountRoutes)
			}
			if params.ReportsHandler != nil {
				r.Route("/reports", params.ReportsHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit-logs", params.AuditHandler.MountRoutes)
			}
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func readinessHandler(probes map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make(map[string]string, len(probes))
		status := http.StatusOK
		for name, probe := range probes {
			if probe == nil {
				continue
			}
			if err := probe.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httpx.JSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}
