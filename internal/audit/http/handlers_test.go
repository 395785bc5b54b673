package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaops/pharmaops/internal/audit"
	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(_ context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func newAuditRouter(service TimelineService, role rbac.Role) http.Handler {
	handler := NewHandler(nil, service, rbac.Middleware{})
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := &shared.Principal{UserID: 7, Role: string(role), Permissions: rbac.PermissionsFor(role)}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
		})
	})
	r.Route("/audit-logs", handler.MountRoutes)
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestTimelineRequiresPermission(t *testing.T) {
	rr := get(newAuditRouter(&stubTimelineService{}, rbac.RolePharmacist), "/audit-logs")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestTimelineReturnsRows(t *testing.T) {
	rows := []audit.TimelineRow{{ID: 1, At: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), Actor: "auditor", Action: "sales:create", Entity: "sale", EntityID: "1"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	rr := get(newAuditRouter(service, rbac.RoleManager), "/audit-logs?from=2026-03-01&to=2026-03-15&entity=sale")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body audit.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Rows) != 1 || body.Rows[0].Actor != "auditor" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
	if service.lastFilters.From.Format(time.DateOnly) != "2026-03-01" {
		t.Fatalf("unexpected from: %+v", service.lastFilters)
	}
	if service.lastFilters.To.Format(time.DateOnly) != "2026-03-16" {
		t.Fatalf("expected inclusive to, got %s", service.lastFilters.To)
	}
	if service.lastFilters.Entity != "sale" {
		t.Fatalf("unexpected entity: %q", service.lastFilters.Entity)
	}
}

func TestTimelineDefaultsAndValidation(t *testing.T) {
	service := &stubTimelineService{}
	router := newAuditRouter(service, rbac.RoleAdmin)
	if rr := get(router, "/audit-logs"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := service.lastFilters.From.Format(time.DateOnly); got != "2026-03-08" {
		t.Fatalf("expected default week window, got from %s", got)
	}
	for _, path := range []string{
		"/audit-logs?from=2026-03-10&to=2026-03-01",
		"/audit-logs?from=2025-01-01&to=2026-03-01",
		"/audit-logs?to=yesterday",
		"/audit-logs?page=0",
	} {
		if rr := get(router, path); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rr.Code)
		}
	}
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{Actor: "auditor", Action: "credits:delete"}}}
	rr := get(newAuditRouter(service, rbac.RoleAdmin), "/audit-logs/export.csv?from=2026-03-01&to=2026-03-05")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ctype := rr.Header().Get("Content-Type"); !strings.Contains(ctype, "text/csv") {
		t.Fatalf("unexpected content-type: %s", ctype)
	}
	if !strings.Contains(rr.Body.String(), "credits:delete") {
		t.Fatalf("expected row in csv: %s", rr.Body.String())
	}
}
