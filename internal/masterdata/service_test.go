package masterdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	rows    map[int64]Party
	credits map[int64]int
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Party{}, credits: map[int64]int{}}
}

func (m *memoryRepo) List(_ context.Context, f ListFilters) ([]Party, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Party
	needle := strings.ToLower(f.Search)
	for _, p := range m.rows {
		if needle != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Phone+" "+p.Email), needle) {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	start := shared.Offset(f.Page, f.PerPage)
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return Party{}, ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) Create(_ context.Context, in PartyInput) (Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now().UTC()
	p := Party{ID: m.nextID, Name: in.Name, Phone: in.Phone, Email: in.Email, Address: in.Address, CreatedAt: now, UpdatedAt: now}
	m.rows[p.ID] = p
	return p, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, in PartyInput) (Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return Party{}, ErrNotFound
	}
	p.Name, p.Phone, p.Email, p.Address = in.Name, in.Phone, in.Email, in.Address
	p.UpdatedAt = time.Now().UTC()
	m.rows[id] = p
	return p, nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return ErrNotFound
	}
	if m.credits[id] > 0 {
		return ErrInUse
	}
	delete(m.rows, id)
	return nil
}

type captureAudit struct {
	actions []string
}

func (c *captureAudit) Record(_ context.Context, log shared.AuditLog) error {
	c.actions = append(c.actions, log.Action)
	return nil
}

func TestServiceCRUD(t *testing.T) {
	audit := &captureAudit{}
	svc := NewService(Customers, newMemoryRepo(), audit, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, PartyInput{Name: "  Apotek Sehat ", Email: " Owner@Example.COM "}, 1)
	require.NoError(t, err)
	require.Equal(t, "Apotek Sehat", p.Name)
	require.Equal(t, "owner@example.com", p.Email)

	_, err = svc.Create(ctx, PartyInput{Name: "   "}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	p, err = svc.Update(ctx, p.ID, PartyInput{Name: "Apotek Sehat Jaya", Phone: "0812"}, 1)
	require.NoError(t, err)
	require.Equal(t, "0812", p.Phone)

	_, err = svc.Update(ctx, 404, PartyInput{Name: "x"}, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, p.ID, 1))
	_, err = svc.Get(ctx, p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Equal(t, []string{"customers:create", "customers:update", "customers:delete"}, audit.actions)
}

func TestServiceDeleteBlockedByCredits(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(Suppliers, repo, nil, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, PartyInput{Name: "PT Farma"}, 1)
	require.NoError(t, err)
	repo.credits[p.ID] = 2

	err = svc.Delete(ctx, p.ID, 1)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.Get(ctx, p.ID)
	require.NoError(t, err)
}

func TestServiceListPagination(t *testing.T) {
	svc := NewService(Customers, newMemoryRepo(), nil, nil)
	ctx := context.Background()
	for _, name := range []string{"Citra", "Budi", "Ani", "Bunga"} {
		_, err := svc.Create(ctx, PartyInput{Name: name}, 1)
		require.NoError(t, err)
	}

	rows, meta, err := svc.List(ctx, ListFilters{PerPage: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Ani", rows[0].Name)
	require.Equal(t, 4, meta.Total)
	require.Equal(t, 2, meta.TotalPages)

	rows, _, err = svc.List(ctx, ListFilters{Search: " bu "})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func newTestRouter(repo *memoryRepo, role rbac.Role) http.Handler {
	h := NewHandler(nil, NewService(Customers, repo, nil, nil), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &shared.Principal{UserID: 3, Role: string(role), Permissions: rbac.PermissionsFor(role)}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/customers", h.MountRoutes)
	return r
}

func TestHandlerCustomers(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo, rbac.RolePharmacist)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/customers/", strings.NewReader(`{"name":"Dewi","email":"not-an-email"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Errors, "email")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/customers/", strings.NewReader(`{"name":"Dewi","phone":"0813"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Party
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	repo.credits[created.ID] = 1
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/customers/"+strconv.FormatInt(created.ID, 10), nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/?search=dew", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
}

func TestHandlerCashierReadOnly(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), rbac.RoleCashier)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/customers/", strings.NewReader(`{"name":"x"}`)))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
