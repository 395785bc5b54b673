package expenses

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
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]Expense
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Expense{}}
}

func (m *memoryRepo) match(e Expense, f ListFilters) bool {
	if !f.From.IsZero() && e.ExpenseDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.ExpenseDate.Before(f.To) {
		return false
	}
	if f.Category != "" && e.Category != strings.ToLower(f.Category) {
		return false
	}
	return true
}

func (m *memoryRepo) List(_ context.Context, f ListFilters) ([]Expense, int, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Expense
	sum := decimal.Zero
	for _, e := range m.rows {
		if !m.match(e, f) {
			continue
		}
		all = append(all, e)
		sum = sum.Add(e.Amount)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ExpenseDate.Equal(all[j].ExpenseDate) {
			return all[i].ID > all[j].ID
		}
		return all[i].ExpenseDate.After(all[j].ExpenseDate)
	})
	start := min(shared.Offset(f.Page, f.PerPage), len(all))
	end := min(start+f.PerPage, len(all))
	return all[start:end], len(all), sum, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

func (m *memoryRepo) Create(_ context.Context, in Input, actorID int64) (Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now().UTC()
	e := Expense{ID: m.nextID, Category: in.Category, Description: in.Description, Amount: in.Amount,
		ExpenseDate: *in.ExpenseDate, CreatedBy: actorID, CreatedAt: now, UpdatedAt: now}
	m.rows[e.ID] = e
	return e, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, in Input) (Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return Expense{}, ErrNotFound
	}
	e.Category, e.Description, e.Amount, e.ExpenseDate = in.Category, in.Description, in.Amount, *in.ExpenseDate
	e.UpdatedAt = time.Now().UTC()
	m.rows[id] = e
	return e, nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memoryRepo) Total(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	_, _, sum, err := m.List(ctx, ListFilters{From: from, To: to, PerPage: 1})
	return sum, err
}

type recordingAudit struct {
	actions []string
}

func (r *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	r.actions = append(r.actions, log.Action)
	return nil
}

func day(s string) *time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return &t
}

func TestServiceCRUD(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)
	ctx := context.Background()

	e, err := svc.Create(ctx, Input{Category: " Rent ", Amount: decimal.RequireFromString("1500000"), ExpenseDate: day("2026-03-01")}, 7)
	require.NoError(t, err)
	require.Equal(t, "rent", e.Category)
	require.Equal(t, int64(7), e.CreatedBy)

	e, err = svc.Update(ctx, e.ID, Input{Category: "rent", Description: "March", Amount: decimal.RequireFromString("1600000"), ExpenseDate: day("2026-03-01")}, 7)
	require.NoError(t, err)
	require.True(t, e.Amount.Equal(decimal.RequireFromString("1600000")))

	require.NoError(t, svc.Delete(ctx, e.ID, 7))
	_, err = svc.Get(ctx, e.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, []string{"expenses:create", "expenses:update", "expenses:delete"}, audit.actions)
}

func TestServiceRejectsInvalidInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{Category: "utilities", Amount: decimal.Zero}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.Create(ctx, Input{Category: "utilities", Amount: decimal.NewFromInt(-5)}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.Create(ctx, Input{Category: "  ", Amount: decimal.NewFromInt(5)}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.List(ctx, ListFilters{From: *day("2026-03-02"), To: *day("2026-03-01")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceDefaultsExpenseDate(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	e, err := svc.Create(context.Background(), Input{Category: "wages", Amount: decimal.NewFromInt(10)}, 1)
	require.NoError(t, err)
	require.True(t, e.ExpenseDate.Equal(fixed))
}

func TestServiceListTotalsWholeFilter(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	for i, d := range []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-04-01"} {
		_, err := svc.Create(ctx, Input{Category: "utilities", Amount: decimal.NewFromInt(int64(100 * (i + 1))), ExpenseDate: day(d)}, 1)
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, Input{Category: "rent", Amount: decimal.NewFromInt(5000), ExpenseDate: day("2026-03-05")}, 1)
	require.NoError(t, err)

	page, err := svc.List(ctx, ListFilters{From: *day("2026-03-01"), To: *day("2026-04-01"), Category: "Utilities", Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	require.Equal(t, 3, page.Pagination.Total)
	require.True(t, page.Total.Equal(decimal.NewFromInt(600)), page.Total.String())
	require.True(t, page.Data[0].ExpenseDate.Equal(*day("2026-03-03")))

	total, err := svc.TotalBetween(ctx, *day("2026-03-01"), *day("2026-04-01"))
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.NewFromInt(5600)))
}

func newTestRouter(repo *memoryRepo, role rbac.Role) http.Handler {
	h := NewHandler(nil, NewService(repo, nil, nil), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &shared.Principal{UserID: 2, Role: string(role), Permissions: rbac.PermissionsFor(role)}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/expenses", h.MountRoutes)
	return r
}

func TestHandlerExpenses(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo, rbac.RoleManager)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/expenses/", strings.NewReader(`{"category":"rent","amount":"0"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/expenses/",
		strings.NewReader(`{"category":"rent","amount":"250000.50","expense_date":"2026-03-10T00:00:00Z"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Expense
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, int64(2), created.CreatedBy)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/expenses/?from=2026-03-10&to=2026-03-10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	require.True(t, page.Total.Equal(decimal.RequireFromString("250000.5")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/expenses/?from=10-03-2026", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/expenses/"+strconv.FormatInt(created.ID, 10), nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerPharmacistForbidden(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), rbac.RolePharmacist)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/expenses/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
