package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	users  map[int64]User
	nextID int64
}

func newMemoryRepo() *memoryRepo { return &memoryRepo{users: map[int64]User{}} }

func (m *memoryRepo) ListUsers(context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for id := int64(1); id <= m.nextID; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) FindByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memoryRepo) Create(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return User{}, ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.IsActive = true
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryRepo) SetActive(_ context.Context, id int64, active bool) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.IsActive = active
	m.users[id] = u
	return u, nil
}

func (m *memoryRepo) TouchLogin(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	now := time.Now().UTC()
	u.LastLoginAt = &now
	m.users[id] = u
	return nil
}

func newTestService() *Service {
	svc := NewService(newMemoryRepo(), nil, nil)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestCreateUser(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateInput{Name: "Rina", Email: " Rina@Apotek.id ", Password: "s3cretpass", Role: "pharmacist"}, 1)
	require.NoError(t, err)
	require.Equal(t, "rina@apotek.id", u.Email)
	require.Equal(t, rbac.RolePharmacist, u.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cretpass")))

	_, err = svc.CreateUser(ctx, CreateInput{Name: "Rina 2", Email: "rina@apotek.id", Password: "s3cretpass", Role: "CASHIER"}, 1)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateUser(ctx, CreateInput{Name: "X", Email: "x@apotek.id", Password: "s3cretpass", Role: "owner"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeactivate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	admin, err := svc.CreateUser(ctx, CreateInput{Name: "Admin", Email: "admin@apotek.id", Password: "s3cretpass", Role: "ADMIN"}, 0)
	require.NoError(t, err)
	cashier, err := svc.CreateUser(ctx, CreateInput{Name: "Kasir", Email: "kasir@apotek.id", Password: "s3cretpass", Role: "CASHIER"}, admin.ID)
	require.NoError(t, err)

	_, err = svc.Deactivate(ctx, admin.ID, admin.ID)
	require.ErrorIs(t, err, ErrSelfDeactivation)

	u, err := svc.Deactivate(ctx, cashier.ID, admin.ID)
	require.NoError(t, err)
	require.False(t, u.IsActive)

	_, err = svc.Deactivate(ctx, 99, admin.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHandlerRequiresUsersManage(t *testing.T) {
	h := NewHandler(nil, newTestService(), rbac.Middleware{})
	serve := func(role rbac.Role, req *http.Request) int {
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				p := &shared.Principal{UserID: 1, Role: string(role), Permissions: rbac.PermissionsFor(role)}
				next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
			})
		})
		r.Route("/users", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	body := `{"name":"Budi","email":"budi@apotek.id","password":"passw0rd!","role":"CASHIER"}`
	require.Equal(t, http.StatusForbidden, serve(rbac.RoleManager, httptest.NewRequest(http.MethodPost, "/users/", strings.NewReader(body))))
	require.Equal(t, http.StatusCreated, serve(rbac.RoleAdmin, httptest.NewRequest(http.MethodPost, "/users/", strings.NewReader(body))))
	require.Equal(t, http.StatusBadRequest, serve(rbac.RoleAdmin, httptest.NewRequest(http.MethodPost, "/users/", strings.NewReader(`{"name":"x","email":"x@y.z","password":"short","role":"CASHIER"}`))))
	require.Equal(t, http.StatusOK, serve(rbac.RoleAdmin, httptest.NewRequest(http.MethodGet, "/users/", nil)))
}
