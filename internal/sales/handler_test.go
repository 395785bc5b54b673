package sales

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/platform/storage"
	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

func newTestRouter(t *testing.T, repo *memoryRepo, role rbac.Role) http.Handler {
	t.Helper()
	svc := NewService(repo, Dependencies{})
	h := NewHandler(nil, svc, storage.NewLocal(t.TempDir(), 1<<20), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &shared.Principal{UserID: 9, Role: string(role), Permissions: rbac.PermissionsFor(role)}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/sales", h.MountRoutes)
	r.Route("/returns", h.MountReturnRoutes)
	return r
}

func TestHandlerSellJSON(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(50, "2.00", false)
	router := newTestRouter(t, repo, rbac.RoleCashier)

	body := `{"stock_item_id":` + itoa(item.ID) + `,"quantity":10}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sale Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.EqualValues(t, 10, sale.Quantity)
	require.Equal(t, "20", sale.TotalAmount.String())

	body = `{"stock_item_id":` + itoa(item.ID) + `,"quantity":45}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales/", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "INSUFFICIENT_STOCK", problem.Code)
}

func TestHandlerSellMultipartPrescription(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(5, "9.99", true)
	router := newTestRouter(t, repo, rbac.RolePharmacist)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("stock_item_id", itoa(item.ID)))
	require.NoError(t, mw.WriteField("quantity", "1"))
	fw, err := mw.CreateFormFile("prescription", "rx.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/sales/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sale Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.True(t, strings.HasPrefix(sale.PrescriptionRef, "prescriptions/"))
	require.EqualValues(t, 4, repo.quantity(item.ID))
}

func TestHandlerSellWithoutPrescription(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(5, "9.99", true)
	router := newTestRouter(t, repo, rbac.RolePharmacist)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales/", strings.NewReader(`{"stock_item_id":`+itoa(item.ID)+`,"quantity":1}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "PRESCRIPTION_REQUIRED")
}

func TestHandlerDeleteRequiresPermission(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(5, "1", false)
	cashier := newTestRouter(t, repo, rbac.RoleCashier)

	rec := httptest.NewRecorder()
	cashier.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales/", strings.NewReader(`{"stock_item_id":`+itoa(item.ID)+`,"quantity":2}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	cashier.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sales/2", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	manager := newTestRouter(t, repo, rbac.RoleManager)
	rec = httptest.NewRecorder()
	manager.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sales/2", nil))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.EqualValues(t, 5, repo.quantity(item.ID))
}

func TestHandlerRejectsUnknownFields(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(), rbac.RoleCashier)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales/", strings.NewReader(`{"stock_item_id":1,"quantity":1,"price":"0"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListRejectsMalformedIDs(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(5, "1", false)
	router := newTestRouter(t, repo, rbac.RoleCashier)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales/", strings.NewReader(`{"stock_item_id":`+itoa(item.ID)+`,"quantity":1}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, target := range []string{
		"/sales/?stock_item_id=abc",
		"/sales/?customer_id=1x",
		"/sales/?stock_item_id=-4",
		"/returns/?sale_id=oops",
	} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/?stock_item_id="+itoa(item.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
