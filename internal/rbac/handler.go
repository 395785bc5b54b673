package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/shared"
)

type roleView struct {
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions"`
}

// MountRoutes exposes the role catalogue to user administrators.
func (m Middleware) MountRoutes(r chi.Router) {
	r.With(m.RequireAll(shared.PermUsersManage)).Get("/", func(w http.ResponseWriter, _ *http.Request) {
		roles := Roles()
		out := make([]roleView, 0, len(roles))
		for _, role := range roles {
			out = append(out, roleView{Role: role, Permissions: PermissionsFor(role)})
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
	})
}
