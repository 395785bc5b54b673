package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/shared"
	"github.com/pharmaops/pharmaops/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	authenticator Authenticator
	loginLimit    int
}

// NewHandler constructs a Handler instance. loginLimit caps login attempts per IP per minute.
func NewHandler(logger *slog.Logger, service *Service, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loginLimit <= 0 {
		loginLimit = 10
	}
	return &Handler{
		logger:        logger,
		service:       service,
		authenticator: Authenticator{Service: service, Logger: logger},
		loginLimit:    loginLimit,
	}
}

// Authenticator exposes the bearer middleware for other route groups.
func (h *Handler) Authenticator() Authenticator {
	return h.authenticator
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(h.loginLimit, time.Minute)).Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.authenticator.Require)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), BearerToken(r)); err != nil {
		httpx.RespondErrorLogged(w, h.logger, "logout", err)
		return
	}
	httpx.NoContent(w)
}

type meResponse struct {
	User        users.User `json:"user"`
	Permissions []string   `json:"permissions"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	user, err := h.service.Me(r.Context(), principal)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "me", err)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{User: user, Permissions: principal.Permissions})
}
