package session

import (
	"net/http"
	"time"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/identity"
	"github.com/dodocare/dodocare/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for client sessions.
type Handler struct {
	registry  *Registry
	validator *validator.Validate
}

// NewHandler creates a new session handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{
		registry:  registry,
		validator: validator.New(),
	}
}

// RegisterPublicRoutes registers routes that do not need a session.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/session", h.Create)
}

// RegisterRoutes registers session routes. Requires a session in context.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.Get)
	r.Post("/session/login", h.Login)
	r.Post("/session/admin", h.LoginAsAdmin)
	r.Post("/session/guest", h.LoginAsGuest)
	r.Post("/session/logout", h.Logout)
}

// Response is returned by every session endpoint. The token must replace the
// one the client holds.
type Response struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Session   domain.SessionState `json:"session"`
}

// Create handles POST /session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	m := h.registry.Create()
	h.respond(w, r, http.StatusCreated, m)
}

// Get handles GET /session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, m)
}

// LoginRequest represents a credential login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /session/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	var req LoginRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if err := m.LoginWithCredentials(r.Context(), req.Email, req.Password); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	h.respond(w, r, http.StatusOK, m)
}

// AdminLoginRequest represents an administrator login request body.
type AdminLoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Secret     string `json:"secret" validate:"required"`
}

// LoginAsAdmin handles POST /session/admin.
func (h *Handler) LoginAsAdmin(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	var req AdminLoginRequest
	if !httputil.Bind(w, r, h.validator, &req) {
		return
	}

	if !m.LoginAsAdmin(req.Identifier, req.Secret) {
		httputil.Error(w, http.StatusUnauthorized, "invalid administrator credentials")
		return
	}

	h.respond(w, r, http.StatusOK, m)
}

// LoginAsGuest handles POST /session/guest.
func (h *Handler) LoginAsGuest(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	m.LoginAsGuest()
	h.respond(w, r, http.StatusOK, m)
}

// Logout handles POST /session/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	m.Logout(r.Context())
	h.respond(w, r, http.StatusOK, m)
}

func (h *Handler) manager(w http.ResponseWriter, r *http.Request) (*Manager, bool) {
	m, ok := httputil.GetSession(r.Context()).(*Manager)
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing session")
		return nil, false
	}
	return m, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, m *Manager) {
	token, expiresAt, err := h.registry.Token(m)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, status, Response{
		Token:     token,
		ExpiresAt: expiresAt,
		Session:   m.State(),
	})
}

var errorMappings = append([]httputil.ErrorMapping{
	{Error: ErrRequestInFlight, Status: http.StatusConflict},
}, identity.ErrorMappings...)
