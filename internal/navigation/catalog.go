package navigation

import (
	"net/http"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Destination is an entry of the home screen.
type Destination struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	RequiresAuth bool   `json:"requires_auth"`
}

// Entry is a destination as seen by a particular session.
type Entry struct {
	Destination
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

// Destinations lists the services offered on the home screen.
var Destinations = []Destination{
	{Key: "appointment", Label: "Book an appointment", RequiresAuth: true},
	{Key: "history", Label: "Medical history", RequiresAuth: true},
	{Key: "directory", Label: "Doctor directory"},
	{Key: "prescriptions", Label: "Prescriptions", RequiresAuth: true},
	{Key: "disabilities", Label: "Sick notes", RequiresAuth: true},
	{Key: "hospital-info", Label: "Hospital information", RequiresAuth: true},
}

// Menu evaluates every destination for role.
func Menu(role domain.Role) []Entry {
	entries := make([]Entry, 0, len(Destinations))
	for _, d := range Destinations {
		e := Entry{Destination: d, Allowed: CanNavigate(role, d.RequiresAuth)}
		if !e.Allowed {
			e.Message = BlockedMessage
		}
		entries = append(entries, e)
	}
	return entries
}

// Handler serves the navigation menu.
type Handler struct{}

// NewHandler creates a new navigation handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes registers navigation routes. Requires a session in context.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/navigation", h.Menu)
}

// Menu handles GET /navigation.
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	sess := httputil.GetSession(r.Context())
	if sess == nil {
		httputil.Error(w, http.StatusUnauthorized, "missing session")
		return
	}
	httputil.Success(w, http.StatusOK, Menu(sess.Role()))
}

// Require blocks destinations the session may not open.
func Require(requiresAuth bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := httputil.GetSession(r.Context())
			if sess == nil {
				httputil.Error(w, http.StatusUnauthorized, "missing session")
				return
			}

			if !CanNavigate(sess.Role(), requiresAuth) {
				httputil.Error(w, http.StatusForbidden, BlockedMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
