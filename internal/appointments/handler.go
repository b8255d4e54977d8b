package appointments

import (
	"net/http"

	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/dodocare/dodocare/internal/navigation"
	"github.com/dodocare/dodocare/internal/pkg/httputil"
	"github.com/dodocare/dodocare/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the appointments module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new appointments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers appointment routes. Requires a session in context.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/appointments", func(r chi.Router) {
		r.Use(navigation.Require(true))
		r.Use(httputil.RequireIdentity)

		r.Get("/", h.List)
		r.Post("/", h.Book)
		r.Patch("/{id}", h.Reschedule)
	})
}

// BookRequest represents an appointment booking request body.
type BookRequest struct {
	Doctor    string `json:"doctor" validate:"required,max=255"`
	Specialty string `json:"specialty" validate:"max=255"`
	Date      string `json:"date" validate:"required"`
}

// Book handles POST /appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if !httputil.Bind(w, r, h.validator, &req) {
		return
	}

	end, ok := begin(w, r)
	if !ok {
		return
	}
	defer end()

	list, err := h.service.Book(r.Context(), httputil.GetIdentityID(r.Context()), BookInput{
		Doctor:    req.Doctor,
		Specialty: req.Specialty,
		Date:      req.Date,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, list)
}

// List handles GET /appointments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), httputil.GetIdentityID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// RescheduleRequest represents a reschedule request body.
type RescheduleRequest struct {
	Date string `json:"date" validate:"required"`
}

// Reschedule handles PATCH /appointments/{id}.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RescheduleRequest
	if !httputil.Bind(w, r, h.validator, &req) {
		return
	}

	end, ok := begin(w, r)
	if !ok {
		return
	}
	defer end()

	list, err := h.service.Reschedule(r.Context(), httputil.GetIdentityID(r.Context()), id, req.Date)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// begin claims the session for a mutation.
func begin(w http.ResponseWriter, r *http.Request) (func(), bool) {
	end, err := httputil.GetSession(r.Context()).Begin()
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return nil, false
	}
	return end, true
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotFound, Status: http.StatusNotFound},
	{Error: ErrDoctorRequired, Status: http.StatusBadRequest},
	{Error: ErrInvalidDate, Status: http.StatusBadRequest},
	{Error: ErrOwnerRequired, Status: http.StatusForbidden},
	{Error: session.ErrRequestInFlight, Status: http.StatusConflict},
	{Error: docstore.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable, please try again"},
}
