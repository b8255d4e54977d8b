package profile

import (
	"net/http"

	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/pkg/httputil"
	"github.com/dodocare/dodocare/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the profile module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new profile handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers profile routes. Requires a session in context.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/profile", func(r chi.Router) {
		r.Use(httputil.RequireIdentity)

		r.Get("/", h.Get)
		r.Patch("/personal", h.UpdatePersonal)
		r.Patch("/complementary", h.UpdateComplementary)
		r.Patch("/medical", h.UpdateMedical)
		r.Patch("/emergency-contact", h.UpdateEmergencyContact)
	})
}

// Get handles GET /profile.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), httputil.GetIdentityID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, p)
}

// PersonalRequest represents a personal data update body.
type PersonalRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Phone       *string `json:"phone" validate:"omitempty,max=50"`
	NationalID  *string `json:"national_id" validate:"omitempty,max=50"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Sex         *string `json:"sex" validate:"omitempty,max=20"`
}

// UpdatePersonal handles PATCH /profile/personal.
func (h *Handler) UpdatePersonal(w http.ResponseWriter, r *http.Request) {
	var req PersonalRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(identityID string) (domain.Profile, error) {
		return h.service.UpdatePersonal(r.Context(), identityID, PersonalInput(req))
	})
}

// ComplementaryRequest represents a complementary data update body.
type ComplementaryRequest struct {
	Weight    *string `json:"weight" validate:"omitempty,max=20"`
	Height    *string `json:"height" validate:"omitempty,max=20"`
	BloodType *string `json:"blood_type" validate:"omitempty,oneof=O+ O- A+ A- B+ B- AB+ AB-"`
	Address   *string `json:"address" validate:"omitempty,max=500"`
}

// UpdateComplementary handles PATCH /profile/complementary.
func (h *Handler) UpdateComplementary(w http.ResponseWriter, r *http.Request) {
	var req ComplementaryRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(identityID string) (domain.Profile, error) {
		return h.service.UpdateComplementary(r.Context(), identityID, ComplementaryInput(req))
	})
}

// MedicalRequest represents a medical information update body.
type MedicalRequest struct {
	Allergies   *string `json:"allergies" validate:"omitempty,max=2000"`
	Medications *string `json:"medications" validate:"omitempty,max=2000"`
	Condition   *string `json:"condition" validate:"omitempty,max=2000"`
}

// UpdateMedical handles PATCH /profile/medical.
func (h *Handler) UpdateMedical(w http.ResponseWriter, r *http.Request) {
	var req MedicalRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(identityID string) (domain.Profile, error) {
		return h.service.UpdateMedical(r.Context(), identityID, MedicalInput(req))
	})
}

// EmergencyContactRequest represents an emergency contact update body.
type EmergencyContactRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=255"`
	Relationship *string `json:"relationship" validate:"omitempty,max=100"`
	BloodType    *string `json:"blood_type" validate:"omitempty,oneof=O+ O- A+ A- B+ B- AB+ AB-"`
	Phone        *string `json:"phone" validate:"omitempty,max=50"`
}

// UpdateEmergencyContact handles PATCH /profile/emergency-contact.
func (h *Handler) UpdateEmergencyContact(w http.ResponseWriter, r *http.Request) {
	var req EmergencyContactRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(identityID string) (domain.Profile, error) {
		return h.service.UpdateEmergencyContact(r.Context(), identityID, EmergencyContactInput(req))
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	return httputil.Bind(w, r, h.validator, req)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(identityID string) (domain.Profile, error)) {
	end, err := httputil.GetSession(r.Context()).Begin()
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer end()

	p, err := fn(httputil.GetIdentityID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, p)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIdentityRequired, Status: http.StatusForbidden},
	{Error: session.ErrRequestInFlight, Status: http.StatusConflict},
	{Error: docstore.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable, please try again"},
}
