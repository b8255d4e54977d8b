package directory

import (
	"net/http"

	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/dodocare/dodocare/internal/navigation"
	"github.com/dodocare/dodocare/internal/pkg/httputil"
	"github.com/dodocare/dodocare/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the directory module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new directory handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers the directory routes open to every session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/directory", func(r chi.Router) {
		r.Use(navigation.Require(false))

		r.Get("/doctors", h.ListDoctors)
		r.Get("/doctors/{id}", h.GetDoctor)
		r.Get("/specialties", h.ListSpecialties)
	})
}

// RegisterAdminRoutes registers administration routes (admin only).
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/doctors", func(r chi.Router) {
		r.Post("/", h.CreateDoctor)
		r.Put("/{id}", h.UpdateDoctor)
		r.Delete("/{id}", h.DeleteDoctor)
	})

	r.Route("/specialties", func(r chi.Router) {
		r.Post("/", h.CreateSpecialty)
		r.Delete("/{id}", h.DeleteSpecialty)
	})

	r.Route("/patients", func(r chi.Router) {
		r.Get("/", h.ListPatients)
		r.Post("/", h.CreatePatient)
		r.Delete("/{id}", h.DeletePatient)
	})

	r.Get("/reports/doctors", h.Report)
}

// ListDoctors handles GET /directory/doctors.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.service.ListDoctors(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, doctors)
}

// GetDoctor handles GET /directory/doctors/{id}.
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	doctor, err := h.service.GetDoctor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, doctor)
}

// ListSpecialties handles GET /directory/specialties.
func (h *Handler) ListSpecialties(w http.ResponseWriter, r *http.Request) {
	specialties, err := h.service.ListSpecialties(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, specialties)
}

// DoctorRequest represents a doctor create or update body.
type DoctorRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	Specialty string `json:"specialty" validate:"required,max=255"`
	Email     string `json:"email" validate:"required,email"`
	Address   string `json:"address" validate:"required,max=500"`
}

// CreateDoctor handles POST /admin/doctors.
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req DoctorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, http.StatusCreated, func() (any, error) {
		return h.service.CreateDoctor(r.Context(), DoctorInput(req))
	})
}

// UpdateDoctor handles PUT /admin/doctors/{id}.
func (h *Handler) UpdateDoctor(w http.ResponseWriter, r *http.Request) {
	var req DoctorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, http.StatusOK, func() (any, error) {
		return h.service.UpdateDoctor(r.Context(), chi.URLParam(r, "id"), DoctorInput(req))
	})
}

// DeleteDoctor handles DELETE /admin/doctors/{id}.
func (h *Handler) DeleteDoctor(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusNoContent, func() (any, error) {
		return nil, h.service.DeleteDoctor(r.Context(), chi.URLParam(r, "id"))
	})
}

// SpecialtyRequest represents a specialty create body.
type SpecialtyRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// CreateSpecialty handles POST /admin/specialties.
func (h *Handler) CreateSpecialty(w http.ResponseWriter, r *http.Request) {
	var req SpecialtyRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, http.StatusCreated, func() (any, error) {
		return h.service.CreateSpecialty(r.Context(), req.Name)
	})
}

// DeleteSpecialty handles DELETE /admin/specialties/{id}.
func (h *Handler) DeleteSpecialty(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusNoContent, func() (any, error) {
		return nil, h.service.DeleteSpecialty(r.Context(), chi.URLParam(r, "id"))
	})
}

// ListPatients handles GET /admin/patients.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.service.ListPatients(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, patients)
}

// PatientRequest represents a patient roster entry body.
type PatientRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"max=50"`
}

// CreatePatient handles POST /admin/patients.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, http.StatusCreated, func() (any, error) {
		return h.service.CreatePatient(r.Context(), PatientInput(req))
	})
}

// DeletePatient handles DELETE /admin/patients/{id}.
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusNoContent, func() (any, error) {
		return nil, h.service.DeletePatient(r.Context(), chi.URLParam(r, "id"))
	})
}

// Report handles GET /admin/reports/doctors.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, report)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	return httputil.Bind(w, r, h.validator, req)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, status int, fn func() (any, error)) {
	end, err := httputil.GetSession(r.Context()).Begin()
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer end()

	result, err := fn()
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	httputil.Success(w, status, result)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrDoctorNotFound, Status: http.StatusNotFound},
	{Error: ErrSpecialtyNotFound, Status: http.StatusNotFound},
	{Error: ErrPatientNotFound, Status: http.StatusNotFound},
	{Error: ErrSpecialtyExists, Status: http.StatusConflict},
	{Error: session.ErrRequestInFlight, Status: http.StatusConflict},
	{Error: docstore.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable, please try again"},
}
