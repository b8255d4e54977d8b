// Package appointments books and reschedules appointments for signed-in patients.
//
// Every mutation is followed by a full re-read of the collection, filtered by
// owner and ordered by creation time, newest first.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/pkg/callpolicy"
)

// Collection is the document collection appointments are stored in.
const Collection = "appointments"

const (
	fieldOwner     = "owner"
	fieldDoctor    = "doctor"
	fieldSpecialty = "specialty"
	fieldDate      = "date"
	fieldCreatedAt = "createdAt"
)

// Service errors.
var (
	ErrNotFound       = errors.New("appointment not found")
	ErrDoctorRequired = errors.New("doctor is required")
	ErrInvalidDate    = errors.New("date must be in YYYY-MM-DD format")
	ErrOwnerRequired  = errors.New("appointments require a signed-in patient")
)

// BookInput is the data of a new appointment.
type BookInput struct {
	Doctor    string
	Specialty string
	Date      string
}

// Service provides appointment business logic.
type Service struct {
	store  docstore.Store
	policy callpolicy.Policy
	now    func() time.Time
}

// NewService creates a new appointments service.
func NewService(store docstore.Store, policy callpolicy.Policy) *Service {
	return &Service{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

// Book creates an appointment for owner and returns owner's appointments.
func (s *Service) Book(ctx context.Context, owner string, input BookInput) ([]domain.Appointment, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}

	doctor := strings.TrimSpace(input.Doctor)
	if doctor == "" {
		return nil, ErrDoctorRequired
	}
	if err := validateDate(input.Date); err != nil {
		return nil, err
	}

	fields := docstore.Fields{
		fieldOwner:     owner,
		fieldDoctor:    doctor,
		fieldSpecialty: strings.TrimSpace(input.Specialty),
		fieldDate:      input.Date,
		fieldCreatedAt: docstore.FormatTime(s.now()),
	}

	wctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	if _, err := s.store.Create(wctx, Collection, fields); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	return s.List(ctx, owner)
}

// List returns owner's appointments, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]domain.Appointment, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}

	ctx, cancel := s.policy.Context(ctx, callpolicy.Read)
	defer cancel()

	docs, err := s.store.OrderedBy(ctx, Collection, fieldCreatedAt, true)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	result := make([]domain.Appointment, 0)
	for _, doc := range docs {
		if doc.Fields.String(fieldOwner) != owner {
			continue
		}
		result = append(result, toAppointment(doc))
	}
	return result, nil
}

// Reschedule changes the date of one of owner's appointments and returns
// owner's appointments. Nothing but the date is touched.
func (s *Service) Reschedule(ctx context.Context, owner, id, date string) ([]domain.Appointment, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	if err := validateDate(date); err != nil {
		return nil, err
	}

	if err := s.reschedule(ctx, owner, id, date); err != nil {
		return nil, err
	}

	return s.List(ctx, owner)
}

func (s *Service) reschedule(ctx context.Context, owner, id, date string) error {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get appointment: %w", err)
	}
	if doc.Fields.String(fieldOwner) != owner {
		return ErrNotFound
	}

	if err := s.store.Update(ctx, Collection, id, docstore.Fields{fieldDate: date}); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func validateDate(date string) error {
	if len(date) != len(domain.AppointmentDateLayout) {
		return ErrInvalidDate
	}
	if _, err := time.Parse(domain.AppointmentDateLayout, date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

func toAppointment(doc docstore.Document) domain.Appointment {
	a := domain.Appointment{
		ID:        doc.ID,
		Owner:     doc.Fields.String(fieldOwner),
		Doctor:    doc.Fields.String(fieldDoctor),
		Specialty: doc.Fields.String(fieldSpecialty),
		Date:      doc.Fields.String(fieldDate),
		CreatedAt: doc.CreatedAt,
	}
	if createdAt, err := docstore.ParseTime(doc.Fields.String(fieldCreatedAt)); err == nil {
		a.CreatedAt = createdAt
	}
	return a
}
