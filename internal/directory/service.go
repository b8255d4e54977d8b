// Package directory maintains the doctor directory, specialties and the
// administrative patient roster.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/pkg/callpolicy"
)

// Collections.
const (
	DoctorsCollection     = "doctors"
	SpecialtiesCollection = "specialties"
	PatientsCollection    = "patients"
)

// Service errors.
var (
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrSpecialtyNotFound = errors.New("specialty not found")
	ErrSpecialtyExists   = errors.New("specialty already exists")
	ErrPatientNotFound   = errors.New("patient not found")
)

// DoctorInput is the data of a doctor. Every field is required.
type DoctorInput struct {
	Name      string
	Specialty string
	Email     string
	Address   string
}

// PatientInput is the data of a roster entry.
type PatientInput struct {
	Name  string
	Email string
	Phone string
}

// Service provides directory business logic.
type Service struct {
	store  docstore.Store
	policy callpolicy.Policy
}

// NewService creates a new directory service.
func NewService(store docstore.Store, policy callpolicy.Policy) *Service {
	return &Service{
		store:  store,
		policy: policy,
	}
}

// ListDoctors returns doctors whose name or specialty contains query, ordered
// by display number.
func (s *Service) ListDoctors(ctx context.Context, query string) ([]domain.Doctor, error) {
	doctors, err := s.allDoctors(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Doctor, 0, len(doctors))
	for _, d := range doctors {
		if matches(query, d.Name, d.Specialty) {
			result = append(result, d)
		}
	}
	return result, nil
}

// GetDoctor returns a single doctor.
func (s *Service) GetDoctor(ctx context.Context, id string) (*domain.Doctor, error) {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Read)
	defer cancel()

	doc, err := s.store.Get(ctx, DoctorsCollection, id)
	if err != nil {
		return nil, notFound(err, ErrDoctorNotFound, "get doctor")
	}
	d := toDoctor(*doc)
	return &d, nil
}

// CreateDoctor adds a doctor with the next display number.
func (s *Service) CreateDoctor(ctx context.Context, input DoctorInput) (*domain.Doctor, error) {
	doctors, err := s.allDoctors(ctx)
	if err != nil {
		return nil, err
	}

	next := 1
	for _, d := range doctors {
		if d.Number >= next {
			next = d.Number + 1
		}
	}

	fields := doctorFields(input)
	fields["number"] = next

	wctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	id, err := s.store.Create(wctx, DoctorsCollection, fields)
	if err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}

	return &domain.Doctor{
		ID:        id,
		Name:      fields.String("name"),
		Specialty: fields.String("specialty"),
		Email:     fields.String("email"),
		Address:   fields.String("address"),
		Number:    next,
	}, nil
}

// UpdateDoctor replaces the data of a doctor. The display number is kept.
func (s *Service) UpdateDoctor(ctx context.Context, id string, input DoctorInput) (*domain.Doctor, error) {
	wctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	if err := s.store.Update(wctx, DoctorsCollection, id, doctorFields(input)); err != nil {
		return nil, notFound(err, ErrDoctorNotFound, "update doctor")
	}
	return s.GetDoctor(ctx, id)
}

// DeleteDoctor removes a doctor.
func (s *Service) DeleteDoctor(ctx context.Context, id string) error {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	if err := s.store.Delete(ctx, DoctorsCollection, id); err != nil {
		return notFound(err, ErrDoctorNotFound, "delete doctor")
	}
	return nil
}

// ListSpecialties returns every specialty ordered by name.
func (s *Service) ListSpecialties(ctx context.Context) ([]domain.Specialty, error) {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Read)
	defer cancel()

	docs, err := s.store.OrderedBy(ctx, SpecialtiesCollection, "name", false)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}

	result := make([]domain.Specialty, 0, len(docs))
	for _, doc := range docs {
		result = append(result, domain.Specialty{ID: doc.ID, Name: doc.Fields.String("name")})
	}
	return result, nil
}

// CreateSpecialty adds a specialty. Names are unique ignoring case and accents.
func (s *Service) CreateSpecialty(ctx context.Context, name string) (*domain.Specialty, error) {
	name = strings.TrimSpace(name)

	existing, err := s.ListSpecialties(ctx)
	if err != nil {
		return nil, err
	}
	for _, sp := range existing {
		if fold(sp.Name) == fold(name) {
			return nil, ErrSpecialtyExists
		}
	}

	ctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	id, err := s.store.Create(ctx, SpecialtiesCollection, docstore.Fields{"name": name})
	if err != nil {
		return nil, fmt.Errorf("create specialty: %w", err)
	}
	return &domain.Specialty{ID: id, Name: name}, nil
}

// DeleteSpecialty removes a specialty. Doctors keep their specialty text.
func (s *Service) DeleteSpecialty(ctx context.Context, id string) error {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	if err := s.store.Delete(ctx, SpecialtiesCollection, id); err != nil {
		return notFound(err, ErrSpecialtyNotFound, "delete specialty")
	}
	return nil
}

// ListPatients returns the patient roster ordered by name.
func (s *Service) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Read)
	defer cancel()

	docs, err := s.store.OrderedBy(ctx, PatientsCollection, "name", false)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	result := make([]domain.Patient, 0, len(docs))
	for _, doc := range docs {
		result = append(result, domain.Patient{
			ID:    doc.ID,
			Name:  doc.Fields.String("name"),
			Email: doc.Fields.String("email"),
			Phone: doc.Fields.String("phone"),
		})
	}
	return result, nil
}

// CreatePatient adds a roster entry.
func (s *Service) CreatePatient(ctx context.Context, input PatientInput) (*domain.Patient, error) {
	p := domain.Patient{
		Name:  strings.TrimSpace(input.Name),
		Email: strings.TrimSpace(input.Email),
		Phone: strings.TrimSpace(input.Phone),
	}

	ctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	id, err := s.store.Create(ctx, PatientsCollection, docstore.Fields{
		"name":  p.Name,
		"email": p.Email,
		"phone": p.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	p.ID = id
	return &p, nil
}

// DeletePatient removes a roster entry.
func (s *Service) DeletePatient(ctx context.Context, id string) error {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	if err := s.store.Delete(ctx, PatientsCollection, id); err != nil {
		return notFound(err, ErrPatientNotFound, "delete patient")
	}
	return nil
}

// Report counts doctors in total and per specialty.
func (s *Service) Report(ctx context.Context) (*domain.DoctorReport, error) {
	doctors, err := s.allDoctors(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, d := range doctors {
		counts[d.Specialty]++
	}

	report := &domain.DoctorReport{
		TotalDoctors: len(doctors),
		BySpecialty:  make([]domain.SpecialtyCount, 0, len(counts)),
	}
	for specialty, n := range counts {
		report.BySpecialty = append(report.BySpecialty, domain.SpecialtyCount{Specialty: specialty, Doctors: n})
	}
	sort.Slice(report.BySpecialty, func(i, j int) bool {
		a, b := report.BySpecialty[i], report.BySpecialty[j]
		if a.Doctors != b.Doctors {
			return a.Doctors > b.Doctors
		}
		return a.Specialty < b.Specialty
	})
	return report, nil
}

func (s *Service) allDoctors(ctx context.Context) ([]domain.Doctor, error) {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Read)
	defer cancel()

	docs, err := s.store.All(ctx, DoctorsCollection)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	doctors := make([]domain.Doctor, 0, len(docs))
	for _, doc := range docs {
		doctors = append(doctors, toDoctor(doc))
	}
	sort.Slice(doctors, func(i, j int) bool {
		if doctors[i].Number != doctors[j].Number {
			return doctors[i].Number < doctors[j].Number
		}
		return doctors[i].ID < doctors[j].ID
	})
	return doctors, nil
}

func doctorFields(input DoctorInput) docstore.Fields {
	return docstore.Fields{
		"name":      strings.TrimSpace(input.Name),
		"specialty": strings.TrimSpace(input.Specialty),
		"email":     strings.TrimSpace(input.Email),
		"address":   strings.TrimSpace(input.Address),
	}
}

func toDoctor(doc docstore.Document) domain.Doctor {
	return domain.Doctor{
		ID:        doc.ID,
		Name:      doc.Fields.String("name"),
		Specialty: doc.Fields.String("specialty"),
		Email:     doc.Fields.String("email"),
		Address:   doc.Fields.String("address"),
		Number:    doc.Fields.Int("number"),
	}
}

func notFound(err, sentinel error, op string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", op, err)
}
