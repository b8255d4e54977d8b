// Package profile reads and updates the medical profile of signed-in patients.
package profile

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/identity"
	"github.com/dodocare/dodocare/internal/pkg/callpolicy"
	"github.com/microcosm-cc/bluemonday"
)

// Collection is the document collection profiles are stored in. Document ids
// are identity ids.
const Collection = "profiles"

// Profile record keys.
const (
	KeyEmail                        = "email"
	KeyName                         = "name"
	KeyPhone                        = "phone"
	KeyRole                         = "role"
	KeyNationalID                   = "nationalId"
	KeyDateOfBirth                  = "dateOfBirth"
	KeySex                          = "sex"
	KeyWeight                       = "weight"
	KeyHeight                       = "height"
	KeyBloodType                    = "bloodType"
	KeyAddress                      = "address"
	KeyAllergies                    = "allergies"
	KeyMedications                  = "medications"
	KeyCondition                    = "condition"
	KeyEmergencyContactName         = "emergencyContactName"
	KeyEmergencyContactRelationship = "emergencyContactRelationship"
	KeyEmergencyContactBloodType    = "emergencyContactBloodType"
	KeyEmergencyContactPhone        = "emergencyContactPhone"
)

// ErrIdentityRequired is returned when no signed-in identity owns the profile.
var ErrIdentityRequired = errors.New("profile requires a signed-in patient")

// PersonalInput updates identifying data. Nil fields are left unchanged.
type PersonalInput struct {
	Name        *string
	Phone       *string
	NationalID  *string
	DateOfBirth *string
	Sex         *string
}

// ComplementaryInput updates body measurements and address.
type ComplementaryInput struct {
	Weight    *string
	Height    *string
	BloodType *string
	Address   *string
}

// MedicalInput updates medical information.
type MedicalInput struct {
	Allergies   *string
	Medications *string
	Condition   *string
}

// EmergencyContactInput updates the emergency contact.
type EmergencyContactInput struct {
	Name         *string
	Relationship *string
	BloodType    *string
	Phone        *string
}

// Service provides profile business logic.
type Service struct {
	store    docstore.Store
	policy   callpolicy.Policy
	sanitize *bluemonday.Policy
}

// NewService creates a new profile service.
func NewService(store docstore.Store, policy callpolicy.Policy) *Service {
	return &Service{
		store:    store,
		policy:   policy,
		sanitize: bluemonday.StrictPolicy(),
	}
}

// Get returns the profile of identityID. A missing record yields an empty profile.
func (s *Service) Get(ctx context.Context, identityID string) (domain.Profile, error) {
	if identityID == "" {
		return domain.Profile{}, ErrIdentityRequired
	}

	ctx, cancel := s.policy.Context(ctx, callpolicy.Read)
	defer cancel()

	doc, err := s.store.Get(ctx, Collection, identityID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.Profile{IdentityID: identityID}, nil
		}
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	return toProfile(identityID, doc.Fields), nil
}

// UpdatePersonal updates identifying data and returns the profile.
func (s *Service) UpdatePersonal(ctx context.Context, identityID string, input PersonalInput) (domain.Profile, error) {
	fields := docstore.Fields{}
	s.set(fields, KeyName, input.Name)
	s.set(fields, KeyPhone, input.Phone)
	s.set(fields, KeyNationalID, input.NationalID)
	s.set(fields, KeyDateOfBirth, input.DateOfBirth)
	s.set(fields, KeySex, input.Sex)
	return s.update(ctx, identityID, fields)
}

// UpdateComplementary updates body measurements and address and returns the profile.
func (s *Service) UpdateComplementary(ctx context.Context, identityID string, input ComplementaryInput) (domain.Profile, error) {
	fields := docstore.Fields{}
	s.set(fields, KeyWeight, input.Weight)
	s.set(fields, KeyHeight, input.Height)
	s.set(fields, KeyBloodType, input.BloodType)
	s.set(fields, KeyAddress, input.Address)
	return s.update(ctx, identityID, fields)
}

// UpdateMedical updates medical information and returns the profile.
func (s *Service) UpdateMedical(ctx context.Context, identityID string, input MedicalInput) (domain.Profile, error) {
	fields := docstore.Fields{}
	s.set(fields, KeyAllergies, input.Allergies)
	s.set(fields, KeyMedications, input.Medications)
	s.set(fields, KeyCondition, input.Condition)
	return s.update(ctx, identityID, fields)
}

// UpdateEmergencyContact updates the emergency contact and returns the profile.
func (s *Service) UpdateEmergencyContact(ctx context.Context, identityID string, input EmergencyContactInput) (domain.Profile, error) {
	fields := docstore.Fields{}
	s.set(fields, KeyEmergencyContactName, input.Name)
	s.set(fields, KeyEmergencyContactRelationship, input.Relationship)
	s.set(fields, KeyEmergencyContactBloodType, input.BloodType)
	s.set(fields, KeyEmergencyContactPhone, input.Phone)
	return s.update(ctx, identityID, fields)
}

// OnIdentityCreated creates the profile record of a newly registered identity.
func (s *Service) OnIdentityCreated(ctx context.Context, id *domain.Identity, details identity.RegistrationDetails) error {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	fields := docstore.Fields{
		KeyEmail: id.Email,
		KeyName:  s.clean(details.Name),
		KeyPhone: s.clean(details.Phone),
		KeyRole:  string(domain.RoleUser),
	}
	if err := s.store.Put(ctx, Collection, id.ID, fields); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// LookupRole returns the role attribute of identityID's profile.
func (s *Service) LookupRole(ctx context.Context, identityID string) (string, bool, error) {
	doc, err := s.store.Get(ctx, Collection, identityID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup role: %w", err)
	}
	return doc.Fields.String(KeyRole), true, nil
}

func (s *Service) update(ctx context.Context, identityID string, fields docstore.Fields) (domain.Profile, error) {
	if identityID == "" {
		return domain.Profile{}, ErrIdentityRequired
	}

	if len(fields) > 0 {
		if err := s.upsert(ctx, identityID, fields); err != nil {
			return domain.Profile{}, err
		}
	}

	return s.Get(ctx, identityID)
}

func (s *Service) upsert(ctx context.Context, identityID string, fields docstore.Fields) error {
	ctx, cancel := s.policy.Context(ctx, callpolicy.Write)
	defer cancel()

	err := s.store.Update(ctx, Collection, identityID, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		err = s.store.Put(ctx, Collection, identityID, fields)
	}
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *Service) set(fields docstore.Fields, key string, value *string) {
	if value == nil {
		return
	}
	fields[key] = s.clean(*value)
}

// maxCleanPasses bounds how many layers of entity encoding clean unwraps.
const maxCleanPasses = 8

// clean strips markup from free text. Entities are decoded only once the
// decoded text sanitizes to itself, so escaped markup cannot come back to life.
func (s *Service) clean(value string) string {
	current := value
	for range maxCleanPasses {
		next := html.UnescapeString(s.sanitize.Sanitize(current))
		if next == current {
			return strings.TrimSpace(next)
		}
		current = next
	}
	return strings.TrimSpace(s.sanitize.Sanitize(current))
}

func toProfile(identityID string, f docstore.Fields) domain.Profile {
	return domain.Profile{
		IdentityID:  identityID,
		Email:       f.String(KeyEmail),
		Name:        f.String(KeyName),
		Phone:       f.String(KeyPhone),
		Role:        f.String(KeyRole),
		NationalID:  f.String(KeyNationalID),
		DateOfBirth: f.String(KeyDateOfBirth),
		Sex:         f.String(KeySex),
		Weight:      f.String(KeyWeight),
		Height:      f.String(KeyHeight),
		BloodType:   f.String(KeyBloodType),
		Address:     f.String(KeyAddress),
		Allergies:   f.String(KeyAllergies),
		Medications: f.String(KeyMedications),
		Condition:   f.String(KeyCondition),
		EmergencyContact: domain.EmergencyContact{
			Name:         f.String(KeyEmergencyContactName),
			Relationship: f.String(KeyEmergencyContactRelationship),
			BloodType:    f.String(KeyEmergencyContactBloodType),
			Phone:        f.String(KeyEmergencyContactPhone),
		},
	}
}
