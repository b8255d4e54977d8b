package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/dodocare/dodocare/internal/docstore/memory"
	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/identity"
	"github.com/dodocare/dodocare/internal/pkg/callpolicy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unreachableStore struct {
	docstore.Store
}

func (unreachableStore) Get(context.Context, string, string) (*docstore.Document, error) {
	return nil, fmt.Errorf("select: %w", docstore.ErrUnavailable)
}

func ptr(s string) *string { return &s }

func newTestService() (*Service, *memory.Store) {
	store := memory.NewStore()
	return NewService(store, callpolicy.Default()), store
}

func TestGet_MissingRecordIsEmpty(t *testing.T) {
	s, _ := newTestService()

	p, err := s.Get(context.Background(), "id-1")

	require.NoError(t, err)
	assert.Equal(t, domain.Profile{IdentityID: "id-1"}, p)
}

func TestGet_RequiresIdentity(t *testing.T) {
	s, _ := newTestService()

	_, err := s.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrIdentityRequired)
}

func TestOnIdentityCreated(t *testing.T) {
	s, _ := newTestService()
	id := &domain.Identity{ID: "id-1", Email: "pat@example.com"}

	err := s.OnIdentityCreated(context.Background(), id, identity.RegistrationDetails{Name: "Pat", Phone: "+503 7000-0000"})
	require.NoError(t, err)

	p, err := s.Get(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, "pat@example.com", p.Email)
	assert.Equal(t, "Pat", p.Name)
	assert.Equal(t, "+503 7000-0000", p.Phone)
	assert.Equal(t, "user", p.Role)
	assert.Empty(t, p.BloodType)

	role, found, err := s.LookupRole(context.Background(), "id-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "user", role)
}

func TestLookupRole(t *testing.T) {
	t.Run("missing record", func(t *testing.T) {
		s, _ := newTestService()

		role, found, err := s.LookupRole(context.Background(), "nobody")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, role)
	})

	t.Run("store unavailable", func(t *testing.T) {
		s := NewService(unreachableStore{Store: memory.NewStore()}, callpolicy.Default())

		_, _, err := s.LookupRole(context.Background(), "id-1")
		assert.True(t, errors.Is(err, docstore.ErrUnavailable))
	})
}

func TestUpdatePersonal_PartialUpdate(t *testing.T) {
	s, _ := newTestService()
	require.NoError(t, s.OnIdentityCreated(context.Background(),
		&domain.Identity{ID: "id-1", Email: "pat@example.com"},
		identity.RegistrationDetails{Name: "Pat", Phone: "111"}))

	p, err := s.UpdatePersonal(context.Background(), "id-1", PersonalInput{
		NationalID:  ptr("01234567-8"),
		DateOfBirth: ptr("1990-05-01"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Pat", p.Name)
	assert.Equal(t, "111", p.Phone)
	assert.Equal(t, "01234567-8", p.NationalID)
	assert.Equal(t, "1990-05-01", p.DateOfBirth)
	assert.Equal(t, "user", p.Role)
}

func TestUpdate_CreatesMissingRecord(t *testing.T) {
	s, _ := newTestService()

	p, err := s.UpdateMedical(context.Background(), "id-1", MedicalInput{Allergies: ptr("penicillin")})
	require.NoError(t, err)
	assert.Equal(t, "penicillin", p.Allergies)

	p, err = s.UpdateComplementary(context.Background(), "id-1", ComplementaryInput{BloodType: ptr("O+")})
	require.NoError(t, err)
	assert.Equal(t, "penicillin", p.Allergies)
	assert.Equal(t, "O+", p.BloodType)
}

func TestUpdateEmergencyContact(t *testing.T) {
	s, _ := newTestService()

	p, err := s.UpdateEmergencyContact(context.Background(), "id-1", EmergencyContactInput{
		Name:         ptr("María Rivas"),
		Relationship: ptr("Madre"),
		BloodType:    ptr("A-"),
		Phone:        ptr("+503 7682-8282"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.EmergencyContact{
		Name:         "María Rivas",
		Relationship: "Madre",
		BloodType:    "A-",
		Phone:        "+503 7682-8282",
	}, p.EmergencyContact)
}

func TestUpdate_StripsMarkup(t *testing.T) {
	s, _ := newTestService()

	p, err := s.UpdateMedical(context.Background(), "id-1", MedicalInput{
		Condition:   ptr(`<script>alert(1)</script>asthma <b>mild</b>`),
		Medications: ptr("salbutamol & budesonide"),
	})
	require.NoError(t, err)

	assert.Equal(t, "asthma mild", p.Condition)
	assert.Equal(t, "salbutamol & budesonide", p.Medications)
}

func TestUpdate_StripsEscapedMarkup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"escaped script", "&lt;script&gt;alert(1)&lt;/script&gt;fever", "fever"},
		{"double escaped tag", "&amp;lt;b&amp;gt;migraine&amp;lt;/b&amp;gt;", "migraine"},
		{"escaped image handler", `&lt;img src=x onerror="alert(1)"&gt;rash`, "rash"},
		{"literal comparison", "dose < 5mg", "dose < 5mg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService()

			p, err := s.UpdateMedical(context.Background(), "id-1", MedicalInput{Condition: ptr(tt.input)})
			require.NoError(t, err)

			assert.Equal(t, tt.want, p.Condition)
			assert.NotContains(t, p.Condition, "<script")
			assert.NotContains(t, p.Condition, "<img")
		})
	}
}

func TestUpdate_RequiresIdentity(t *testing.T) {
	s, _ := newTestService()

	_, err := s.UpdateMedical(context.Background(), "", MedicalInput{Allergies: ptr("none")})
	assert.ErrorIs(t, err, ErrIdentityRequired)
}
