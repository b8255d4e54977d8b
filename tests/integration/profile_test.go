//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/dodocare/dodocare/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profileBody struct {
	Data struct {
		IdentityID       string `json:"identity_id"`
		Email            string `json:"email"`
		Name             string `json:"name"`
		Phone            string `json:"phone"`
		Role             string `json:"role"`
		DateOfBirth      string `json:"date_of_birth"`
		BloodType        string `json:"blood_type"`
		Allergies        string `json:"allergies"`
		EmergencyContact struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
		} `json:"emergency_contact"`
	} `json:"data"`
}

func TestProfile_CreatedAtRegistration(t *testing.T) {
	client, email := signedInPatient(t, "Paula Ibarra")

	resp, err := client.GET("/api/v1/profile")
	require.NoError(t, err)
	var p profileBody
	testutil.DecodeJSON(t, resp, &p)

	assert.Equal(t, email, p.Data.Email)
	assert.Equal(t, "Paula Ibarra", p.Data.Name)
	assert.Equal(t, "user", p.Data.Role)
	assert.Empty(t, p.Data.BloodType)
}

func TestProfile_SectionsUpdateIndependently(t *testing.T) {
	client, _ := signedInPatient(t, "Quique Salas")

	resp, err := client.PATCH("/api/v1/profile/personal", map[string]string{
		"date_of_birth": "1990-04-12",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.PATCH("/api/v1/profile/complementary", map[string]string{"blood_type": "AB-"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.PATCH("/api/v1/profile/medical", map[string]string{
		"allergies": "<b>penicillin</b>",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.PATCH("/api/v1/profile/emergency-contact", map[string]string{
		"name":  "Rosa Salas",
		"phone": "+52 55 1111 2222",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p profileBody
	testutil.DecodeJSON(t, resp, &p)
	assert.Equal(t, "Quique Salas", p.Data.Name, "untouched fields are kept")
	assert.Equal(t, "1990-04-12", p.Data.DateOfBirth)
	assert.Equal(t, "AB-", p.Data.BloodType)
	assert.Equal(t, "penicillin", p.Data.Allergies)
	assert.Equal(t, "Rosa Salas", p.Data.EmergencyContact.Name)
}

func TestProfile_InvalidBloodType(t *testing.T) {
	client, _ := signedInPatient(t, "Raúl Téllez")

	resp, err := client.PATCH("/api/v1/profile/complementary", map[string]string{"blood_type": "Z+"})
	require.NoError(t, err)
	requireError(t, resp, http.StatusBadRequest)
}

func TestProfile_GuestIsForbidden(t *testing.T) {
	guest := newTestClient(t)

	resp, err := guest.GET("/api/v1/profile")
	require.NoError(t, err)
	requireError(t, resp, http.StatusForbidden)
}
