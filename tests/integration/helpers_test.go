//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/dodocare/dodocare/internal/testutil"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse-1"

// registerPatient registers a new identity and returns its email.
func registerPatient(t *testing.T, client *testutil.Client, name string) string {
	t.Helper()

	email := testutil.RandomEmail()
	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"phone":    "+52 55 0000 0000",
		"password": testPassword,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, testutil.ReadBody(t, resp))
	_ = resp.Body.Close()
	return email
}

// signedInPatient returns a client whose session is signed in as a new patient.
func signedInPatient(t *testing.T, name string) (*testutil.Client, string) {
	t.Helper()

	client := newTestClient(t)
	email := registerPatient(t, client, name)
	client.Login(t, email, testPassword)
	return client, email
}

// adminClient returns a client whose session holds the administrator role.
func adminClient(t *testing.T) *testutil.Client {
	t.Helper()

	client := newTestClient(t)
	client.LoginAsAdmin(t, adminIdentifier, adminSecret)
	return client
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func requireError(t *testing.T, resp *http.Response, status int) string {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)

	var body errorBody
	testutil.DecodeJSON(t, resp, &body)
	return body.Error.Message
}
