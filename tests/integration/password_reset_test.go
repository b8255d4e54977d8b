//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/dodocare/dodocare/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resetTokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)

// issueResetToken requests a reset for email and reads the token out of the delivered mail.
func issueResetToken(t *testing.T, email string) string {
	t.Helper()

	client := testutil.NewClient(testServer.URL)
	resp, err := client.POST("/api/v1/auth/password-reset", map[string]string{"email": email})
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()

	msg, err := mailpit.WaitForRecipient(email, 10*time.Second)
	require.NoError(t, err)

	match := resetTokenPattern.FindStringSubmatch(msg.Text)
	require.Len(t, match, 2, "reset link not found in:\n%s", msg.Text)
	return match[1]
}

func TestPasswordReset_FullFlow(t *testing.T) {
	client := newTestClient(t)
	email := registerPatient(t, client, "Hugo Paz")

	token := issueResetToken(t, email)

	resp, err := client.POST("/api/v1/auth/password-reset/confirm", map[string]string{
		"token":    token,
		"password": "brand-new-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.WithoutValidation().POST("/api/v1/session/login", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.NoError(t, err)
	requireError(t, resp, http.StatusUnauthorized)

	state := client.Login(t, email, "brand-new-secret")
	assert.Equal(t, "user", state.Data.Session.Role)
}

func TestPasswordReset_TokenIsSingleUse(t *testing.T) {
	client := newTestClient(t)
	email := registerPatient(t, client, "Inés Mora")
	token := issueResetToken(t, email)

	body := map[string]string{"token": token, "password": "first-new-secret"}
	resp, err := client.POST("/api/v1/auth/password-reset/confirm", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	body["password"] = "second-new-secret"
	resp, err = client.POST("/api/v1/auth/password-reset/confirm", body)
	require.NoError(t, err)
	requireError(t, resp, http.StatusBadRequest)
}

func TestPasswordReset_UnknownEmailIsAccepted(t *testing.T) {
	client := testutil.NewClient(testServer.URL)

	resp, err := client.POST("/api/v1/auth/password-reset", map[string]string{"email": testutil.RandomEmail()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRegister_DuplicateEmail(t *testing.T) {
	client := newTestClient(t)
	email := registerPatient(t, client, "Julia Ortega")

	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"name":     "Julia Again",
		"email":    email,
		"password": testPassword,
	})
	require.NoError(t, err)
	requireError(t, resp, http.StatusConflict)
}

func TestRegister_ShortPassword(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"name":     "Kike Short",
		"email":    testutil.RandomEmail(),
		"password": "short",
	})
	require.NoError(t, err)
	requireError(t, resp, http.StatusBadRequest)
}
