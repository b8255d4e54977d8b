package profile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	role     domain.Role
	identity *domain.Identity
}

func (s stubSession) ID() string                 { return "sid" }
func (s stubSession) Role() domain.Role          { return s.role }
func (s stubSession) Identity() *domain.Identity { return s.identity }
func (s stubSession) Begin() (func(), error)     { return func() {}, nil }

func newTestRouter(sess httputil.Session) http.Handler {
	s, _ := newTestService()
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(httputil.WithSession(r.Context(), sess)))
		})
	})
	NewHandler(s).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RequiresPatient(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleGuest, domain.RoleAdmin} {
		router := newTestRouter(stubSession{role: role})
		assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/profile", "").Code, role)
	}
}

func TestHandler_UpdateAndGet(t *testing.T) {
	router := newTestRouter(stubSession{role: domain.RoleUser, identity: &domain.Identity{ID: "id-1"}})

	rec := do(router, http.MethodPatch, "/profile/complementary", `{"weight":"176.37","blood_type":"AB+"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodGet, "/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data domain.Profile `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "176.37", envelope.Data.Weight)
	assert.Equal(t, "AB+", envelope.Data.BloodType)
}

func TestHandler_Validation(t *testing.T) {
	router := newTestRouter(stubSession{role: domain.RoleUser, identity: &domain.Identity{ID: "id-1"}})

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPatch, "/profile/complementary", `{"blood_type":"Z"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPatch, "/profile/personal", `{"date_of_birth":"01/05/1990"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPatch, "/profile/medical", `[`).Code)
}
