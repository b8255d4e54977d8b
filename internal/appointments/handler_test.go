package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/pkg/httputil"
	"github.com/dodocare/dodocare/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	role     domain.Role
	identity *domain.Identity
	busy     atomic.Bool
}

func (s *stubSession) ID() string                 { return "sid" }
func (s *stubSession) Role() domain.Role          { return s.role }
func (s *stubSession) Identity() *domain.Identity { return s.identity }

func (s *stubSession) Begin() (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, session.ErrRequestInFlight
	}
	return func() { s.busy.Store(false) }, nil
}

func newTestRouter(t *testing.T, sess httputil.Session) http.Handler {
	t.Helper()
	s, _ := newTestService(t)

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
	req := httptest.NewRequestWithContext(context.Background(), method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []domain.Appointment {
	t.Helper()
	var envelope struct {
		Data []domain.Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestHandler_GuestIsBlocked(t *testing.T) {
	router := newTestRouter(t, &stubSession{role: domain.RoleGuest})

	rec := do(router, http.MethodGet, "/appointments", "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "sign in to access this section")
}

func TestHandler_AdminHasNoAppointments(t *testing.T) {
	router := newTestRouter(t, &stubSession{role: domain.RoleAdmin})

	rec := do(router, http.MethodGet, "/appointments", "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_BookListReschedule(t *testing.T) {
	router := newTestRouter(t, &stubSession{role: domain.RoleUser, identity: &domain.Identity{ID: "id-a"}})

	rec := do(router, http.MethodPost, "/appointments", `{"doctor":"Dr. X","date":"2025-01-10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	booked := decodeList(t, rec)
	require.Len(t, booked, 1)

	rec = do(router, http.MethodGet, "/appointments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, booked, decodeList(t, rec))

	rec = do(router, http.MethodPatch, "/appointments/"+booked[0].ID, `{"date":"2025-03-03"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-03-03", decodeList(t, rec)[0].Date)

	rec = do(router, http.MethodPatch, "/appointments/missing", `{"date":"2025-03-03"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ValidationErrors(t *testing.T) {
	router := newTestRouter(t, &stubSession{role: domain.RoleUser, identity: &domain.Identity{ID: "id-a"}})

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/appointments", `{"date":"2025-01-10"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/appointments", `{"doctor":"Dr. X","date":"01-10-2025"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/appointments", `nope`).Code)
}

func TestHandler_RejectsWhileInFlight(t *testing.T) {
	sess := &stubSession{role: domain.RoleUser, identity: &domain.Identity{ID: "id-a"}}
	router := newTestRouter(t, sess)

	end, err := sess.Begin()
	require.NoError(t, err)
	defer end()

	rec := do(router, http.MethodPost, "/appointments", `{"doctor":"Dr. X","date":"2025-01-10"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
