package httputil

import (
	"context"
	"net/http"
	"strings"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/pkg/ctxlog"
)

// CORSMiddleware creates CORS middleware that handles preflight requests
// and adds appropriate CORS headers to responses.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if originsSet[origin] || originsSet["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

// SessionKey is the context key of the request session.
const SessionKey contextKey = "session"

// Session is the client session a request belongs to.
type Session interface {
	ID() string
	Role() domain.Role
	Identity() *domain.Identity
	// Begin marks a mutation as in flight. It fails while another one is running.
	Begin() (end func(), err error)
}

// SessionResolver maps a bearer token to its session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (Session, error)
}

// SessionMiddleware attaches the session named by the bearer token to the request.
func SessionMiddleware(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				Error(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			sess, err := resolver.ResolveSession(r.Context(), parts[1])
			if err != nil {
				Error(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ctx := WithSession(r.Context(), sess)
			ctx = ctxlog.With(ctx, "session_id", sess.ID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits only sessions holding exactly role.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := GetSession(r.Context())
			if sess == nil {
				Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if sess.Role() != role {
				Error(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity admits only sessions with a signed-in identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := GetSession(r.Context())
		if sess == nil {
			Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if sess.Identity() == nil {
			Error(w, http.StatusForbidden, "this section is available to patient accounts only")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithSession adds a session to the context.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// GetSession extracts the session from context, or nil.
func GetSession(ctx context.Context) Session {
	if sess, ok := ctx.Value(SessionKey).(Session); ok {
		return sess
	}
	return nil
}

// GetIdentityID returns the id of the signed-in identity, or "".
func GetIdentityID(ctx context.Context) string {
	sess := GetSession(ctx)
	if sess == nil {
		return ""
	}
	if id := sess.Identity(); id != nil {
		return id.ID
	}
	return ""
}
