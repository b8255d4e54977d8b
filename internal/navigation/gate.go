// Package navigation decides which parts of the portal a session may open.
package navigation

import "github.com/dodocare/dodocare/internal/domain"

// BlockedMessage is shown to a guest who tries to open a restricted destination.
const BlockedMessage = "sign in to access this section"

// CanNavigate reports whether a session with role may open a destination.
// Only guests are kept out, and only from destinations that require authentication.
func CanNavigate(role domain.Role, requiresAuth bool) bool {
	return !(requiresAuth && role == domain.RoleGuest)
}
