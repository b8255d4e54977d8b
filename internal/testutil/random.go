package testutil

import (
	"fmt"

	"github.com/google/uuid"
)

// RandomEmail returns a unique address for a throwaway identity.
func RandomEmail() string {
	return fmt.Sprintf("patient-%s@example.com", uuid.NewString()[:8])
}

// RandomName returns name with a unique suffix.
func RandomName(name string) string {
	return fmt.Sprintf("%s %s", name, uuid.NewString()[:6])
}
