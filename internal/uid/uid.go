// Package uid provides unique identifier generation for ltcatalog.
package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random (version 4) UUID string used as a product record ID.
func New() string {
	return uuid.NewString()
}

// RequestID returns a 16-character uppercase hex identifier for the
// X-Request-Id response header.
func RequestID() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:16])
}
