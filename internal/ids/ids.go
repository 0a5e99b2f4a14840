// Package ids generates prefixed entity identifiers.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Prefixes for each entity kind.
const (
	Proposal = "prp"
	Offer    = "off"
	Contract = "ctr"
	Step     = "stp"
)

// New returns an ID of the form "<prefix>-<12 hex chars>", e.g. "off-3f2a9c01be47".
func New(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + raw[:12]
}

// HasPrefix reports whether id was generated for the given prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"-")
}
