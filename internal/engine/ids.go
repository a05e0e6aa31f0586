package engine

import (
	"github.com/google/uuid"
)

// IDGenerator generates session and proposal IDs.
// Implemented by UUIDv7Generator (production) and testutil.SequentialIDs
// (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, so archived
// sessions sort by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct {
	// Prefix is prepended verbatim, e.g. "prop_".
	Prefix string
}

// Generate creates a new UUIDv7 string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return g.Prefix + uuid.Must(uuid.NewV7()).String()
}
