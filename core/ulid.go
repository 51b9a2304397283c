// ABOUTME: ID minting for boards, columns, notes, and events.
// ABOUTME: One monotonic ULID source so same-millisecond IDs still sort in mint order.
package core

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// entropy backs every ID the package mints. The locked monotonic reader
// guarantees that ULIDs minted within the same millisecond sort in mint
// order, so a board journal stays sortable by event ID alone.
var entropy = ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(rand.Reader, 0),
}

// NewULID mints an identifier for a board, column, note, or event.
func NewULID() ulid.ULID {
	return ulid.MustNew(ulid.Now(), &entropy)
}
