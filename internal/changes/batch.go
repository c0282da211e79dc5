// Package changes turns committed store mutations into ordered positional
// instructions for a pin's photo grid, and delivers them per pin.
package changes

import (
	"github.com/google/uuid"
)

// Kind is the type of a single change
type Kind string

const (
	// KindInsert means a photo was added
	KindInsert Kind = "insert"

	// KindDelete means a photo was removed
	KindDelete Kind = "delete"

	// KindUpdate means a photo changed in place
	KindUpdate Kind = "update"
)

// Change is one photo-level change inside a mutation cycle
type Change struct {
	Kind    Kind      `json:"kind"`
	PhotoID uuid.UUID `json:"photoId"`
}

// Batch is every change one committed mutation cycle made to a pin.
// Before and After are the pin's ordered photo IDs around the cycle.
type Batch struct {
	PinID   uuid.UUID   `json:"pinId"`
	Before  []uuid.UUID `json:"-"`
	After   []uuid.UUID `json:"-"`
	Changes []Change    `json:"changes"`
}

// Empty reports whether the batch carries no changes
func (b Batch) Empty() bool {
	return len(b.Changes) == 0
}

// Inserted returns a batch with a single insertion
func Inserted(pinID, photoID uuid.UUID, before, after []uuid.UUID) Batch {
	return Batch{
		PinID:   pinID,
		Before:  before,
		After:   after,
		Changes: []Change{{Kind: KindInsert, PhotoID: photoID}},
	}
}

// Deleted returns a batch removing every photo in photoIDs
func Deleted(pinID uuid.UUID, photoIDs, before, after []uuid.UUID) Batch {
	cs := make([]Change, len(photoIDs))
	for i, id := range photoIDs {
		cs[i] = Change{Kind: KindDelete, PhotoID: id}
	}
	return Batch{PinID: pinID, Before: before, After: after, Changes: cs}
}
