package changes

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Op is a positional grid operation
type Op string

const (
	// OpDelete removes the cell at Index
	OpDelete Op = "delete"

	// OpInsert inserts a cell at Index
	OpInsert Op = "insert"

	// OpReload redraws the cell at Index
	OpReload Op = "reload"
)

// Instruction is one positional update for a grid view
type Instruction struct {
	Op      Op        `json:"op"`
	Index   int       `json:"index"`
	PhotoID uuid.UUID `json:"photoId"`
}

// InvariantError reports a change whose position cannot be resolved.
// It indicates a bug in the producer of the batch, not a runtime condition.
type InvariantError struct {
	PinID  uuid.UUID
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("change invariant violated for pin %s: %s", e.PinID, e.Reason)
}

// Project converts a batch into instructions that are safe to apply in order:
// deletions by original index descending, then insertions by target index
// ascending, then updates by position ascending.
func Project(b Batch) ([]Instruction, error) {
	before := indexOf(b.Before)
	after := indexOf(b.After)

	var deletes, inserts, updates []Instruction
	for _, c := range b.Changes {
		switch c.Kind {
		case KindDelete:
			i, ok := before[c.PhotoID]
			if !ok {
				return nil, &InvariantError{PinID: b.PinID, Reason: fmt.Sprintf("deleted photo %s has no original position", c.PhotoID)}
			}
			deletes = append(deletes, Instruction{Op: OpDelete, Index: i, PhotoID: c.PhotoID})
		case KindInsert:
			i, ok := after[c.PhotoID]
			if !ok {
				return nil, &InvariantError{PinID: b.PinID, Reason: fmt.Sprintf("inserted photo %s has no target position", c.PhotoID)}
			}
			inserts = append(inserts, Instruction{Op: OpInsert, Index: i, PhotoID: c.PhotoID})
		case KindUpdate:
			i, ok := after[c.PhotoID]
			if !ok {
				return nil, &InvariantError{PinID: b.PinID, Reason: fmt.Sprintf("updated photo %s has no position", c.PhotoID)}
			}
			updates = append(updates, Instruction{Op: OpReload, Index: i, PhotoID: c.PhotoID})
		default:
			return nil, &InvariantError{PinID: b.PinID, Reason: fmt.Sprintf("unknown change kind %q", c.Kind)}
		}
	}

	slices.SortFunc(deletes, func(a, b Instruction) int { return b.Index - a.Index })
	slices.SortFunc(inserts, func(a, b Instruction) int { return a.Index - b.Index })
	slices.SortFunc(updates, func(a, b Instruction) int { return a.Index - b.Index })

	if err := checkStrict(b.PinID, deletes, inserts); err != nil {
		return nil, err
	}

	out := make([]Instruction, 0, len(deletes)+len(inserts)+len(updates))
	out = append(out, deletes...)
	out = append(out, inserts...)
	out = append(out, updates...)
	return out, nil
}

func checkStrict(pinID uuid.UUID, deletes, inserts []Instruction) error {
	for i := 1; i < len(deletes); i++ {
		if deletes[i].Index == deletes[i-1].Index {
			return &InvariantError{PinID: pinID, Reason: fmt.Sprintf("photo at index %d deleted twice", deletes[i].Index)}
		}
	}
	for i := 1; i < len(inserts); i++ {
		if inserts[i].Index == inserts[i-1].Index {
			return &InvariantError{PinID: pinID, Reason: fmt.Sprintf("photo at index %d inserted twice", inserts[i].Index)}
		}
	}
	return nil
}

func indexOf(ids []uuid.UUID) map[uuid.UUID]int {
	m := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		m[id] = i
	}
	return m
}

// Grid is a positional list of photo IDs that applies instructions the way a
// collection view does.
type Grid struct {
	PinID uuid.UUID
	Cells []uuid.UUID
}

// Apply applies instructions in order. An out-of-range index is an InvariantError
// and leaves the grid partially updated.
func (g *Grid) Apply(ins []Instruction) error {
	for _, in := range ins {
		switch in.Op {
		case OpDelete:
			if in.Index < 0 || in.Index >= len(g.Cells) {
				return &InvariantError{PinID: g.PinID, Reason: fmt.Sprintf("delete index %d out of range [0,%d)", in.Index, len(g.Cells))}
			}
			g.Cells = slices.Delete(g.Cells, in.Index, in.Index+1)
		case OpInsert:
			if in.Index < 0 || in.Index > len(g.Cells) {
				return &InvariantError{PinID: g.PinID, Reason: fmt.Sprintf("insert index %d out of range [0,%d]", in.Index, len(g.Cells))}
			}
			g.Cells = slices.Insert(g.Cells, in.Index, in.PhotoID)
		case OpReload:
			if in.Index < 0 || in.Index >= len(g.Cells) {
				return &InvariantError{PinID: g.PinID, Reason: fmt.Sprintf("reload index %d out of range [0,%d)", in.Index, len(g.Cells))}
			}
			g.Cells[in.Index] = in.PhotoID
		}
	}
	return nil
}
