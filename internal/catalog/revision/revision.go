// Package revision holds the plumbing shared by the three revisioned catalog
// families (products, containers, points of sale): reference pairs, revision
// sequence math and the common error taxonomy.
package revision

import (
	"errors"
	"fmt"
	"strings"
)

// Ref identifies one published revision of a catalog aggregate. Parent
// revisions embed these pairs so historical transactions always resolve
// against the snapshot that existed when they were recorded.
type Ref struct {
	ID       int64 `json:"id"`
	Revision int   `json:"revision"`
}

var (
	// ErrNotFound indicates a missing base record or a revision number above
	// the highest published one.
	ErrNotFound = errors.New("catalog: aggregate or revision not found")
	// ErrNoDraft indicates approve was called without a staged update.
	ErrNoDraft = errors.New("catalog: no pending update staged")
	// ErrRevisionConflict indicates two publishers collided on the same
	// revision number. The loser may retry once.
	ErrRevisionConflict = errors.New("catalog: revision number conflict")
)

// Next computes the revision number a publish would create.
func Next(current *int) int {
	if current == nil {
		return 1
	}
	return *current + 1
}

// Swap returns a copy of refs with every (id, from) entry replaced by
// (id, to). All other entries are untouched.
func Swap(refs []Ref, id int64, from, to int) []Ref {
	out := make([]Ref, len(refs))
	for i, r := range refs {
		if r.ID == id && r.Revision == from {
			r.Revision = to
		}
		out[i] = r
	}
	return out
}

// Remove returns a copy of refs without any entry for id, regardless of
// revision. Used for deletion propagation.
func Remove(refs []Ref, id int64) []Ref {
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if r.ID == id {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Contains reports whether refs holds the exact (id, revision) pair.
func Contains(refs []Ref, ref Ref) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

// DedupeIDs removes duplicate ids while preserving first-seen order. A parent
// may reference the same child through multiple slots but must be
// republished only once per propagation pass.
func DedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// PropagationError reports parents that failed to republish after the
// child's own revision already committed. The child's publish is never
// rolled back; stale parents self-heal on their next publish or via the
// consistency sweep.
type PropagationError struct {
	Entity  string
	ChildID int64
	Failed  []int64
	Errs    []error
}

func (e *PropagationError) Error() string {
	// A parent can republish fine and still report a cascade failure of
	// its own; in that case Failed stays empty but Errs does not.
	if len(e.Failed) == 0 {
		return fmt.Sprintf("catalog: propagation from %s %d hit %d failure(s) further down the cascade",
			e.Entity, e.ChildID, len(e.Errs))
	}
	ids := make([]string, len(e.Failed))
	for i, id := range e.Failed {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("catalog: propagation from %s %d left %d parent(s) stale: [%s]",
		e.Entity, e.ChildID, len(e.Failed), strings.Join(ids, ", "))
}

// Unwrap exposes the underlying republish failures for errors.Is/As.
func (e *PropagationError) Unwrap() []error {
	return e.Errs
}
