package revision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	require.Equal(t, 1, Next(nil))
	three := 3
	require.Equal(t, 4, Next(&three))
}

func TestSwap(t *testing.T) {
	refs := []Ref{{ID: 1, Revision: 2}, {ID: 2, Revision: 5}, {ID: 1, Revision: 2}}
	out := Swap(refs, 1, 2, 3)

	require.Equal(t, []Ref{{ID: 1, Revision: 3}, {ID: 2, Revision: 5}, {ID: 1, Revision: 3}}, out)
	// input stays untouched
	require.Equal(t, Ref{ID: 1, Revision: 2}, refs[0])

	// a different revision of the same child is not substituted
	out = Swap(refs, 1, 7, 8)
	require.Equal(t, refs, out)
}

func TestRemove(t *testing.T) {
	refs := []Ref{{ID: 1, Revision: 1}, {ID: 2, Revision: 4}, {ID: 1, Revision: 2}}
	out := Remove(refs, 1)
	require.Equal(t, []Ref{{ID: 2, Revision: 4}}, out)
	require.Len(t, refs, 3)
}

func TestDedupeIDs(t *testing.T) {
	require.Equal(t, []int64{3, 1, 2}, DedupeIDs([]int64{3, 1, 3, 2, 1}))
	require.Empty(t, DedupeIDs(nil))
}

func TestPropagationError(t *testing.T) {
	inner := errors.New("boom")
	err := &PropagationError{Entity: "product", ChildID: 9, Failed: []int64{4, 8}, Errs: []error{inner}}
	require.Contains(t, err.Error(), "product 9")
	require.Contains(t, err.Error(), "[4, 8]")
	require.ErrorIs(t, err, inner)
}

func TestPropagationErrorNestedOnly(t *testing.T) {
	// The container republished, but its own cascade to a point of sale
	// failed: no parent of the product is stale, yet the error is real.
	inner := errors.New("pos republish failed")
	err := &PropagationError{Entity: "product", ChildID: 3, Errs: []error{inner}}

	require.NotContains(t, err.Error(), "0 parent(s)")
	require.Contains(t, err.Error(), "further down the cascade")
	require.Contains(t, err.Error(), "1 failure(s)")
	require.ErrorIs(t, err, inner)
}
