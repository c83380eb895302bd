package containers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gewis/sudosos-go/internal/catalog/revision"
)

type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	bases     map[int64]*Base
	revisions map[int64]map[int]Revision
	drafts    map[int64]*Draft
}

func newMemRepo() *memRepo {
	return &memRepo{
		bases:     make(map[int64]*Base),
		revisions: make(map[int64]map[int]Revision),
		drafts:    make(map[int64]*Draft),
	}
}

func (r *memRepo) CreateBase(_ context.Context, ownerID int64, public bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.bases[id] = &Base{ID: id, OwnerID: ownerID, Public: public, CreatedAt: time.Now()}
	r.revisions[id] = make(map[int]Revision)
	return id, nil
}

func (r *memRepo) GetBase(_ context.Context, id int64) (Base, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	base, ok := r.bases[id]
	if !ok {
		return Base{}, revision.ErrNotFound
	}
	return *base, nil
}

func (r *memRepo) GetCurrent(_ context.Context, id int64) (Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	base, ok := r.bases[id]
	if !ok || base.DeletedAt != nil || base.CurrentRevision == nil {
		return Revision{}, revision.ErrNotFound
	}
	return r.revisions[id][*base.CurrentRevision], nil
}

func (r *memRepo) GetRevision(_ context.Context, id int64, rev int) (Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.revisions[id][rev]
	if !ok {
		return Revision{}, revision.ErrNotFound
	}
	return out, nil
}

func (r *memRepo) List(_ context.Context, _, _ int) ([]Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Revision
	for id, base := range r.bases {
		if base.DeletedAt != nil || base.CurrentRevision == nil {
			continue
		}
		out = append(out, r.revisions[id][*base.CurrentRevision])
	}
	return out, nil
}

func (r *memRepo) GetDraft(_ context.Context, id int64) (*Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[id]
	if !ok {
		return nil, nil
	}
	copied := *draft
	return &copied, nil
}

func (r *memRepo) UpsertDraft(_ context.Context, draft Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[draft.ContainerID] = &draft
	return nil
}

func (r *memRepo) DeleteDraft(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, id)
	return nil
}

func (r *memRepo) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	base, ok := r.bases[id]
	if !ok || base.DeletedAt != nil {
		return revision.ErrNotFound
	}
	now := time.Now()
	base.DeletedAt = &now
	return nil
}

func (r *memRepo) FindByProductRevision(_ context.Context, productID int64, rev int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for id, base := range r.bases {
		if base.DeletedAt != nil || base.CurrentRevision == nil {
			continue
		}
		cur := r.revisions[id][*base.CurrentRevision]
		if revision.Contains(cur.ProductRefs, revision.Ref{ID: productID, Revision: rev}) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memRepo) FindByProduct(_ context.Context, productID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for id, base := range r.bases {
		if base.DeletedAt != nil || base.CurrentRevision == nil {
			continue
		}
		cur := r.revisions[id][*base.CurrentRevision]
		for _, ref := range cur.ProductRefs {
			if ref.ID == productID {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (r *memRepo) StaleProductRefs(_ context.Context) ([]revision.Ref, error) {
	return nil, nil
}

func (r *memRepo) DeletedProductIDs(_ context.Context) ([]int64, error) {
	return nil, nil
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memTx{repo: r})
}

type memTx struct {
	repo *memRepo
}

func (t *memTx) LockBase(_ context.Context, id int64) (Base, error) {
	base, ok := t.repo.bases[id]
	if !ok {
		return Base{}, revision.ErrNotFound
	}
	return *base, nil
}

func (t *memTx) GetRevision(_ context.Context, id int64, rev int) (Revision, error) {
	out, ok := t.repo.revisions[id][rev]
	if !ok {
		return Revision{}, revision.ErrNotFound
	}
	return out, nil
}

func (t *memTx) InsertRevision(_ context.Context, rev Revision) error {
	if _, exists := t.repo.revisions[rev.ContainerID][rev.Revision]; exists {
		return revision.ErrRevisionConflict
	}
	t.repo.revisions[rev.ContainerID][rev.Revision] = rev
	return nil
}

func (t *memTx) SetCurrentRevision(_ context.Context, id int64, rev int) error {
	t.repo.bases[id].CurrentRevision = &rev
	return nil
}

func (t *memTx) DeleteDraft(_ context.Context, id int64) error {
	delete(t.repo.drafts, id)
	return nil
}

// refDirectory is a ProductDirectory backed by a plain map, mutated by tests
// to simulate products moving on between staging and approval.
type refDirectory struct {
	mu   sync.Mutex
	refs map[int64]revision.Ref
}

func newRefDirectory() *refDirectory {
	return &refDirectory{refs: make(map[int64]revision.Ref)}
}

func (d *refDirectory) set(id int64, rev int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs[id] = revision.Ref{ID: id, Revision: rev}
}

func (d *refDirectory) CurrentRef(_ context.Context, id int64) (revision.Ref, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.refs[id]
	if !ok {
		return revision.Ref{}, revision.ErrNotFound
	}
	return ref, nil
}

func TestApproveBindsRefsAtApprovalTime(t *testing.T) {
	products := newRefDirectory()
	svc := NewService(newMemRepo(), products, nil, nil, nil)
	ctx := context.Background()

	products.set(7, 1)
	id, err := svc.CreateDraft(ctx, 1, true, Fields{Name: "Fridge"}, []int64{7})
	require.NoError(t, err)

	// The product publishes a new revision while the draft is pending. The
	// draft stores the bare id, so approval must pick up revision 2.
	products.set(7, 2)

	rev, err := svc.Approve(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, rev.Revision)
	require.Equal(t, []revision.Ref{{ID: 7, Revision: 2}}, rev.ProductRefs)
}

func TestApproveRejectsUnpublishedProduct(t *testing.T) {
	products := newRefDirectory()
	svc := NewService(newMemRepo(), products, nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, false, Fields{Name: "Fridge"}, []int64{99})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, id)
	require.ErrorIs(t, err, revision.ErrNotFound)
}

func TestRepublishDetectsRevisionConflict(t *testing.T) {
	products := newRefDirectory()
	svc := NewService(newMemRepo(), products, nil, nil, nil)
	ctx := context.Background()

	products.set(7, 1)
	id, err := svc.CreateDraft(ctx, 1, false, Fields{Name: "Fridge"}, []int64{7})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	// Republish against the wrong expected revision must not write anything.
	_, err = svc.Republish(ctx, id, 5, []revision.Ref{{ID: 7, Revision: 2}})
	require.ErrorIs(t, err, revision.ErrRevisionConflict)

	cur, err := svc.GetCurrent(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, cur.Revision)
}

func TestRepublishPreservesFields(t *testing.T) {
	products := newRefDirectory()
	svc := NewService(newMemRepo(), products, nil, nil, nil)
	ctx := context.Background()

	products.set(7, 1)
	id, err := svc.CreateDraft(ctx, 1, false, Fields{Name: "Fridge"}, []int64{7})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	rev, err := svc.Republish(ctx, id, 1, []revision.Ref{{ID: 7, Revision: 2}})
	require.NoError(t, err)
	require.Equal(t, 2, rev.Revision)
	require.Equal(t, "Fridge", rev.Name)
	require.Equal(t, []revision.Ref{{ID: 7, Revision: 2}}, rev.ProductRefs)
}

func TestRepublishDiscardsPendingDraft(t *testing.T) {
	products := newRefDirectory()
	svc := NewService(newMemRepo(), products, nil, nil, nil)
	ctx := context.Background()

	products.set(7, 1)
	id, err := svc.CreateDraft(ctx, 1, false, Fields{Name: "Fridge"}, []int64{7})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	require.NoError(t, svc.StageUpdate(ctx, id, Fields{Name: "Freezer"}, []int64{7}))

	_, err = svc.Republish(ctx, id, 1, []revision.Ref{{ID: 7, Revision: 2}})
	require.NoError(t, err)

	draft, err := svc.GetDraft(ctx, id)
	require.NoError(t, err)
	require.Nil(t, draft)
}

func TestDraftViewResolvesForDisplayOnly(t *testing.T) {
	products := newRefDirectory()
	repo := newMemRepo()
	svc := NewService(repo, products, nil, nil, nil)
	ctx := context.Background()

	products.set(7, 3)
	id, err := svc.CreateDraft(ctx, 1, false, Fields{Name: "Fridge"}, []int64{7, 7})
	require.NoError(t, err)

	view, err := svc.GetDraft(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, view)
	require.Equal(t, []int64{7}, view.ProductIDs)
	require.Equal(t, []revision.Ref{{ID: 7, Revision: 3}}, view.ProductRefs)

	// The stored draft itself keeps bare ids.
	stored, err := repo.GetDraft(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, stored.ProductIDs)
}
