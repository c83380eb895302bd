package pointsofsale

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

func (r *memRepo) CreateBase(_ context.Context, ownerID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.bases[id] = &Base{ID: id, OwnerID: ownerID, CreatedAt: time.Now()}
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

func (r *memRepo) List(_ context.Context, _, _ int) ([]Revision, error) { return nil, nil }

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
	r.drafts[draft.PointOfSaleID] = &draft
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

func (r *memRepo) FindByContainerRevision(_ context.Context, containerID int64, rev int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for id, base := range r.bases {
		if base.DeletedAt != nil || base.CurrentRevision == nil {
			continue
		}
		cur := r.revisions[id][*base.CurrentRevision]
		if revision.Contains(cur.ContainerRefs, revision.Ref{ID: containerID, Revision: rev}) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memRepo) FindByContainer(_ context.Context, containerID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for id, base := range r.bases {
		if base.DeletedAt != nil || base.CurrentRevision == nil {
			continue
		}
		cur := r.revisions[id][*base.CurrentRevision]
		for _, ref := range cur.ContainerRefs {
			if ref.ID == containerID {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (r *memRepo) StaleContainerRefs(_ context.Context) ([]revision.Ref, error) {
	return nil, nil
}

func (r *memRepo) DeletedContainerIDs(_ context.Context) ([]int64, error) {
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
	if _, exists := t.repo.revisions[rev.PointOfSaleID][rev.Revision]; exists {
		return revision.ErrRevisionConflict
	}
	t.repo.revisions[rev.PointOfSaleID][rev.Revision] = rev
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

// refDirectory is a mutable fake of the container directory.
type refDirectory struct {
	refs map[int64]int
}

func newRefDirectory() *refDirectory {
	return &refDirectory{refs: make(map[int64]int)}
}

func (d *refDirectory) set(id int64, rev int) { d.refs[id] = rev }

func (d *refDirectory) CurrentRef(_ context.Context, id int64) (revision.Ref, error) {
	rev, ok := d.refs[id]
	if !ok {
		return revision.Ref{}, revision.ErrNotFound
	}
	return revision.Ref{ID: id, Revision: rev}, nil
}

func TestApproveBindsContainerRefsAtApprovalTime(t *testing.T) {
	containers := newRefDirectory()
	containers.set(3, 1)
	svc := NewService(newMemRepo(), containers, nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, Fields{Name: "Bar", UseAuthentication: true}, []int64{3})
	require.NoError(t, err)

	// The container advances while the draft sits unapproved.
	containers.set(3, 2)

	rev, err := svc.Approve(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, rev.Revision)
	require.Equal(t, []revision.Ref{{ID: 3, Revision: 2}}, rev.ContainerRefs)
	require.True(t, rev.UseAuthentication)
}

func TestApproveRejectsUnpublishedContainer(t *testing.T) {
	svc := NewService(newMemRepo(), newRefDirectory(), nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, Fields{Name: "Bar"}, []int64{99})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, id)
	require.ErrorIs(t, err, revision.ErrNotFound)
}

func TestRepublishChecksExpectedRevision(t *testing.T) {
	containers := newRefDirectory()
	containers.set(3, 1)
	svc := NewService(newMemRepo(), containers, nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, Fields{Name: "Bar"}, []int64{3})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	_, err = svc.Republish(ctx, id, 7, []revision.Ref{{ID: 3, Revision: 2}})
	require.ErrorIs(t, err, revision.ErrRevisionConflict)

	rev, err := svc.Republish(ctx, id, 1, []revision.Ref{{ID: 3, Revision: 2}})
	require.NoError(t, err)
	require.Equal(t, 2, rev.Revision)
	require.Equal(t, "Bar", rev.Name)
	require.Equal(t, []revision.Ref{{ID: 3, Revision: 2}}, rev.ContainerRefs)
}

func TestDuplicateContainerIDsCollapse(t *testing.T) {
	containers := newRefDirectory()
	containers.set(3, 1)
	svc := NewService(newMemRepo(), containers, nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, Fields{Name: "Bar"}, []int64{3, 3, 3})
	require.NoError(t, err)
	rev, err := svc.Approve(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []revision.Ref{{ID: 3, Revision: 1}}, rev.ContainerRefs)
}

func TestSoftDeleteBlocksFurtherPublishes(t *testing.T) {
	containers := newRefDirectory()
	containers.set(3, 1)
	svc := NewService(newMemRepo(), containers, nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, Fields{Name: "Bar"}, []int64{3})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, id))

	_, err = svc.GetCurrent(ctx, id)
	require.ErrorIs(t, err, revision.ErrNotFound)

	// History stays readable after deletion.
	old, err := svc.GetRevision(ctx, id, 1)
	require.NoError(t, err)
	require.Equal(t, "Bar", old.Name)

	_, err = svc.PublishDirect(ctx, id, Fields{Name: "Bar"}, []int64{3})
	require.ErrorIs(t, err, revision.ErrNotFound)
}

func TestValidateRejectsEmptyName(t *testing.T) {
	svc := NewService(newMemRepo(), newRefDirectory(), nil, nil, nil)

	_, err := svc.CreateDraft(context.Background(), 1, Fields{Name: "  "}, nil)
	require.ErrorIs(t, err, errInvalidFields)
}
