package products

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gewis/sudosos-go/internal/catalog/revision"
)

// memRepo is an in-memory Repository. The mutex is held for the whole of
// WithTx, which models the base-row lock of the real implementation.
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
	r.drafts[draft.ProductID] = &draft
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

func (t *memTx) InsertRevision(_ context.Context, rev Revision) error {
	if _, exists := t.repo.revisions[rev.ProductID][rev.Revision]; exists {
		return revision.ErrRevisionConflict
	}
	t.repo.revisions[rev.ProductID][rev.Revision] = rev
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

type hookRecorder struct {
	mu        sync.Mutex
	published []int // previous revisions, in order
	deleted   []int64
}

func (h *hookRecorder) ProductPublished(_ context.Context, _ int64, previousRevision int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, previousRevision)
	return nil
}

func (h *hookRecorder) ProductDeleted(_ context.Context, productID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, productID)
	return nil
}

func beerFields() Fields {
	return Fields{Name: "Grolsch", PriceCents: 90, VatPercent: 9, Category: "beer", AlcoholPerc: 5}
}

func TestFirstPublishStartsAtRevisionOne(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, beerFields())
	require.NoError(t, err)

	rev, err := svc.Approve(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, rev.Revision)

	cur, err := svc.GetCurrent(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Grolsch", cur.Name)
}

func TestApproveWithoutDraftFails(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, beerFields())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	// The approve consumed the draft; a second approve has nothing to publish.
	_, err = svc.Approve(ctx, id)
	require.ErrorIs(t, err, revision.ErrNoDraft)
}

func TestStagedDraftDoesNotAffectCurrent(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, beerFields())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	updated := beerFields()
	updated.PriceCents = 120
	require.NoError(t, svc.StageUpdate(ctx, id, updated))

	cur, err := svc.GetCurrent(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 90, cur.PriceCents)

	draft, err := svc.GetDraft(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, draft)
	require.EqualValues(t, 120, draft.PriceCents)

	require.NoError(t, svc.DiscardDraft(ctx, id))
	draft, err = svc.GetDraft(ctx, id)
	require.NoError(t, err)
	require.Nil(t, draft)
}

func TestConcurrentPublishesStayGapFree(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, beerFields())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	const publishers = 9
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PublishDirect(ctx, id, beerFields())
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	base, err := svc.GetBase(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, base.CurrentRevision)
	require.Equal(t, publishers+1, *base.CurrentRevision)

	// Every revision from 1 through current exists exactly once.
	for rev := 1; rev <= publishers+1; rev++ {
		_, err := svc.GetRevision(ctx, id, rev)
		require.NoError(t, err, "revision %d missing", rev)
	}
}

func TestPublishTriggersHookWithPreviousRevision(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)
	hook := &hookRecorder{}
	svc.SetPropagation(hook)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, beerFields())
	require.NoError(t, err)

	// Revision 1: nothing can reference an unpublished product.
	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)
	require.Empty(t, hook.published)

	_, err = svc.PublishDirect(ctx, id, beerFields())
	require.NoError(t, err)
	require.Equal(t, []int{1}, hook.published)
}

func TestSoftDeleteHidesProductAndPropagates(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)
	hook := &hookRecorder{}
	svc.SetPropagation(hook)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, beerFields())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, id))
	require.Equal(t, []int64{id}, hook.deleted)

	_, err = svc.CurrentRef(ctx, id)
	require.ErrorIs(t, err, revision.ErrNotFound)

	// History stays readable after the delete.
	_, err = svc.GetRevision(ctx, id, 1)
	require.NoError(t, err)

	err = svc.StageUpdate(ctx, id, beerFields())
	require.ErrorIs(t, err, revision.ErrNotFound)
}

func TestValidateRejectsBadFields(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)
	ctx := context.Background()

	cases := []Fields{
		{Name: "", PriceCents: 10},
		{Name: "x", PriceCents: -1},
		{Name: "x", VatPercent: 101},
		{Name: "x", AlcoholPerc: -3},
	}
	for _, fields := range cases {
		_, err := svc.CreateDraft(ctx, 1, fields)
		require.Error(t, err)
	}
}

func TestCurrentRefRequiresPublishedRevision(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil, nil)
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, 1, beerFields())
	require.NoError(t, err)

	_, err = svc.CurrentRef(ctx, id)
	require.ErrorIs(t, err, revision.ErrNotFound)

	_, err = svc.Approve(ctx, id)
	require.NoError(t, err)

	ref, err := svc.CurrentRef(ctx, id)
	require.NoError(t, err)
	require.Equal(t, revision.Ref{ID: id, Revision: 1}, ref)
}
