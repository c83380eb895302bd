package containers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gewis/sudosos-go/internal/catalog/cache"
	"github.com/gewis/sudosos-go/internal/catalog/revision"
	"github.com/gewis/sudosos-go/internal/shared"
)

// ProductDirectory resolves product ids to their current revisions. The
// container publisher binds child references through this at publish time,
// never at staging time.
type ProductDirectory interface {
	CurrentRef(ctx context.Context, id int64) (revision.Ref, error)
}

// PropagationHook receives container-side events after a publish or soft
// delete has committed.
type PropagationHook interface {
	ContainerPublished(ctx context.Context, containerID int64, previousRevision int) error
	ContainerDeleted(ctx context.Context, containerID int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the container draft/approve/publish lifecycle.
type Service struct {
	repo        Repository
	products    ProductDirectory
	audit       AuditPort
	cache       *cache.Cache
	propagation PropagationHook
	logger      *slog.Logger
}

// NewService builds Service. audit and revCache may be nil.
func NewService(repo Repository, products ProductDirectory, audit AuditPort, revCache *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, products: products, audit: audit, cache: revCache, logger: logger}
}

// SetPropagation wires the propagation engine.
func (s *Service) SetPropagation(hook PropagationHook) {
	s.propagation = hook
}

// CreateDraft creates an unpublished container base with a staged first
// draft.
func (s *Service) CreateDraft(ctx context.Context, ownerID int64, public bool, fields Fields, productIDs []int64) (int64, error) {
	if err := s.validate(fields); err != nil {
		return 0, err
	}
	id, err := s.repo.CreateBase(ctx, ownerID, public)
	if err != nil {
		return 0, err
	}
	draft := Draft{ContainerID: id, Fields: fields, ProductIDs: revision.DedupeIDs(productIDs)}
	if err := s.repo.UpsertDraft(ctx, draft); err != nil {
		return 0, err
	}
	return id, nil
}

// StageUpdate replaces the container's pending update wholesale.
func (s *Service) StageUpdate(ctx context.Context, id int64, fields Fields, productIDs []int64) error {
	if err := s.validate(fields); err != nil {
		return err
	}
	base, err := s.repo.GetBase(ctx, id)
	if err != nil {
		return err
	}
	if base.DeletedAt != nil {
		return revision.ErrNotFound
	}
	draft := Draft{ContainerID: id, Fields: fields, ProductIDs: revision.DedupeIDs(productIDs)}
	return s.repo.UpsertDraft(ctx, draft)
}

// GetDraft returns the staged update with its product ids resolved against
// current product revisions for display, or nil when none exists.
func (s *Service) GetDraft(ctx context.Context, id int64) (*DraftView, error) {
	if _, err := s.repo.GetBase(ctx, id); err != nil {
		return nil, err
	}
	draft, err := s.repo.GetDraft(ctx, id)
	if err != nil || draft == nil {
		return nil, err
	}
	refs, err := s.resolveRefs(ctx, draft.ProductIDs)
	if err != nil {
		return nil, err
	}
	return &DraftView{Draft: *draft, ProductRefs: refs}, nil
}

// DiscardDraft drops the staged update without publishing.
func (s *Service) DiscardDraft(ctx context.Context, id int64) error {
	if _, err := s.repo.GetBase(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteDraft(ctx, id)
}

// Approve publishes the staged update as the next revision. The draft's
// product ids are bound to the product revisions current at this moment, not
// at staging time.
func (s *Service) Approve(ctx context.Context, id int64) (Revision, error) {
	draft, err := s.repo.GetDraft(ctx, id)
	if err != nil {
		return Revision{}, err
	}
	if draft == nil {
		if _, berr := s.repo.GetBase(ctx, id); berr != nil {
			return Revision{}, berr
		}
		return Revision{}, revision.ErrNoDraft
	}
	rev, err := s.publishResolved(ctx, id, draft.Fields, draft.ProductIDs)
	if rev.Revision > 0 {
		s.record(ctx, "catalog.container.approve", id, rev.Revision)
	}
	return rev, err
}

// PublishDirect publishes the given fields and product set as the next
// revision, bypassing staging.
func (s *Service) PublishDirect(ctx context.Context, id int64, fields Fields, productIDs []int64) (Revision, error) {
	if err := s.validate(fields); err != nil {
		return Revision{}, err
	}
	rev, err := s.publishResolved(ctx, id, fields, productIDs)
	if rev.Revision > 0 {
		s.record(ctx, "catalog.container.publish", id, rev.Revision)
	}
	return rev, err
}

// Republish creates revision expectedRevision+1 carrying the current field
// values and an explicit, already-bound reference set. Fails with
// ErrRevisionConflict when the container moved past expectedRevision in the
// meantime. Used by the propagation engine and the consistency sweep.
func (s *Service) Republish(ctx context.Context, id int64, expectedRevision int, refs []revision.Ref) (Revision, error) {
	var out Revision
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		base, err := tx.LockBase(ctx, id)
		if err != nil {
			return err
		}
		if base.DeletedAt != nil || base.CurrentRevision == nil {
			return revision.ErrNotFound
		}
		if *base.CurrentRevision != expectedRevision {
			return revision.ErrRevisionConflict
		}
		prev, err := tx.GetRevision(ctx, id, expectedRevision)
		if err != nil {
			return err
		}
		now := time.Now()
		out = Revision{
			ContainerID: id,
			Revision:    expectedRevision + 1,
			Fields:      prev.Fields,
			ProductRefs: refs,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertRevision(ctx, out); err != nil {
			return err
		}
		if err := tx.SetCurrentRevision(ctx, id, out.Revision); err != nil {
			return err
		}
		return tx.DeleteDraft(ctx, id)
	})
	if err != nil {
		return Revision{}, err
	}
	s.invalidate(ctx, id)
	return out, s.propagated(ctx, id, out.Revision)
}

// GetCurrent resolves the revision the base pointer designates.
func (s *Service) GetCurrent(ctx context.Context, id int64) (Revision, error) {
	if s.cache == nil {
		return s.repo.GetCurrent(ctx, id)
	}
	return cache.GetJSON(ctx, s.cache, cache.Key("container", id), func(ctx context.Context) (Revision, error) {
		return s.repo.GetCurrent(ctx, id)
	})
}

// GetRevision fetches one historical snapshot, child references included.
func (s *Service) GetRevision(ctx context.Context, id int64, rev int) (Revision, error) {
	return s.repo.GetRevision(ctx, id, rev)
}

// GetBase returns the base record.
func (s *Service) GetBase(ctx context.Context, id int64) (Base, error) {
	return s.repo.GetBase(ctx, id)
}

// List returns current revisions of non-deleted containers.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Revision, error) {
	return s.repo.List(ctx, limit, offset)
}

// CurrentRef resolves the container's current (id, revision) pair for
// point-of-sale binding.
func (s *Service) CurrentRef(ctx context.Context, id int64) (revision.Ref, error) {
	base, err := s.repo.GetBase(ctx, id)
	if err != nil {
		return revision.Ref{}, err
	}
	if base.DeletedAt != nil || base.CurrentRevision == nil {
		return revision.Ref{}, fmt.Errorf("container %d has no published revision: %w", id, revision.ErrNotFound)
	}
	return revision.Ref{ID: id, Revision: *base.CurrentRevision}, nil
}

// FindByProductRevision exposes the parent lookup to the propagation engine.
func (s *Service) FindByProductRevision(ctx context.Context, productID int64, rev int) ([]int64, error) {
	return s.repo.FindByProductRevision(ctx, productID, rev)
}

// FindByProduct lists containers currently referencing the product at any
// revision, for deletion propagation.
func (s *Service) FindByProduct(ctx context.Context, productID int64) ([]int64, error) {
	return s.repo.FindByProduct(ctx, productID)
}

// StaleProductRefs exposes stale reference pairs to the consistency sweep.
func (s *Service) StaleProductRefs(ctx context.Context) ([]revision.Ref, error) {
	return s.repo.StaleProductRefs(ctx)
}

// DeletedProductIDs exposes soft-deleted products still referenced by
// current container revisions to the consistency sweep.
func (s *Service) DeletedProductIDs(ctx context.Context) ([]int64, error) {
	return s.repo.DeletedProductIDs(ctx)
}

// SoftDelete retires the container and propagates the removal to points of
// sale referencing it at their current revision.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.record(ctx, "catalog.container.delete", id, 0)
	if s.propagation != nil {
		if err := s.propagation.ContainerDeleted(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// publishResolved binds productIDs to current product revisions and then
// runs the atomic publish.
func (s *Service) publishResolved(ctx context.Context, id int64, fields Fields, productIDs []int64) (Revision, error) {
	refs, err := s.resolveRefs(ctx, productIDs)
	if err != nil {
		return Revision{}, err
	}
	var out Revision
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		base, err := tx.LockBase(ctx, id)
		if err != nil {
			return err
		}
		if base.DeletedAt != nil {
			return revision.ErrNotFound
		}
		now := time.Now()
		out = Revision{
			ContainerID: id,
			Revision:    revision.Next(base.CurrentRevision),
			Fields:      fields,
			ProductRefs: refs,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertRevision(ctx, out); err != nil {
			return err
		}
		if err := tx.SetCurrentRevision(ctx, id, out.Revision); err != nil {
			return err
		}
		return tx.DeleteDraft(ctx, id)
	})
	if err != nil {
		return Revision{}, err
	}
	s.invalidate(ctx, id)
	return out, s.propagated(ctx, id, out.Revision)
}

func (s *Service) propagated(ctx context.Context, id int64, published int) error {
	if published <= 1 || s.propagation == nil {
		return nil
	}
	if err := s.propagation.ContainerPublished(ctx, id, published-1); err != nil {
		s.logger.Warn("container propagation incomplete",
			slog.Int64("container_id", id),
			slog.Int("revision", published),
			slog.Any("error", err))
		return err
	}
	return nil
}

func (s *Service) resolveRefs(ctx context.Context, productIDs []int64) ([]revision.Ref, error) {
	ids := revision.DedupeIDs(productIDs)
	refs := make([]revision.Ref, 0, len(ids))
	for _, pid := range ids {
		ref, err := s.products.CurrentRef(ctx, pid)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, cache.Key("container", id))
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, rev int) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if actor := shared.ActorFromContext(ctx); actor != nil {
		actorID = actor.ID
	}
	log := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "container",
		EntityID: fmt.Sprintf("%d", id),
	}
	if rev > 0 {
		log.Meta = map[string]any{"revision": rev}
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
