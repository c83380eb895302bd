package pointsofsale

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gewis/sudosos-go/internal/catalog/cache"
	"github.com/gewis/sudosos-go/internal/catalog/revision"
	"github.com/gewis/sudosos-go/internal/shared"
)

// ContainerDirectory resolves container ids to their current revisions at
// publish time.
type ContainerDirectory interface {
	CurrentRef(ctx context.Context, id int64) (revision.Ref, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the point-of-sale draft/approve/publish lifecycle.
// Points of sale sit at the top of the reference hierarchy, so publishing
// one never propagates further.
type Service struct {
	repo       Repository
	containers ContainerDirectory
	audit      AuditPort
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewService builds Service. audit and revCache may be nil.
func NewService(repo Repository, containers ContainerDirectory, audit AuditPort, revCache *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, containers: containers, audit: audit, cache: revCache, logger: logger}
}

// CreateDraft creates an unpublished point-of-sale base with a staged first
// draft.
func (s *Service) CreateDraft(ctx context.Context, ownerID int64, fields Fields, containerIDs []int64) (int64, error) {
	if err := s.validate(fields); err != nil {
		return 0, err
	}
	id, err := s.repo.CreateBase(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	draft := Draft{PointOfSaleID: id, Fields: fields, ContainerIDs: revision.DedupeIDs(containerIDs)}
	if err := s.repo.UpsertDraft(ctx, draft); err != nil {
		return 0, err
	}
	return id, nil
}

// StageUpdate replaces the pending update wholesale.
func (s *Service) StageUpdate(ctx context.Context, id int64, fields Fields, containerIDs []int64) error {
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
	draft := Draft{PointOfSaleID: id, Fields: fields, ContainerIDs: revision.DedupeIDs(containerIDs)}
	return s.repo.UpsertDraft(ctx, draft)
}

// GetDraft returns the staged update with display-only resolved refs, or nil.
func (s *Service) GetDraft(ctx context.Context, id int64) (*DraftView, error) {
	if _, err := s.repo.GetBase(ctx, id); err != nil {
		return nil, err
	}
	draft, err := s.repo.GetDraft(ctx, id)
	if err != nil || draft == nil {
		return nil, err
	}
	refs, err := s.resolveRefs(ctx, draft.ContainerIDs)
	if err != nil {
		return nil, err
	}
	return &DraftView{Draft: *draft, ContainerRefs: refs}, nil
}

// DiscardDraft drops the staged update without publishing.
func (s *Service) DiscardDraft(ctx context.Context, id int64) error {
	if _, err := s.repo.GetBase(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteDraft(ctx, id)
}

// Approve publishes the staged update as the next revision, binding
// container ids to the container revisions current at this moment.
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
	rev, err := s.publishResolved(ctx, id, draft.Fields, draft.ContainerIDs)
	if rev.Revision > 0 {
		s.record(ctx, "catalog.pos.approve", id, rev.Revision)
	}
	return rev, err
}

// PublishDirect publishes the given fields and container set as the next
// revision, bypassing staging.
func (s *Service) PublishDirect(ctx context.Context, id int64, fields Fields, containerIDs []int64) (Revision, error) {
	if err := s.validate(fields); err != nil {
		return Revision{}, err
	}
	rev, err := s.publishResolved(ctx, id, fields, containerIDs)
	if rev.Revision > 0 {
		s.record(ctx, "catalog.pos.publish", id, rev.Revision)
	}
	return rev, err
}

// Republish creates revision expectedRevision+1 with the current field
// values and an explicit reference set, for the propagation engine.
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
			PointOfSaleID: id,
			Revision:      expectedRevision + 1,
			Fields:        prev.Fields,
			ContainerRefs: refs,
			CreatedAt:     now,
			UpdatedAt:     now,
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
	return out, nil
}

// GetCurrent resolves the revision the base pointer designates.
func (s *Service) GetCurrent(ctx context.Context, id int64) (Revision, error) {
	if s.cache == nil {
		return s.repo.GetCurrent(ctx, id)
	}
	return cache.GetJSON(ctx, s.cache, cache.Key("pos", id), func(ctx context.Context) (Revision, error) {
		return s.repo.GetCurrent(ctx, id)
	})
}

// GetRevision fetches one historical snapshot.
func (s *Service) GetRevision(ctx context.Context, id int64, rev int) (Revision, error) {
	return s.repo.GetRevision(ctx, id, rev)
}

// GetBase returns the base record.
func (s *Service) GetBase(ctx context.Context, id int64) (Base, error) {
	return s.repo.GetBase(ctx, id)
}

// List returns current revisions of non-deleted points of sale.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Revision, error) {
	return s.repo.List(ctx, limit, offset)
}

// FindByContainerRevision exposes the parent lookup to the propagation
// engine.
func (s *Service) FindByContainerRevision(ctx context.Context, containerID int64, rev int) ([]int64, error) {
	return s.repo.FindByContainerRevision(ctx, containerID, rev)
}

// FindByContainer lists points of sale currently referencing the container
// at any revision, for deletion propagation.
func (s *Service) FindByContainer(ctx context.Context, containerID int64) ([]int64, error) {
	return s.repo.FindByContainer(ctx, containerID)
}

// StaleContainerRefs exposes stale reference pairs to the consistency sweep.
func (s *Service) StaleContainerRefs(ctx context.Context) ([]revision.Ref, error) {
	return s.repo.StaleContainerRefs(ctx)
}

// DeletedContainerIDs exposes soft-deleted containers still referenced by
// current point-of-sale revisions to the consistency sweep.
func (s *Service) DeletedContainerIDs(ctx context.Context) ([]int64, error) {
	return s.repo.DeletedContainerIDs(ctx)
}

// SoftDelete retires the point of sale. Nothing references points of sale,
// so no propagation follows.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.record(ctx, "catalog.pos.delete", id, 0)
	return nil
}

func (s *Service) publishResolved(ctx context.Context, id int64, fields Fields, containerIDs []int64) (Revision, error) {
	refs, err := s.resolveRefs(ctx, containerIDs)
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
			PointOfSaleID: id,
			Revision:      revision.Next(base.CurrentRevision),
			Fields:        fields,
			ContainerRefs: refs,
			CreatedAt:     now,
			UpdatedAt:     now,
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
	return out, nil
}

func (s *Service) resolveRefs(ctx context.Context, containerIDs []int64) ([]revision.Ref, error) {
	ids := revision.DedupeIDs(containerIDs)
	refs := make([]revision.Ref, 0, len(ids))
	for _, cid := range ids {
		ref, err := s.containers.CurrentRef(ctx, cid)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, cache.Key("pos", id))
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
		Entity:   "point_of_sale",
		EntityID: fmt.Sprintf("%d", id),
	}
	if rev > 0 {
		log.Meta = map[string]any{"revision": rev}
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
