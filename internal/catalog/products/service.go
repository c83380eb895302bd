package products

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gewis/sudosos-go/internal/catalog/cache"
	"github.com/gewis/sudosos-go/internal/catalog/revision"
	"github.com/gewis/sudosos-go/internal/shared"
)

// PropagationHook receives child-side events after a product publish or soft
// delete has committed. The hook runs outside the publish transaction; its
// failures never roll the product's own revision back.
type PropagationHook interface {
	ProductPublished(ctx context.Context, productID int64, previousRevision int) error
	ProductDeleted(ctx context.Context, productID int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the product draft/approve/publish lifecycle.
type Service struct {
	repo        Repository
	audit       AuditPort
	cache       *cache.Cache
	propagation PropagationHook
	logger      *slog.Logger
}

// NewService builds Service. audit and revCache may be nil.
func NewService(repo Repository, audit AuditPort, revCache *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: revCache, logger: logger}
}

// SetPropagation wires the propagation engine. Done after construction
// because the engine itself depends on the parent-family services.
func (s *Service) SetPropagation(hook PropagationHook) {
	s.propagation = hook
}

// CreateDraft creates an unpublished product base with a staged first draft.
func (s *Service) CreateDraft(ctx context.Context, ownerID int64, fields Fields) (int64, error) {
	if err := s.validate(fields); err != nil {
		return 0, err
	}
	id, err := s.repo.CreateBase(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if err := s.repo.UpsertDraft(ctx, Draft{ProductID: id, Fields: fields}); err != nil {
		return 0, err
	}
	return id, nil
}

// StageUpdate replaces the product's pending update wholesale.
func (s *Service) StageUpdate(ctx context.Context, id int64, fields Fields) error {
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
	return s.repo.UpsertDraft(ctx, Draft{ProductID: id, Fields: fields})
}

// GetDraft returns the staged update, or nil when none exists.
func (s *Service) GetDraft(ctx context.Context, id int64) (*Draft, error) {
	if _, err := s.repo.GetBase(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetDraft(ctx, id)
}

// DiscardDraft drops the staged update without publishing.
func (s *Service) DiscardDraft(ctx context.Context, id int64) error {
	if _, err := s.repo.GetBase(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteDraft(ctx, id)
}

// Approve publishes the staged update as the next revision. Returns
// ErrNoDraft when nothing is staged, including on a repeated approve.
func (s *Service) Approve(ctx context.Context, id int64) (Revision, error) {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return Revision{}, err
	}
	if draft == nil {
		return Revision{}, revision.ErrNoDraft
	}
	rev, err := s.publish(ctx, id, draft.Fields)
	if rev.Revision > 0 {
		s.record(ctx, "catalog.product.approve", id, rev.Revision)
	}
	return rev, err
}

// PublishDirect publishes the given fields as the next revision, bypassing
// staging. Any outstanding draft is discarded by the publish.
func (s *Service) PublishDirect(ctx context.Context, id int64, fields Fields) (Revision, error) {
	if err := s.validate(fields); err != nil {
		return Revision{}, err
	}
	rev, err := s.publish(ctx, id, fields)
	if rev.Revision > 0 {
		s.record(ctx, "catalog.product.publish", id, rev.Revision)
	}
	return rev, err
}

// GetCurrent resolves the revision the base pointer designates.
func (s *Service) GetCurrent(ctx context.Context, id int64) (Revision, error) {
	if s.cache == nil {
		return s.repo.GetCurrent(ctx, id)
	}
	return cache.GetJSON(ctx, s.cache, cache.Key("product", id), func(ctx context.Context) (Revision, error) {
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

// List returns current revisions of non-deleted products.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Revision, error) {
	return s.repo.List(ctx, limit, offset)
}

// CurrentRef resolves the product's current (id, revision) pair. Containers
// bind their child references through this at publish time.
func (s *Service) CurrentRef(ctx context.Context, id int64) (revision.Ref, error) {
	base, err := s.repo.GetBase(ctx, id)
	if err != nil {
		return revision.Ref{}, err
	}
	if base.DeletedAt != nil || base.CurrentRevision == nil {
		return revision.Ref{}, fmt.Errorf("product %d has no published revision: %w", id, revision.ErrNotFound)
	}
	return revision.Ref{ID: id, Revision: *base.CurrentRevision}, nil
}

// SoftDelete retires the product and propagates the removal to containers
// that reference it at their current revision.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.record(ctx, "catalog.product.delete", id, 0)
	if s.propagation != nil {
		if err := s.propagation.ProductDeleted(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// publish runs the atomic revision step: lock base, compute the next number,
// insert the snapshot, advance the pointer and drop the draft. Propagation
// happens after commit; a *revision.PropagationError therefore comes back
// together with the committed revision.
func (s *Service) publish(ctx context.Context, id int64, fields Fields) (Revision, error) {
	var out Revision
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		base, err := tx.LockBase(ctx, id)
		if err != nil {
			return err
		}
		if base.DeletedAt != nil {
			return revision.ErrNotFound
		}
		now := time.Now()
		out = Revision{
			ProductID: id,
			Revision:  revision.Next(base.CurrentRevision),
			Fields:    fields,
			CreatedAt: now,
			UpdatedAt: now,
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

	// Nothing can reference a revision that never existed.
	if out.Revision > 1 && s.propagation != nil {
		if perr := s.propagation.ProductPublished(ctx, id, out.Revision-1); perr != nil {
			s.logger.Warn("product propagation incomplete",
				slog.Int64("product_id", id),
				slog.Int("revision", out.Revision),
				slog.Any("error", perr))
			return out, perr
		}
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, cache.Key("product", id))
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
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", id),
	}
	if rev > 0 {
		log.Meta = map[string]any{"revision": rev}
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
