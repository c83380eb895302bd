// Package propagation cascades catalog revision changes upward: a product
// republish reaches containers listing it, a container republish reaches
// points of sale. Each parent republish is its own atomic unit, executed
// sequentially; the cascade as a whole is best-effort and self-healing.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gewis/sudosos-go/internal/catalog/containers"
	"github.com/gewis/sudosos-go/internal/catalog/pointsofsale"
	"github.com/gewis/sudosos-go/internal/catalog/revision"
)

// ContainerTargets is the slice of the container service the engine drives.
type ContainerTargets interface {
	FindByProductRevision(ctx context.Context, productID int64, rev int) ([]int64, error)
	FindByProduct(ctx context.Context, productID int64) ([]int64, error)
	GetCurrent(ctx context.Context, id int64) (containers.Revision, error)
	Republish(ctx context.Context, id int64, expectedRevision int, refs []revision.Ref) (containers.Revision, error)
	StaleProductRefs(ctx context.Context) ([]revision.Ref, error)
	DeletedProductIDs(ctx context.Context) ([]int64, error)
}

// PointOfSaleTargets is the slice of the point-of-sale service the engine
// drives.
type PointOfSaleTargets interface {
	FindByContainerRevision(ctx context.Context, containerID int64, rev int) ([]int64, error)
	FindByContainer(ctx context.Context, containerID int64) ([]int64, error)
	GetCurrent(ctx context.Context, id int64) (pointsofsale.Revision, error)
	Republish(ctx context.Context, id int64, expectedRevision int, refs []revision.Ref) (pointsofsale.Revision, error)
	StaleContainerRefs(ctx context.Context) ([]revision.Ref, error)
	DeletedContainerIDs(ctx context.Context) ([]int64, error)
}

// Engine implements the propagation hooks of the product and container
// services. The reference hierarchy is strictly layered (product < container
// < point of sale), so no cycle detection is needed.
type Engine struct {
	containers ContainerTargets
	pos        PointOfSaleTargets
	logger     *slog.Logger
}

// NewEngine constructs the engine. Wire it back into the product and
// container services with their SetPropagation setters.
func NewEngine(containerTargets ContainerTargets, posTargets PointOfSaleTargets, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{containers: containerTargets, pos: posTargets, logger: logger}
}

// ProductPublished republishes every container whose current revision still
// references the product's previous revision.
func (e *Engine) ProductPublished(ctx context.Context, productID int64, previousRevision int) error {
	chain := uuid.New()
	_, err := e.substituteProduct(ctx, chain, productID, previousRevision)
	return err
}

// ProductDeleted republishes every referencing container with the product
// removed from its reference set.
func (e *Engine) ProductDeleted(ctx context.Context, productID int64) error {
	_, err := e.removeProduct(ctx, uuid.New(), productID)
	return err
}

// ContainerPublished republishes every point of sale whose current revision
// still references the container's previous revision.
func (e *Engine) ContainerPublished(ctx context.Context, containerID int64, previousRevision int) error {
	chain := uuid.New()
	_, err := e.substituteContainer(ctx, chain, containerID, previousRevision)
	return err
}

// ContainerDeleted republishes every referencing point of sale with the
// container removed from its reference set.
func (e *Engine) ContainerDeleted(ctx context.Context, containerID int64) error {
	_, err := e.removeContainer(ctx, uuid.New(), containerID)
	return err
}

// Sweep republishes parents left stale by interrupted cascades until the
// catalog converges. Returns the number of republished parents.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	const maxPasses = 10
	total := 0
	for pass := 0; pass < maxPasses; pass++ {
		n, err := e.sweepOnce(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, fmt.Errorf("catalog sweep did not converge after %d passes", maxPasses)
}

// StaleCount reports how many current parent revisions still hold an
// outdated or soft-deleted child reference, without touching them.
func (e *Engine) StaleCount(ctx context.Context) (int, error) {
	staleProducts, err := e.containers.StaleProductRefs(ctx)
	if err != nil {
		return 0, err
	}
	deletedProducts, err := e.containers.DeletedProductIDs(ctx)
	if err != nil {
		return 0, err
	}
	staleContainers, err := e.pos.StaleContainerRefs(ctx)
	if err != nil {
		return 0, err
	}
	deletedContainers, err := e.pos.DeletedContainerIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(staleProducts) + len(deletedProducts) + len(staleContainers) + len(deletedContainers), nil
}

func (e *Engine) sweepOnce(ctx context.Context) (int, error) {
	chain := uuid.New()
	count := 0

	staleProducts, err := e.containers.StaleProductRefs(ctx)
	if err != nil {
		return count, err
	}
	for _, ref := range staleProducts {
		n, err := e.substituteProduct(ctx, chain, ref.ID, ref.Revision)
		count += n
		if err != nil {
			return count, err
		}
	}

	// An interrupted deletion cascade leaves parents holding references to a
	// soft-deleted child; those get removed rather than substituted.
	deletedProducts, err := e.containers.DeletedProductIDs(ctx)
	if err != nil {
		return count, err
	}
	for _, id := range deletedProducts {
		n, err := e.removeProduct(ctx, chain, id)
		count += n
		if err != nil {
			return count, err
		}
	}

	staleContainers, err := e.pos.StaleContainerRefs(ctx)
	if err != nil {
		return count, err
	}
	for _, ref := range staleContainers {
		n, err := e.substituteContainer(ctx, chain, ref.ID, ref.Revision)
		count += n
		if err != nil {
			return count, err
		}
	}

	deletedContainers, err := e.pos.DeletedContainerIDs(ctx)
	if err != nil {
		return count, err
	}
	for _, id := range deletedContainers {
		n, err := e.removeContainer(ctx, chain, id)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

// substituteProduct republishes containers referencing (productID, prevRev)
// with the reference advanced by one. Returns the number of successful
// republishes.
func (e *Engine) substituteProduct(ctx context.Context, chain uuid.UUID, productID int64, prevRev int) (int, error) {
	ids, err := e.containers.FindByProductRevision(ctx, productID, prevRev)
	if err != nil {
		return 0, err
	}
	count := 0
	var failed []int64
	var errs []error
	for _, id := range revision.DedupeIDs(ids) {
		cur, err := e.containers.GetCurrent(ctx, id)
		if err != nil {
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("container %d: %w", id, err))
			continue
		}
		// The container may have moved on since the lookup; only its current
		// revision is ever a target.
		if !revision.Contains(cur.ProductRefs, revision.Ref{ID: productID, Revision: prevRev}) {
			continue
		}
		refs := revision.Swap(cur.ProductRefs, productID, prevRev, prevRev+1)
		if _, err := e.containers.Republish(ctx, id, cur.Revision, refs); err != nil {
			failed, errs = e.collectContainerFailure(failed, errs, id, err)
			continue
		}
		count++
	}
	e.logChain(chain, "product publish", productID, len(ids), len(failed))
	return count, propagationResult("product", productID, failed, errs)
}

func (e *Engine) substituteContainer(ctx context.Context, chain uuid.UUID, containerID int64, prevRev int) (int, error) {
	ids, err := e.pos.FindByContainerRevision(ctx, containerID, prevRev)
	if err != nil {
		return 0, err
	}
	count := 0
	var failed []int64
	var errs []error
	for _, id := range revision.DedupeIDs(ids) {
		cur, err := e.pos.GetCurrent(ctx, id)
		if err != nil {
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("point of sale %d: %w", id, err))
			continue
		}
		if !revision.Contains(cur.ContainerRefs, revision.Ref{ID: containerID, Revision: prevRev}) {
			continue
		}
		refs := revision.Swap(cur.ContainerRefs, containerID, prevRev, prevRev+1)
		if _, err := e.pos.Republish(ctx, id, cur.Revision, refs); err != nil {
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("point of sale %d: %w", id, err))
			continue
		}
		count++
	}
	e.logChain(chain, "container publish", containerID, len(ids), len(failed))
	return count, propagationResult("container", containerID, failed, errs)
}

// removeProduct republishes every container still referencing the product
// with the product dropped from its reference set. Returns the number of
// successful republishes.
func (e *Engine) removeProduct(ctx context.Context, chain uuid.UUID, productID int64) (int, error) {
	ids, err := e.containers.FindByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	count := 0
	var failed []int64
	var errs []error
	for _, id := range revision.DedupeIDs(ids) {
		cur, err := e.containers.GetCurrent(ctx, id)
		if err != nil {
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("container %d: %w", id, err))
			continue
		}
		refs := revision.Remove(cur.ProductRefs, productID)
		if _, err := e.containers.Republish(ctx, id, cur.Revision, refs); err != nil {
			failed, errs = e.collectContainerFailure(failed, errs, id, err)
			continue
		}
		count++
	}
	e.logChain(chain, "product delete", productID, len(ids), len(failed))
	return count, propagationResult("product", productID, failed, errs)
}

func (e *Engine) removeContainer(ctx context.Context, chain uuid.UUID, containerID int64) (int, error) {
	ids, err := e.pos.FindByContainer(ctx, containerID)
	if err != nil {
		return 0, err
	}
	count := 0
	var failed []int64
	var errs []error
	for _, id := range revision.DedupeIDs(ids) {
		cur, err := e.pos.GetCurrent(ctx, id)
		if err != nil {
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("point of sale %d: %w", id, err))
			continue
		}
		refs := revision.Remove(cur.ContainerRefs, containerID)
		if _, err := e.pos.Republish(ctx, id, cur.Revision, refs); err != nil {
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("point of sale %d: %w", id, err))
			continue
		}
		count++
	}
	e.logChain(chain, "container delete", containerID, len(ids), len(failed))
	return count, propagationResult("container", containerID, failed, errs)
}

// collectContainerFailure separates a container's own republish failure from
// a deeper cascade failure: in the latter case the container revision
// committed and only its parents are stale.
func (e *Engine) collectContainerFailure(failed []int64, errs []error, id int64, err error) ([]int64, []error) {
	var perr *revision.PropagationError
	if errors.As(err, &perr) {
		return failed, append(errs, err)
	}
	return append(failed, id), append(errs, fmt.Errorf("container %d: %w", id, err))
}

func propagationResult(entity string, childID int64, failed []int64, errs []error) error {
	if len(failed) == 0 && len(errs) == 0 {
		return nil
	}
	return &revision.PropagationError{Entity: entity, ChildID: childID, Failed: failed, Errs: errs}
}

func (e *Engine) logChain(chain uuid.UUID, cause string, childID int64, targets, failed int) {
	if targets == 0 {
		return
	}
	e.logger.Info("catalog propagation pass",
		slog.String("chain", chain.String()),
		slog.String("cause", cause),
		slog.Int64("child_id", childID),
		slog.Int("targets", targets),
		slog.Int("failed", failed))
}
