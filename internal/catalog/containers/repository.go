package containers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gewis/sudosos-go/internal/catalog/revision"
	"github.com/gewis/sudosos-go/internal/platform/db"
)

// Repository persists container bases, revisions, product references and
// drafts.
type Repository interface {
	CreateBase(ctx context.Context, ownerID int64, public bool) (int64, error)
	GetBase(ctx context.Context, id int64) (Base, error)
	GetCurrent(ctx context.Context, id int64) (Revision, error)
	GetRevision(ctx context.Context, id int64, rev int) (Revision, error)
	List(ctx context.Context, limit, offset int) ([]Revision, error)
	GetDraft(ctx context.Context, id int64) (*Draft, error)
	UpsertDraft(ctx context.Context, draft Draft) error
	DeleteDraft(ctx context.Context, id int64) error
	SoftDelete(ctx context.Context, id int64) error
	// FindByProductRevision returns ids of containers whose current revision
	// references the exact (product, revision) pair. Stale container
	// revisions never match; soft-deleted containers and containers of
	// soft-deleted owners are excluded.
	FindByProductRevision(ctx context.Context, productID int64, rev int) ([]int64, error)
	// FindByProduct is the deletion-propagation variant: any revision of the
	// product counts, as the reference is removed rather than substituted.
	FindByProduct(ctx context.Context, productID int64) ([]int64, error)
	// StaleProductRefs lists distinct (product, revision) pairs referenced by
	// current container revisions where the product has moved on. Consumed by
	// the consistency sweep.
	StaleProductRefs(ctx context.Context) ([]revision.Ref, error)
	// DeletedProductIDs lists soft-deleted products still referenced by
	// current container revisions, so the sweep can finish an interrupted
	// deletion cascade.
	DeletedProductIDs(ctx context.Context) ([]int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository groups the operations of one atomic publish.
type TxRepository interface {
	LockBase(ctx context.Context, id int64) (Base, error)
	GetRevision(ctx context.Context, id int64, rev int) (Revision, error)
	InsertRevision(ctx context.Context, rev Revision) error
	SetCurrentRevision(ctx context.Context, id int64, rev int) error
	DeleteDraft(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) CreateBase(ctx context.Context, ownerID int64, public bool) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO containers (owner_id, public, created_at) VALUES ($1, $2, NOW()) RETURNING id`,
		ownerID, public,
	).Scan(&id)
	return id, err
}

func (r *repository) GetBase(ctx context.Context, id int64) (Base, error) {
	var b Base
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, public, current_revision, created_at, deleted_at FROM containers WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.OwnerID, &b.Public, &b.CurrentRevision, &b.CreatedAt, &b.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Base{}, revision.ErrNotFound
	}
	return b, err
}

func (r *repository) GetCurrent(ctx context.Context, id int64) (Revision, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT r.container_id, r.revision, r.name, r.created_at, r.updated_at
		 FROM container_revisions r
		 JOIN containers c ON c.id = r.container_id AND c.current_revision = r.revision
		 WHERE c.id = $1 AND c.deleted_at IS NULL`,
		id,
	)
	return r.scanWithRefs(ctx, r.pool, row)
}

func (r *repository) GetRevision(ctx context.Context, id int64, rev int) (Revision, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT container_id, revision, name, created_at, updated_at FROM container_revisions WHERE container_id = $1 AND revision = $2`,
		id, rev,
	)
	return r.scanWithRefs(ctx, r.pool, row)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *repository) scanWithRefs(ctx context.Context, q querier, row pgx.Row) (Revision, error) {
	var rev Revision
	err := row.Scan(&rev.ContainerID, &rev.Revision, &rev.Name, &rev.CreatedAt, &rev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Revision{}, revision.ErrNotFound
	}
	if err != nil {
		return Revision{}, err
	}
	refs, err := loadRefs(ctx, q, rev.ContainerID, rev.Revision)
	if err != nil {
		return Revision{}, err
	}
	rev.ProductRefs = refs
	return rev, nil
}

func loadRefs(ctx context.Context, q querier, containerID int64, rev int) ([]revision.Ref, error) {
	rows, err := q.Query(ctx,
		`SELECT product_id, product_revision FROM container_revision_products
		 WHERE container_id = $1 AND container_revision = $2 ORDER BY product_id`,
		containerID, rev,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []revision.Ref
	for rows.Next() {
		var ref revision.Ref
		if err := rows.Scan(&ref.ID, &ref.Revision); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT r.container_id, r.revision, r.name, r.created_at, r.updated_at
		 FROM container_revisions r
		 JOIN containers c ON c.id = r.container_id AND c.current_revision = r.revision
		 WHERE c.deleted_at IS NULL
		 ORDER BY c.id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.ContainerID, &rev.Revision, &rev.Name, &rev.CreatedAt, &rev.UpdatedAt); err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range revs {
		refs, err := loadRefs(ctx, r.pool, revs[i].ContainerID, revs[i].Revision)
		if err != nil {
			return nil, err
		}
		revs[i].ProductRefs = refs
	}
	return revs, nil
}

func (r *repository) GetDraft(ctx context.Context, id int64) (*Draft, error) {
	var d Draft
	err := r.pool.QueryRow(ctx,
		`SELECT container_id, name, product_ids, created_at FROM container_drafts WHERE container_id = $1`,
		id,
	).Scan(&d.ContainerID, &d.Name, &d.ProductIDs, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repository) UpsertDraft(ctx context.Context, draft Draft) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO container_drafts (container_id, name, product_ids, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (container_id) DO UPDATE SET
		   name = EXCLUDED.name, product_ids = EXCLUDED.product_ids, created_at = NOW()`,
		draft.ContainerID, draft.Name, draft.ProductIDs,
	)
	return err
}

func (r *repository) DeleteDraft(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM container_drafts WHERE container_id = $1`, id)
	return err
}

func (r *repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE containers SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return revision.ErrNotFound
	}
	return nil
}

func (r *repository) FindByProductRevision(ctx context.Context, productID int64, rev int) ([]int64, error) {
	return r.findParents(ctx,
		`SELECT DISTINCT c.id
		 FROM containers c
		 JOIN container_revision_products crp
		   ON crp.container_id = c.id AND crp.container_revision = c.current_revision
		 JOIN users u ON u.id = c.owner_id AND u.deleted_at IS NULL
		 WHERE crp.product_id = $1 AND crp.product_revision = $2 AND c.deleted_at IS NULL
		 ORDER BY c.id`,
		productID, rev)
}

func (r *repository) FindByProduct(ctx context.Context, productID int64) ([]int64, error) {
	return r.findParents(ctx,
		`SELECT DISTINCT c.id
		 FROM containers c
		 JOIN container_revision_products crp
		   ON crp.container_id = c.id AND crp.container_revision = c.current_revision
		 JOIN users u ON u.id = c.owner_id AND u.deleted_at IS NULL
		 WHERE crp.product_id = $1 AND c.deleted_at IS NULL
		 ORDER BY c.id`,
		productID)
}

func (r *repository) findParents(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) StaleProductRefs(ctx context.Context) ([]revision.Ref, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT crp.product_id, crp.product_revision
		 FROM container_revision_products crp
		 JOIN containers c ON c.id = crp.container_id AND c.current_revision = crp.container_revision
		 JOIN products p ON p.id = crp.product_id
		 WHERE c.deleted_at IS NULL AND p.deleted_at IS NULL
		   AND crp.product_revision < p.current_revision
		 ORDER BY crp.product_id, crp.product_revision`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []revision.Ref
	for rows.Next() {
		var ref revision.Ref
		if err := rows.Scan(&ref.ID, &ref.Revision); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeletedProductIDs lists soft-deleted products still referenced by a live
// container's current revision, left behind by an interrupted deletion
// cascade.
func (r *repository) DeletedProductIDs(ctx context.Context) ([]int64, error) {
	return r.findParents(ctx,
		`SELECT DISTINCT crp.product_id
		 FROM container_revision_products crp
		 JOIN containers c ON c.id = crp.container_id AND c.current_revision = crp.container_revision
		 JOIN products p ON p.id = crp.product_id
		 WHERE c.deleted_at IS NULL AND p.deleted_at IS NOT NULL
		 ORDER BY crp.product_id`)
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, parent: r})
	})
}

type txRepo struct {
	tx     pgx.Tx
	parent *repository
}

func (t *txRepo) LockBase(ctx context.Context, id int64) (Base, error) {
	var b Base
	err := t.tx.QueryRow(ctx,
		`SELECT id, owner_id, public, current_revision, created_at, deleted_at FROM containers WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&b.ID, &b.OwnerID, &b.Public, &b.CurrentRevision, &b.CreatedAt, &b.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Base{}, revision.ErrNotFound
	}
	return b, err
}

func (t *txRepo) GetRevision(ctx context.Context, id int64, rev int) (Revision, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT container_id, revision, name, created_at, updated_at FROM container_revisions WHERE container_id = $1 AND revision = $2`,
		id, rev,
	)
	return t.parent.scanWithRefs(ctx, t.tx, row)
}

func (t *txRepo) InsertRevision(ctx context.Context, rev Revision) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO container_revisions (container_id, revision, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rev.ContainerID, rev.Revision, rev.Name, rev.CreatedAt, rev.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return revision.ErrRevisionConflict
	}
	if err != nil {
		return err
	}
	for _, ref := range rev.ProductRefs {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO container_revision_products (container_id, container_revision, product_id, product_revision)
			 VALUES ($1, $2, $3, $4)`,
			rev.ContainerID, rev.Revision, ref.ID, ref.Revision,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) SetCurrentRevision(ctx context.Context, id int64, rev int) error {
	_, err := t.tx.Exec(ctx, `UPDATE containers SET current_revision = $1 WHERE id = $2`, rev, id)
	return err
}

func (t *txRepo) DeleteDraft(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM container_drafts WHERE container_id = $1`, id)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
