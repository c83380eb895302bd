package pointsofsale

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gewis/sudosos-go/internal/catalog/revision"
	"github.com/gewis/sudosos-go/internal/platform/db"
)

// Repository persists point-of-sale bases, revisions, container references
// and drafts.
type Repository interface {
	CreateBase(ctx context.Context, ownerID int64) (int64, error)
	GetBase(ctx context.Context, id int64) (Base, error)
	GetCurrent(ctx context.Context, id int64) (Revision, error)
	GetRevision(ctx context.Context, id int64, rev int) (Revision, error)
	List(ctx context.Context, limit, offset int) ([]Revision, error)
	GetDraft(ctx context.Context, id int64) (*Draft, error)
	UpsertDraft(ctx context.Context, draft Draft) error
	DeleteDraft(ctx context.Context, id int64) error
	SoftDelete(ctx context.Context, id int64) error
	FindByContainerRevision(ctx context.Context, containerID int64, rev int) ([]int64, error)
	FindByContainer(ctx context.Context, containerID int64) ([]int64, error)
	StaleContainerRefs(ctx context.Context) ([]revision.Ref, error)
	DeletedContainerIDs(ctx context.Context) ([]int64, error)
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

func (r *repository) CreateBase(ctx context.Context, ownerID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO points_of_sale (owner_id, created_at) VALUES ($1, NOW()) RETURNING id`,
		ownerID,
	).Scan(&id)
	return id, err
}

func (r *repository) GetBase(ctx context.Context, id int64) (Base, error) {
	var b Base
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, current_revision, created_at, deleted_at FROM points_of_sale WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.OwnerID, &b.CurrentRevision, &b.CreatedAt, &b.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Base{}, revision.ErrNotFound
	}
	return b, err
}

func (r *repository) GetCurrent(ctx context.Context, id int64) (Revision, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT r.pos_id, r.revision, r.name, r.use_authentication, r.created_at, r.updated_at
		 FROM pos_revisions r
		 JOIN points_of_sale p ON p.id = r.pos_id AND p.current_revision = r.revision
		 WHERE p.id = $1 AND p.deleted_at IS NULL`,
		id,
	)
	return scanWithRefs(ctx, r.pool, row)
}

func (r *repository) GetRevision(ctx context.Context, id int64, rev int) (Revision, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT pos_id, revision, name, use_authentication, created_at, updated_at FROM pos_revisions WHERE pos_id = $1 AND revision = $2`,
		id, rev,
	)
	return scanWithRefs(ctx, r.pool, row)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanWithRefs(ctx context.Context, q querier, row pgx.Row) (Revision, error) {
	var rev Revision
	err := row.Scan(&rev.PointOfSaleID, &rev.Revision, &rev.Name, &rev.UseAuthentication, &rev.CreatedAt, &rev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Revision{}, revision.ErrNotFound
	}
	if err != nil {
		return Revision{}, err
	}
	refs, err := loadRefs(ctx, q, rev.PointOfSaleID, rev.Revision)
	if err != nil {
		return Revision{}, err
	}
	rev.ContainerRefs = refs
	return rev, nil
}

func loadRefs(ctx context.Context, q querier, posID int64, rev int) ([]revision.Ref, error) {
	rows, err := q.Query(ctx,
		`SELECT container_id, container_revision FROM pos_revision_containers
		 WHERE pos_id = $1 AND pos_revision = $2 ORDER BY container_id`,
		posID, rev,
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
		`SELECT r.pos_id, r.revision, r.name, r.use_authentication, r.created_at, r.updated_at
		 FROM pos_revisions r
		 JOIN points_of_sale p ON p.id = r.pos_id AND p.current_revision = r.revision
		 WHERE p.deleted_at IS NULL
		 ORDER BY p.id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.PointOfSaleID, &rev.Revision, &rev.Name, &rev.UseAuthentication, &rev.CreatedAt, &rev.UpdatedAt); err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range revs {
		refs, err := loadRefs(ctx, r.pool, revs[i].PointOfSaleID, revs[i].Revision)
		if err != nil {
			return nil, err
		}
		revs[i].ContainerRefs = refs
	}
	return revs, nil
}

func (r *repository) GetDraft(ctx context.Context, id int64) (*Draft, error) {
	var d Draft
	err := r.pool.QueryRow(ctx,
		`SELECT pos_id, name, use_authentication, container_ids, created_at FROM pos_drafts WHERE pos_id = $1`,
		id,
	).Scan(&d.PointOfSaleID, &d.Name, &d.UseAuthentication, &d.ContainerIDs, &d.CreatedAt)
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
		`INSERT INTO pos_drafts (pos_id, name, use_authentication, container_ids, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (pos_id) DO UPDATE SET
		   name = EXCLUDED.name, use_authentication = EXCLUDED.use_authentication,
		   container_ids = EXCLUDED.container_ids, created_at = NOW()`,
		draft.PointOfSaleID, draft.Name, draft.UseAuthentication, draft.ContainerIDs,
	)
	return err
}

func (r *repository) DeleteDraft(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pos_drafts WHERE pos_id = $1`, id)
	return err
}

func (r *repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE points_of_sale SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
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

func (r *repository) FindByContainerRevision(ctx context.Context, containerID int64, rev int) ([]int64, error) {
	return r.findParents(ctx,
		`SELECT DISTINCT p.id
		 FROM points_of_sale p
		 JOIN pos_revision_containers prc
		   ON prc.pos_id = p.id AND prc.pos_revision = p.current_revision
		 JOIN users u ON u.id = p.owner_id AND u.deleted_at IS NULL
		 WHERE prc.container_id = $1 AND prc.container_revision = $2 AND p.deleted_at IS NULL
		 ORDER BY p.id`,
		containerID, rev)
}

func (r *repository) FindByContainer(ctx context.Context, containerID int64) ([]int64, error) {
	return r.findParents(ctx,
		`SELECT DISTINCT p.id
		 FROM points_of_sale p
		 JOIN pos_revision_containers prc
		   ON prc.pos_id = p.id AND prc.pos_revision = p.current_revision
		 JOIN users u ON u.id = p.owner_id AND u.deleted_at IS NULL
		 WHERE prc.container_id = $1 AND p.deleted_at IS NULL
		 ORDER BY p.id`,
		containerID)
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

func (r *repository) StaleContainerRefs(ctx context.Context) ([]revision.Ref, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT prc.container_id, prc.container_revision
		 FROM pos_revision_containers prc
		 JOIN points_of_sale p ON p.id = prc.pos_id AND p.current_revision = prc.pos_revision
		 JOIN containers c ON c.id = prc.container_id
		 WHERE p.deleted_at IS NULL AND c.deleted_at IS NULL
		   AND prc.container_revision < c.current_revision
		 ORDER BY prc.container_id, prc.container_revision`,
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

// DeletedContainerIDs lists soft-deleted containers still referenced by a
// live point of sale's current revision, left behind by an interrupted
// deletion cascade.
func (r *repository) DeletedContainerIDs(ctx context.Context) ([]int64, error) {
	return r.findParents(ctx,
		`SELECT DISTINCT prc.container_id
		 FROM pos_revision_containers prc
		 JOIN points_of_sale p ON p.id = prc.pos_id AND p.current_revision = prc.pos_revision
		 JOIN containers c ON c.id = prc.container_id
		 WHERE p.deleted_at IS NULL AND c.deleted_at IS NOT NULL
		 ORDER BY prc.container_id`)
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) LockBase(ctx context.Context, id int64) (Base, error) {
	var b Base
	err := t.tx.QueryRow(ctx,
		`SELECT id, owner_id, current_revision, created_at, deleted_at FROM points_of_sale WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&b.ID, &b.OwnerID, &b.CurrentRevision, &b.CreatedAt, &b.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Base{}, revision.ErrNotFound
	}
	return b, err
}

func (t *txRepo) GetRevision(ctx context.Context, id int64, rev int) (Revision, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT pos_id, revision, name, use_authentication, created_at, updated_at FROM pos_revisions WHERE pos_id = $1 AND revision = $2`,
		id, rev,
	)
	return scanWithRefs(ctx, t.tx, row)
}

func (t *txRepo) InsertRevision(ctx context.Context, rev Revision) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO pos_revisions (pos_id, revision, name, use_authentication, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rev.PointOfSaleID, rev.Revision, rev.Name, rev.UseAuthentication, rev.CreatedAt, rev.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return revision.ErrRevisionConflict
	}
	if err != nil {
		return err
	}
	for _, ref := range rev.ContainerRefs {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO pos_revision_containers (pos_id, pos_revision, container_id, container_revision)
			 VALUES ($1, $2, $3, $4)`,
			rev.PointOfSaleID, rev.Revision, ref.ID, ref.Revision,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) SetCurrentRevision(ctx context.Context, id int64, rev int) error {
	_, err := t.tx.Exec(ctx, `UPDATE points_of_sale SET current_revision = $1 WHERE id = $2`, rev, id)
	return err
}

func (t *txRepo) DeleteDraft(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM pos_drafts WHERE pos_id = $1`, id)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
