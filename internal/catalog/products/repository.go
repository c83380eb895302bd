package products

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gewis/sudosos-go/internal/catalog/revision"
	"github.com/gewis/sudosos-go/internal/platform/db"
)

// Repository persists product bases, revisions and drafts.
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
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations that must share one transaction:
// locking the base row, inserting the revision and advancing the pointer.
type TxRepository interface {
	LockBase(ctx context.Context, id int64) (Base, error)
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

const revisionColumns = `product_id, revision, name, price_cents, vat_percent, category, alcohol_perc, created_at, updated_at`

func scanRevision(row pgx.Row) (Revision, error) {
	var rev Revision
	err := row.Scan(&rev.ProductID, &rev.Revision, &rev.Name, &rev.PriceCents, &rev.VatPercent, &rev.Category, &rev.AlcoholPerc, &rev.CreatedAt, &rev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Revision{}, revision.ErrNotFound
	}
	return rev, err
}

func (r *repository) CreateBase(ctx context.Context, ownerID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (owner_id, created_at) VALUES ($1, NOW()) RETURNING id`,
		ownerID,
	).Scan(&id)
	return id, err
}

func (r *repository) GetBase(ctx context.Context, id int64) (Base, error) {
	var b Base
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, current_revision, created_at, deleted_at FROM products WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.OwnerID, &b.CurrentRevision, &b.CreatedAt, &b.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Base{}, revision.ErrNotFound
	}
	return b, err
}

func (r *repository) GetCurrent(ctx context.Context, id int64) (Revision, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+revisionColumns+` FROM product_revisions r
		 JOIN products p ON p.id = r.product_id AND p.current_revision = r.revision
		 WHERE p.id = $1 AND p.deleted_at IS NULL`,
		id,
	)
	return scanRevision(row)
}

func (r *repository) GetRevision(ctx context.Context, id int64, rev int) (Revision, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+revisionColumns+` FROM product_revisions WHERE product_id = $1 AND revision = $2`,
		id, rev,
	)
	return scanRevision(row)
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+revisionColumns+` FROM product_revisions r
		 JOIN products p ON p.id = r.product_id AND p.current_revision = r.revision
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
		if err := rows.Scan(&rev.ProductID, &rev.Revision, &rev.Name, &rev.PriceCents, &rev.VatPercent, &rev.Category, &rev.AlcoholPerc, &rev.CreatedAt, &rev.UpdatedAt); err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

func (r *repository) GetDraft(ctx context.Context, id int64) (*Draft, error) {
	var d Draft
	err := r.pool.QueryRow(ctx,
		`SELECT product_id, name, price_cents, vat_percent, category, alcohol_perc, created_at FROM product_drafts WHERE product_id = $1`,
		id,
	).Scan(&d.ProductID, &d.Name, &d.PriceCents, &d.VatPercent, &d.Category, &d.AlcoholPerc, &d.CreatedAt)
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
		`INSERT INTO product_drafts (product_id, name, price_cents, vat_percent, category, alcohol_perc, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (product_id) DO UPDATE SET
		   name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, vat_percent = EXCLUDED.vat_percent,
		   category = EXCLUDED.category, alcohol_perc = EXCLUDED.alcohol_perc, created_at = NOW()`,
		draft.ProductID, draft.Name, draft.PriceCents, draft.VatPercent, draft.Category, draft.AlcoholPerc,
	)
	return err
}

func (r *repository) DeleteDraft(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM product_drafts WHERE product_id = $1`, id)
	return err
}

func (r *repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
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

// WithTx runs fn inside a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

// LockBase reads the base row FOR UPDATE, serialising concurrent publishers.
func (t *txRepo) LockBase(ctx context.Context, id int64) (Base, error) {
	var b Base
	err := t.tx.QueryRow(ctx,
		`SELECT id, owner_id, current_revision, created_at, deleted_at FROM products WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&b.ID, &b.OwnerID, &b.CurrentRevision, &b.CreatedAt, &b.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Base{}, revision.ErrNotFound
	}
	return b, err
}

func (t *txRepo) InsertRevision(ctx context.Context, rev Revision) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO product_revisions (product_id, revision, name, price_cents, vat_percent, category, alcohol_perc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rev.ProductID, rev.Revision, rev.Name, rev.PriceCents, rev.VatPercent, rev.Category, rev.AlcoholPerc, rev.CreatedAt, rev.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return revision.ErrRevisionConflict
	}
	return err
}

func (t *txRepo) SetCurrentRevision(ctx context.Context, id int64, rev int) error {
	_, err := t.tx.Exec(ctx, `UPDATE products SET current_revision = $1 WHERE id = $2`, rev, id)
	return err
}

func (t *txRepo) DeleteDraft(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM product_drafts WHERE product_id = $1`, id)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
