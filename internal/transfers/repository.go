package transfers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gewis/sudosos-go/internal/shared"
)

// Repository persists ledger rows. Rows are append-only.
type Repository interface {
	Insert(ctx context.Context, t Transfer) (Transfer, error)
	Get(ctx context.Context, id int64) (Transfer, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Transfer, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Insert(ctx context.Context, t Transfer) (Transfer, error) {
	detailJSON, err := json.Marshal(t.Detail)
	if err != nil {
		return Transfer{}, err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO transfers (reference, from_id, to_id, amount_cents, purpose, detail, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING id, created_at`,
		t.Reference, t.FromID, t.ToID, t.AmountCents, string(t.Purpose), detailJSON, t.Description,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return Transfer{}, err
	}
	return t, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Transfer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, reference, from_id, to_id, amount_cents, purpose, detail, description, created_at
		 FROM transfers WHERE id = $1`,
		id,
	)
	t, err := scanTransfer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, shared.ErrNotFound
	}
	return t, err
}

func (r *repository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, reference, from_id, to_id, amount_cents, purpose, detail, description, created_at
		 FROM transfers WHERE from_id = $1 OR to_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	var purpose string
	var detailJSON []byte
	err := row.Scan(&t.ID, &t.Reference, &t.FromID, &t.ToID, &t.AmountCents, &purpose, &detailJSON, &t.Description, &t.CreatedAt)
	if err != nil {
		return Transfer{}, err
	}
	t.Purpose = Purpose(purpose)
	detail, err := detailFor(t.Purpose)
	if err != nil {
		return Transfer{}, err
	}
	if err := json.Unmarshal(detailJSON, detail); err != nil {
		return Transfer{}, err
	}
	t.Detail = detail
	return t, nil
}
