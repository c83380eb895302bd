package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gewis/sudosos-go/internal/shared"
)

// Repository persists users and organ memberships.
type Repository interface {
	Create(ctx context.Context, user User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	SoftDelete(ctx context.Context, id int64) error
	SetPasswordHash(ctx context.Context, id int64, hash []byte) error
	GetPasswordHash(ctx context.Context, id int64) ([]byte, error)
	AddMember(ctx context.Context, organID, userID int64) error
	RemoveMember(ctx context.Context, organID, userID int64) error
	IsMember(ctx context.Context, userID, organID int64) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Create(ctx context.Context, user User) (User, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, type, active, created_at) VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, created_at`,
		user.Email, user.Name, string(user.Type), user.Active,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *repository) Get(ctx context.Context, id int64) (User, error) {
	var u User
	var typ string
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, type, active, created_at, deleted_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &typ, &u.Active, &u.CreatedAt, &u.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.Type = Type(typ)
	return u, nil
}

func (r *repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET deleted_at = NOW(), active = FALSE WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetPasswordHash(ctx context.Context, id int64, hash []byte) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO user_credentials (user_id, password_hash, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = NOW()`,
		id, hash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) GetPasswordHash(ctx context.Context, id int64) ([]byte, error) {
	var hash []byte
	err := r.pool.QueryRow(ctx,
		`SELECT password_hash FROM user_credentials WHERE user_id = $1`,
		id,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	return hash, err
}

func (r *repository) AddMember(ctx context.Context, organID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO organ_members (organ_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		organID, userID,
	)
	return err
}

func (r *repository) RemoveMember(ctx context.Context, organID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM organ_members WHERE organ_id = $1 AND user_id = $2`,
		organID, userID,
	)
	return err
}

func (r *repository) IsMember(ctx context.Context, userID, organID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM organ_members m
		   JOIN users o ON o.id = m.organ_id AND o.deleted_at IS NULL
		   WHERE m.organ_id = $1 AND m.user_id = $2
		 )`,
		organID, userID,
	).Scan(&exists)
	return exists, err
}
