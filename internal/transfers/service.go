package transfers

import (
	"context"

	"github.com/google/uuid"
)

// Service records and reads ledger rows.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and appends a transfer. A fresh reference is assigned
// when the caller did not supply one (legacy imports carry their own).
func (s *Service) Create(ctx context.Context, t Transfer) (Transfer, error) {
	if err := t.Validate(); err != nil {
		return Transfer{}, err
	}
	if t.Reference == uuid.Nil {
		t.Reference = uuid.New()
	}
	return s.repo.Insert(ctx, t)
}

// Get returns one ledger row.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// ListByUser returns the rows a user participates in, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Transfer, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
