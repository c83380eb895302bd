package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/gewis/sudosos-go/internal/shared"
)

// Service manages accounts and organ memberships.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, user User) (User, error) {
	if strings.TrimSpace(user.Name) == "" {
		return User{}, errors.New("user name is required")
	}
	if user.Type != TypeMember && user.Type != TypeOrgan {
		return User{}, errors.New("invalid user type")
	}
	return s.repo.Create(ctx, user)
}

// Get returns the account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// SoftDelete retires the account. Aggregates it owns stop being propagation
// targets; their revision history stays intact.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	return s.repo.SoftDelete(ctx, id)
}

// SetPassword stores a bcrypt hash of the password.
func (s *Service) SetPassword(ctx context.Context, id int64, password string) error {
	if len(password) < 8 {
		return errors.New("password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.SetPasswordHash(ctx, id, hash)
}

// VerifyPassword checks the password against the stored hash.
func (s *Service) VerifyPassword(ctx context.Context, id int64, password string) error {
	hash, err := s.repo.GetPasswordHash(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrInvalidCredentials
		}
		return err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return shared.ErrInvalidCredentials
	}
	return nil
}

// AddMember adds userID to the organ's membership.
func (s *Service) AddMember(ctx context.Context, organID, userID int64) error {
	organ, err := s.repo.Get(ctx, organID)
	if err != nil {
		return err
	}
	if organ.Type != TypeOrgan {
		return errors.New("memberships require an organ account")
	}
	return s.repo.AddMember(ctx, organID, userID)
}

// RemoveMember removes userID from the organ's membership.
func (s *Service) RemoveMember(ctx context.Context, organID, userID int64) error {
	return s.repo.RemoveMember(ctx, organID, userID)
}

// IsMember reports whether userID belongs to the organ. Satisfies the
// visibility resolver's MembershipDirectory.
func (s *Service) IsMember(ctx context.Context, userID, organID int64) (bool, error) {
	return s.repo.IsMember(ctx, userID, organID)
}
