package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gewis/sudosos-go/internal/shared"
)

type memRepo struct {
	nextID  int64
	users   map[int64]*User
	hashes  map[int64][]byte
	members map[[2]int64]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:   make(map[int64]*User),
		hashes:  make(map[int64][]byte),
		members: make(map[[2]int64]bool),
	}
}

func (r *memRepo) Create(_ context.Context, user User) (User, error) {
	r.nextID++
	user.ID = r.nextID
	user.Active = true
	user.CreatedAt = time.Now()
	r.users[user.ID] = &user
	return user, nil
}

func (r *memRepo) Get(_ context.Context, id int64) (User, error) {
	user, ok := r.users[id]
	if !ok || user.DeletedAt != nil {
		return User{}, shared.ErrNotFound
	}
	return *user, nil
}

func (r *memRepo) SoftDelete(_ context.Context, id int64) error {
	user, ok := r.users[id]
	if !ok || user.DeletedAt != nil {
		return shared.ErrNotFound
	}
	now := time.Now()
	user.DeletedAt = &now
	return nil
}

func (r *memRepo) SetPasswordHash(_ context.Context, id int64, hash []byte) error {
	r.hashes[id] = hash
	return nil
}

func (r *memRepo) GetPasswordHash(_ context.Context, id int64) ([]byte, error) {
	hash, ok := r.hashes[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return hash, nil
}

func (r *memRepo) AddMember(_ context.Context, organID, userID int64) error {
	r.members[[2]int64{userID, organID}] = true
	return nil
}

func (r *memRepo) RemoveMember(_ context.Context, organID, userID int64) error {
	delete(r.members, [2]int64{userID, organID})
	return nil
}

func (r *memRepo) IsMember(_ context.Context, userID, organID int64) (bool, error) {
	return r.members[[2]int64{userID, organID}], nil
}

func TestCreateValidatesNameAndType(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, User{Name: " ", Type: TypeMember})
	require.Error(t, err)

	_, err = svc.Create(ctx, User{Name: "Alice", Type: Type("ADMIN")})
	require.Error(t, err)

	user, err := svc.Create(ctx, User{Name: "Alice", Email: "alice@example.com", Type: TypeMember})
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.True(t, user.Active)
}

func TestPasswordRoundtrip(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	user, err := svc.Create(ctx, User{Name: "Alice", Type: TypeMember})
	require.NoError(t, err)

	require.Error(t, svc.SetPassword(ctx, user.ID, "short"))
	require.NoError(t, svc.SetPassword(ctx, user.ID, "correct horse battery"))

	require.NoError(t, svc.VerifyPassword(ctx, user.ID, "correct horse battery"))
	require.ErrorIs(t, svc.VerifyPassword(ctx, user.ID, "wrong"), shared.ErrInvalidCredentials)
}

func TestVerifyPasswordWithoutCredentials(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	user, err := svc.Create(ctx, User{Name: "Alice", Type: TypeMember})
	require.NoError(t, err)

	require.ErrorIs(t, svc.VerifyPassword(ctx, user.ID, "anything"), shared.ErrInvalidCredentials)
}

func TestMembershipRequiresOrgan(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	alice, err := svc.Create(ctx, User{Name: "Alice", Type: TypeMember})
	require.NoError(t, err)
	bob, err := svc.Create(ctx, User{Name: "Bob", Type: TypeMember})
	require.NoError(t, err)
	board, err := svc.Create(ctx, User{Name: "Board", Type: TypeOrgan})
	require.NoError(t, err)

	require.Error(t, svc.AddMember(ctx, bob.ID, alice.ID))

	require.NoError(t, svc.AddMember(ctx, board.ID, alice.ID))
	member, err := svc.IsMember(ctx, alice.ID, board.ID)
	require.NoError(t, err)
	require.True(t, member)

	require.NoError(t, svc.RemoveMember(ctx, board.ID, alice.ID))
	member, err = svc.IsMember(ctx, alice.ID, board.ID)
	require.NoError(t, err)
	require.False(t, member)
}

func TestSoftDeleteHidesAccount(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	user, err := svc.Create(ctx, User{Name: "Alice", Type: TypeMember})
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, user.ID))
	_, err = svc.Get(ctx, user.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, svc.SoftDelete(ctx, user.ID), shared.ErrNotFound)
}
