// Package visibility classifies what a given actor may see of a catalog
// aggregate.
package visibility

import (
	"context"

	"github.com/gewis/sudosos-go/internal/shared"
)

// Access enumerates the visibility grades, strongest first.
type Access string

const (
	// AccessOwned means the actor owns the aggregate.
	AccessOwned Access = "owned"
	// AccessPublic means the aggregate is marked public.
	AccessPublic Access = "public"
	// AccessOrganisational means the actor is a member of the owning
	// organisational account.
	AccessOrganisational Access = "organisational"
	// AccessNone means the aggregate is invisible to the actor.
	AccessNone Access = "none"
)

// MembershipDirectory answers organisational membership questions. Provided
// by the users module.
type MembershipDirectory interface {
	IsMember(ctx context.Context, userID, organID int64) (bool, error)
}

// Resolver computes read visibility.
type Resolver struct {
	members MembershipDirectory
}

// NewResolver constructs Resolver.
func NewResolver(members MembershipDirectory) *Resolver {
	return &Resolver{members: members}
}

// Resolve classifies the actor's access to an aggregate owned by ownerID.
// A nil actor only ever sees public aggregates.
func (r *Resolver) Resolve(ctx context.Context, actor *shared.Actor, ownerID int64, public bool) (Access, error) {
	if actor != nil && actor.ID == ownerID {
		return AccessOwned, nil
	}
	if public {
		return AccessPublic, nil
	}
	if actor == nil {
		return AccessNone, nil
	}
	member, err := r.members.IsMember(ctx, actor.ID, ownerID)
	if err != nil {
		return AccessNone, err
	}
	if member {
		return AccessOrganisational, nil
	}
	return AccessNone, nil
}

// Readable reports whether the access grade grants read visibility.
func Readable(a Access) bool {
	return a != AccessNone
}
