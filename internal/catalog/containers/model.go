package containers

import (
	"time"

	"github.com/gewis/sudosos-go/internal/catalog/revision"
)

// Base carries a container's identity, ownership and current-revision
// pointer. Public containers are readable by any actor.
type Base struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	Public          bool       `json:"public"`
	CurrentRevision *int       `json:"current_revision"`
	CreatedAt       time.Time  `json:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Fields holds the mutable container attributes captured per revision.
type Fields struct {
	Name string `json:"name"`
}

// Revision is an immutable numbered snapshot of a container, including the
// exact product revisions it bundled at publish time.
type Revision struct {
	ContainerID int64 `json:"container_id"`
	Revision    int   `json:"revision"`
	Fields
	ProductRefs []revision.Ref `json:"product_refs"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Draft is the staged pending update. Product references are kept as bare
// ids; binding to concrete revisions happens at publish time.
type Draft struct {
	ContainerID int64 `json:"container_id"`
	Fields
	ProductIDs []int64   `json:"product_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// DraftView is a draft with its product ids resolved against current product
// revisions. The resolution is for display only; approval re-resolves.
type DraftView struct {
	Draft
	ProductRefs []revision.Ref `json:"product_refs"`
}
