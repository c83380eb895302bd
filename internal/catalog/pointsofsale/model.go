package pointsofsale

import (
	"time"

	"github.com/gewis/sudosos-go/internal/catalog/revision"
)

// Base carries a point of sale's identity and current-revision pointer.
type Base struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	CurrentRevision *int       `json:"current_revision"`
	CreatedAt       time.Time  `json:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Fields holds the mutable point-of-sale attributes captured per revision.
type Fields struct {
	Name              string `json:"name"`
	UseAuthentication bool   `json:"use_authentication"`
}

// Revision is an immutable numbered snapshot of a point of sale, including
// the exact container revisions it offered at publish time.
type Revision struct {
	PointOfSaleID int64 `json:"point_of_sale_id"`
	Revision      int   `json:"revision"`
	Fields
	ContainerRefs []revision.Ref `json:"container_refs"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Draft is the staged pending update, with container references as bare ids.
type Draft struct {
	PointOfSaleID int64 `json:"point_of_sale_id"`
	Fields
	ContainerIDs []int64   `json:"container_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

// DraftView resolves the draft's container ids for display only.
type DraftView struct {
	Draft
	ContainerRefs []revision.Ref `json:"container_refs"`
}
