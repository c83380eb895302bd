package products

import "time"

// Base carries a product's identity and its current-revision pointer. The
// pointer is nil until the first revision is published.
type Base struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	CurrentRevision *int       `json:"current_revision"`
	CreatedAt       time.Time  `json:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Fields holds the mutable product attributes captured per revision.
type Fields struct {
	Name        string `json:"name"`
	PriceCents  int64  `json:"price_cents"`
	VatPercent  int    `json:"vat_percent"`
	Category    string `json:"category"`
	AlcoholPerc int    `json:"alcohol_perc"`
}

// Revision is an immutable numbered snapshot of a product. Rows are never
// updated or deleted once written; only the base pointer moves forward.
type Revision struct {
	ProductID int64 `json:"product_id"`
	Revision  int   `json:"revision"`
	Fields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft is the single pending update a product may have staged. Staging
// replaces it wholesale; approval turns it into the next revision.
type Draft struct {
	ProductID int64 `json:"product_id"`
	Fields
	CreatedAt time.Time `json:"created_at"`
}
