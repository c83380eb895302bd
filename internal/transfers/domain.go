package transfers

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Purpose tags what a ledger row settles. Exactly one detail variant belongs
// to each purpose; the pairing is enforced at construction instead of with
// nullable foreign keys to per-purpose tables.
type Purpose string

const (
	// PurposeInvoice settles an invoice sent to an external party.
	PurposeInvoice Purpose = "INVOICE"
	// PurposeDeposit credits a balance top-up.
	PurposeDeposit Purpose = "DEPOSIT"
	// PurposePayout returns balance to a bank account.
	PurposePayout Purpose = "PAYOUT"
	// PurposeFine debits an administrative fine.
	PurposeFine Purpose = "FINE"
	// PurposeWriteOff clears an uncollectable balance.
	PurposeWriteOff Purpose = "WRITE_OFF"
)

// Detail is the purpose-specific payload of a transfer.
type Detail interface {
	Purpose() Purpose
}

// InvoiceDetail describes the invoice a transfer settles.
type InvoiceDetail struct {
	Addressee string `json:"addressee"`
	Reference string `json:"reference"`
}

// Purpose implements Detail.
func (InvoiceDetail) Purpose() Purpose { return PurposeInvoice }

// DepositDetail marks a balance top-up.
type DepositDetail struct{}

// Purpose implements Detail.
func (DepositDetail) Purpose() Purpose { return PurposeDeposit }

// PayoutDetail carries the destination of a payout.
type PayoutDetail struct {
	BankAccountIBAN string `json:"bank_account_iban"`
}

// Purpose implements Detail.
func (PayoutDetail) Purpose() Purpose { return PurposePayout }

// FineDetail records when the fined obligation arose.
type FineDetail struct {
	EventDate time.Time `json:"event_date"`
}

// Purpose implements Detail.
func (FineDetail) Purpose() Purpose { return PurposeFine }

// WriteOffDetail marks an administrative write-off.
type WriteOffDetail struct{}

// Purpose implements Detail.
func (WriteOffDetail) Purpose() Purpose { return PurposeWriteOff }

// Transfer is one immutable ledger row. At least one of FromID/ToID is set
// depending on the purpose's direction.
type Transfer struct {
	ID          int64     `json:"id"`
	Reference   uuid.UUID `json:"reference"`
	FromID      *int64    `json:"from_id,omitempty"`
	ToID        *int64    `json:"to_id,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Purpose     Purpose   `json:"purpose"`
	Detail      Detail    `json:"detail"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the purpose/detail pairing and the direction rules.
func (t Transfer) Validate() error {
	if t.AmountCents <= 0 {
		return errors.New("transfer amount must be positive")
	}
	if t.Detail == nil {
		return errors.New("transfer detail is required")
	}
	if t.Detail.Purpose() != t.Purpose {
		return errors.New("transfer detail does not match purpose")
	}
	switch t.Purpose {
	case PurposeInvoice, PurposeDeposit:
		if t.ToID == nil {
			return errors.New("crediting transfer requires a recipient")
		}
	case PurposePayout, PurposeFine, PurposeWriteOff:
		if t.FromID == nil {
			return errors.New("debiting transfer requires a sender")
		}
	default:
		return errors.New("unknown transfer purpose")
	}
	return nil
}

// detailFor returns an empty detail value for decoding a stored row.
func detailFor(p Purpose) (Detail, error) {
	switch p {
	case PurposeInvoice:
		return &InvoiceDetail{}, nil
	case PurposeDeposit:
		return &DepositDetail{}, nil
	case PurposePayout:
		return &PayoutDetail{}, nil
	case PurposeFine:
		return &FineDetail{}, nil
	case PurposeWriteOff:
		return &WriteOffDetail{}, nil
	default:
		return nil, errors.New("unknown transfer purpose")
	}
}
