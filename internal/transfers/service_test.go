package transfers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestValidatePurposeDetailPairing(t *testing.T) {
	cases := []struct {
		name     string
		transfer Transfer
		ok       bool
	}{
		{
			"deposit credits a recipient",
			Transfer{AmountCents: 1000, Purpose: PurposeDeposit, Detail: DepositDetail{}, ToID: ptr(1)},
			true,
		},
		{
			"deposit without recipient",
			Transfer{AmountCents: 1000, Purpose: PurposeDeposit, Detail: DepositDetail{}},
			false,
		},
		{
			"invoice credits a recipient",
			Transfer{AmountCents: 2500, Purpose: PurposeInvoice, Detail: InvoiceDetail{Addressee: "GEWIS"}, ToID: ptr(1)},
			true,
		},
		{
			"payout debits a sender",
			Transfer{AmountCents: 2500, Purpose: PurposePayout, Detail: PayoutDetail{BankAccountIBAN: "NL20INGB0001234567"}, FromID: ptr(1)},
			true,
		},
		{
			"payout without sender",
			Transfer{AmountCents: 2500, Purpose: PurposePayout, Detail: PayoutDetail{}},
			false,
		},
		{
			"fine debits a sender",
			Transfer{AmountCents: 500, Purpose: PurposeFine, Detail: FineDetail{EventDate: time.Now()}, FromID: ptr(1)},
			true,
		},
		{
			"write-off debits a sender",
			Transfer{AmountCents: 300, Purpose: PurposeWriteOff, Detail: WriteOffDetail{}, FromID: ptr(1)},
			true,
		},
		{
			"detail must match purpose",
			Transfer{AmountCents: 1000, Purpose: PurposeDeposit, Detail: FineDetail{}, ToID: ptr(1)},
			false,
		},
		{
			"missing detail",
			Transfer{AmountCents: 1000, Purpose: PurposeDeposit, ToID: ptr(1)},
			false,
		},
		{
			"zero amount",
			Transfer{AmountCents: 0, Purpose: PurposeDeposit, Detail: DepositDetail{}, ToID: ptr(1)},
			false,
		},
		{
			"unknown purpose",
			Transfer{AmountCents: 100, Purpose: Purpose("REFUND"), Detail: DepositDetail{}, ToID: ptr(1)},
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.transfer.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestDetailForKnowsEveryPurpose(t *testing.T) {
	for _, p := range []Purpose{PurposeInvoice, PurposeDeposit, PurposePayout, PurposeFine, PurposeWriteOff} {
		detail, err := detailFor(p)
		require.NoError(t, err)
		require.Equal(t, p, detail.Purpose())
	}
	_, err := detailFor(Purpose("REFUND"))
	require.Error(t, err)
}

type memLedger struct {
	nextID int64
	rows   map[int64]Transfer
}

func (m *memLedger) Insert(_ context.Context, t Transfer) (Transfer, error) {
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	m.rows[t.ID] = t
	return t, nil
}

func (m *memLedger) Get(_ context.Context, id int64) (Transfer, error) {
	return m.rows[id], nil
}

func (m *memLedger) ListByUser(_ context.Context, userID int64, _, _ int) ([]Transfer, error) {
	var out []Transfer
	for _, t := range m.rows {
		if (t.FromID != nil && *t.FromID == userID) || (t.ToID != nil && *t.ToID == userID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestCreateAssignsReference(t *testing.T) {
	svc := NewService(&memLedger{rows: make(map[int64]Transfer)})
	ctx := context.Background()

	created, err := svc.Create(ctx, Transfer{
		AmountCents: 1000,
		Purpose:     PurposeDeposit,
		Detail:      DepositDetail{},
		ToID:        ptr(1),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.Reference)

	// A caller-supplied reference survives, for ledger imports.
	ref := uuid.New()
	imported, err := svc.Create(ctx, Transfer{
		Reference:   ref,
		AmountCents: 500,
		Purpose:     PurposeFine,
		Detail:      FineDetail{EventDate: time.Now()},
		FromID:      ptr(2),
	})
	require.NoError(t, err)
	require.Equal(t, ref, imported.Reference)
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "€ 12,50", FormatAmountNL(1250))
}
