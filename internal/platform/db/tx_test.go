package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type stubTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (s *stubTx) Commit(context.Context) error { s.committed = true; return nil }

func (s *stubTx) Rollback(context.Context) error {
	if !s.committed {
		s.rolledBack = true
	}
	return nil
}

type stubBeginner struct {
	tx   *stubTx
	opts pgx.TxOptions
	err  error
}

func (b *stubBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	pool := &stubBeginner{tx: &stubTx{}}

	err := WithTx(context.Background(), pool, func(pgx.Tx) error { return nil })
	require.NoError(t, err)

	require.Equal(t, pgx.RepeatableRead, pool.opts.IsoLevel)
	require.True(t, pool.tx.committed)
	require.False(t, pool.tx.rolledBack)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	pool := &stubBeginner{tx: &stubTx{}}
	boom := errors.New("draft gone")

	err := WithTx(context.Background(), pool, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)

	require.False(t, pool.tx.committed)
	require.True(t, pool.tx.rolledBack)
}

func TestWithTxBeginFailure(t *testing.T) {
	pool := &stubBeginner{err: errors.New("pool closed")}

	err := WithTx(context.Background(), pool, func(pgx.Tx) error {
		t.Fatal("fn must not run when begin fails")
		return nil
	})
	require.ErrorContains(t, err, "begin tx")
}
