package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/models"
)

func testOrder(id, owner string) models.Order {
	usdt := asset.NativeInfo("usdt")
	return models.Order{
		ID:            id,
		Owner:         owner,
		Interval:      60,
		TrancheAmount: asset.New(usdt, asset.NewAmount(10)),
		Balance: models.Balance{
			Source: asset.New(usdt, asset.NewAmount(100)),
			Spent:  asset.Zero(usdt),
			Target: asset.Zero(asset.NativeInfo("uluna")),
			Tip:    asset.New(usdt, asset.NewAmount(5)),
			Gas:    asset.New(asset.NativeInfo("uluna"), asset.NewAmount(5)),
		},
	}
}

func TestMemoryUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return tx.SaveOrder(ctx, testOrder("1", "alice"))
	}))

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, "1")
		require.NoError(t, err)
		o.Balance.Source.Amount = asset.NewAmount(1)
		require.NoError(t, tx.SaveOrder(ctx, o))
		require.NoError(t, tx.SetPendingPurchase(ctx, models.PendingPurchase{OrderID: "1"}))
		_, err = tx.NextOrderSeq(ctx)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, "100", o.Balance.Source.Amount.String())

		p, err := tx.PendingPurchase(ctx)
		require.NoError(t, err)
		require.Nil(t, p)
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		seq, err := tx.NextOrderSeq(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), seq)
		return nil
	}))
}

func TestMemoryViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	err := s.View(ctx, func(tx Tx) error {
		return tx.SaveOrder(ctx, testOrder("1", "alice"))
	})
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestMemoryOrderNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		_, err := tx.Order(ctx, "42")
		require.ErrorIs(t, err, errs.ErrOrderNotFound)

		_, err = tx.Config(ctx)
		require.ErrorIs(t, err, errs.ErrConfigNotFound)
		return nil
	}))
}

func TestMemoryOrdersPaginatesNumerically(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		for _, id := range []string{"10", "2", "1", "11", "3"} {
			require.NoError(t, tx.SaveOrder(ctx, testOrder(id, "alice")))
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		page, err := tx.Orders(ctx, "", 3)
		require.NoError(t, err)
		require.Equal(t, []string{"1", "2", "3"}, ids(page))

		page, err = tx.Orders(ctx, "3", 10)
		require.NoError(t, err)
		require.Equal(t, []string{"10", "11"}, ids(page))
		return nil
	}))
}

func TestMemoryOwnerOrdersAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return tx.SaveOwnerOrders(ctx, "alice", []string{"1", "2"})
	}))
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		got, err := tx.OwnerOrders(ctx, "alice")
		require.NoError(t, err)
		got[0] = "mutated"

		again, err := tx.OwnerOrders(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, []string{"1", "2"}, again)
		return nil
	}))
}

func ids(orders []models.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func TestMemoryLedgerStateAndSequences(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	luna := asset.NativeInfo("uluna")

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		st, err := tx.LedgerState(ctx)
		require.NoError(t, err)
		require.Nil(t, st)
		return nil
	}))

	saved := ledger.State{Balances: []ledger.Holding{{Account: "alice", Asset: asset.New(luna, asset.NewAmount(5))}}}
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		require.NoError(t, tx.SetAccountSequence(ctx, "alice", 1))
		return tx.SaveLedgerState(ctx, saved)
	}))

	err := s.Update(ctx, func(tx Tx) error {
		require.NoError(t, tx.SetAccountSequence(ctx, "alice", 2))
		require.NoError(t, tx.SaveLedgerState(ctx, ledger.State{}))
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		st, err := tx.LedgerState(ctx)
		require.NoError(t, err)
		require.NotNil(t, st)
		require.Equal(t, saved, *st)

		seq, err := tx.AccountSequence(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, uint64(1), seq)
		seq, err = tx.AccountSequence(ctx, "bob")
		require.NoError(t, err)
		require.Zero(t, seq)
		return nil
	}))
}
