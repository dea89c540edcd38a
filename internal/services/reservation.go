package services

import (
	"context"
	"fmt"

	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/store"
)

// acquirePurchase claims the single in-flight purchase slot. The slot must
// be released by reconciliation within the same host transaction.
func acquirePurchase(ctx context.Context, tx store.Tx, p models.PendingPurchase) error {
	cur, err := tx.PendingPurchase(ctx)
	if err != nil {
		return err
	}
	if cur != nil {
		return fmt.Errorf("%w: order %s holds the purchase slot", errs.ErrPurchaseInFlight, cur.OrderID)
	}
	return tx.SetPendingPurchase(ctx, p)
}

// heldPurchase returns the current reservation, failing when there is none.
func heldPurchase(ctx context.Context, tx store.Tx) (models.PendingPurchase, error) {
	cur, err := tx.PendingPurchase(ctx)
	if err != nil {
		return models.PendingPurchase{}, err
	}
	if cur == nil {
		return models.PendingPurchase{}, errs.ErrNoPendingPurchase
	}
	return *cur, nil
}

// releasePurchase frees the slot held for orderID.
func releasePurchase(ctx context.Context, tx store.Tx, orderID string) error {
	cur, err := heldPurchase(ctx, tx)
	if err != nil {
		return err
	}
	if cur.OrderID != orderID {
		return fmt.Errorf("%w: slot held by order %s, released for %s", errs.ErrNoPendingPurchase, cur.OrderID, orderID)
	}
	return tx.ClearPendingPurchase(ctx)
}
