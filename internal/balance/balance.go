// Package balance validates and mutates an order's balance sheet.
//
// Every function takes the order by value and returns the updated copy, so a
// failed call leaves the caller's order untouched.
package balance

import (
	"fmt"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/models"
)

// Credit adds a depositor supplied asset to source, tip or gas.
func Credit(order models.Order, slot models.Slot, a asset.Asset) (models.Order, error) {
	switch slot {
	case models.SlotSource, models.SlotTip, models.SlotGas:
	case models.SlotSpent, models.SlotTarget:
		return order, fmt.Errorf("%w: %s cannot be credited directly", errs.ErrDisallowedSlot, slot)
	default:
		return order, fmt.Errorf("%w: unknown balance slot %q", errs.ErrInvalidInput, slot)
	}

	out := order.Clone()
	cur, err := out.Balance.Slot(slot)
	if err != nil {
		return order, err
	}
	if err := checkAsset(slot, *cur, a); err != nil {
		return order, err
	}
	sum, err := cur.Amount.Add(a.Amount)
	if err != nil {
		return order, fmt.Errorf("credit %s: %w", slot, err)
	}
	cur.Amount = sum
	return out, nil
}

// Debit removes an asset from any slot.
func Debit(order models.Order, slot models.Slot, a asset.Asset) (models.Order, error) {
	out := order.Clone()
	cur, err := out.Balance.Slot(slot)
	if err != nil {
		return order, err
	}
	if err := checkAsset(slot, *cur, a); err != nil {
		return order, err
	}
	rest, err := cur.Amount.Sub(a.Amount)
	if err != nil {
		return order, fmt.Errorf("%w: %s balance %s, requested %s", errs.ErrInsufficientBalance, slot, *cur, a)
	}
	cur.Amount = rest
	return out, nil
}

func checkAsset(slot models.Slot, cur, a asset.Asset) error {
	if a.Info != cur.Info {
		return fmt.Errorf("%w: %s holds %s, got %s", errs.ErrAssetKindMismatch, slot, cur.Info, a.Info)
	}
	if a.Amount.IsZero() {
		return fmt.Errorf("%w: %s", errs.ErrZeroAmount, slot)
	}
	return nil
}

// Replace swaps the asset held in source, target or tip for a different kind
// and returns the superseded asset so the caller can refund it.
//
// Replacing source resets spent to zero of the new kind. Replacing target
// resets spent and last_purchase.
func Replace(order models.Order, slot models.Slot, next asset.Asset) (models.Order, asset.Asset, error) {
	out := order.Clone()
	var old asset.Asset

	switch slot {
	case models.SlotSource:
		old = out.Balance.Source
		if next.Info == old.Info {
			return order, asset.Asset{}, fmt.Errorf("%w: source already %s", errs.ErrRedundantChange, old.Info)
		}
		out.Balance.Source = next
		out.Balance.Spent = asset.Zero(next.Info)
	case models.SlotTarget:
		old = out.Balance.Target
		if next.Info == old.Info {
			return order, asset.Asset{}, fmt.Errorf("%w: target already %s", errs.ErrRedundantChange, old.Info)
		}
		out.Balance.Target = next
		out.Balance.Spent.Amount = asset.ZeroAmount()
		out.Balance.LastPurchase = 0
	case models.SlotTip:
		old = out.Balance.Tip
		if next.Info == old.Info {
			return order, asset.Asset{}, fmt.Errorf("%w: tip already %s", errs.ErrRedundantChange, old.Info)
		}
		out.Balance.Tip = next
	default:
		return order, asset.Asset{}, fmt.Errorf("%w: %s cannot be replaced", errs.ErrDisallowedSlot, slot)
	}
	return out, old, nil
}

// DebitPurchase moves one tranche from source to spent, charges the tip cost
// and stamps the purchase time.
func DebitPurchase(order models.Order, tipCost asset.Asset, now uint64) (models.Order, error) {
	out := order.Clone()
	b := &out.Balance
	tranche := out.TrancheAmount

	if tranche.Info != b.Source.Info {
		return order, fmt.Errorf("%w: tranche %s, source %s", errs.ErrAssetKindMismatch, tranche.Info, b.Source.Info)
	}
	if tipCost.Info != b.Tip.Info {
		return order, fmt.Errorf("%w: tip cost %s, tip %s", errs.ErrAssetKindMismatch, tipCost.Info, b.Tip.Info)
	}

	source, err := b.Source.Amount.Sub(tranche.Amount)
	if err != nil {
		return order, fmt.Errorf("%w: source %s, tranche %s", errs.ErrInsufficientBalance, b.Source, tranche)
	}
	spent, err := b.Spent.Amount.Add(tranche.Amount)
	if err != nil {
		return order, fmt.Errorf("add tranche to spent: %w", err)
	}
	tip, err := b.Tip.Amount.Sub(tipCost.Amount)
	if err != nil {
		return order, fmt.Errorf("%w: tip %s, cost %s", errs.ErrInsufficientTipBalance, b.Tip, tipCost)
	}

	b.Source.Amount = source
	b.Spent = asset.New(b.Source.Info, spent)
	b.Tip.Amount = tip
	b.LastPurchase = now
	return out, nil
}

// CreditTarget adds a swap output to the target slot. Zero outputs are
// accepted; the router decides what a hop returns.
func CreditTarget(order models.Order, received asset.Asset) (models.Order, error) {
	out := order.Clone()
	if received.Info != out.Balance.Target.Info {
		return order, fmt.Errorf("%w: target %s, received %s", errs.ErrAssetKindMismatch, out.Balance.Target.Info, received.Info)
	}
	sum, err := out.Balance.Target.Amount.Add(received.Amount)
	if err != nil {
		return order, fmt.Errorf("credit target: %w", err)
	}
	out.Balance.Target.Amount = sum
	return out, nil
}
