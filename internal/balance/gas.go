package balance

import (
	"fmt"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/models"
)

// Delta is a signed amount.
type Delta struct {
	Amount   asset.Amount
	Negative bool
}

func (d Delta) String() string {
	if d.Negative && !d.Amount.IsZero() {
		return "-" + d.Amount.String()
	}
	return d.Amount.String()
}

// GasFeeInput carries what reconciliation observed around one purchase.
type GasFeeInput struct {
	Snapshot   asset.Amount
	Current    asset.Amount
	Tranche    asset.Asset
	TipCost    asset.Asset
	SwapOutput asset.Asset
	Gas        asset.Info
}

// GasFee isolates the network fee the contract paid during a purchase:
//
//	snapshot - tip_cost (if gas == tip) - tranche (if gas == source)
//	         + output (if gas == target) - current
//
// A positive result is a fee the contract advanced; a negative one means the
// gas balance grew by more than the swap and tip explain.
func GasFee(in GasFeeInput) (Delta, error) {
	expected := in.Snapshot
	for _, out := range []asset.Asset{in.TipCost, in.Tranche} {
		if out.Info != in.Gas {
			continue
		}
		next, err := expected.Sub(out.Amount)
		if err != nil {
			return Delta{}, fmt.Errorf("gas snapshot below outgoing %s: %w", out, err)
		}
		expected = next
	}
	if in.SwapOutput.Info == in.Gas {
		next, err := expected.Add(in.SwapOutput.Amount)
		if err != nil {
			return Delta{}, fmt.Errorf("expected gas balance: %w", err)
		}
		expected = next
	}

	if expected.Cmp(in.Current) >= 0 {
		fee, err := expected.Sub(in.Current)
		return Delta{Amount: fee}, err
	}
	gain, err := in.Current.Sub(expected)
	return Delta{Amount: gain, Negative: true}, err
}

// ApplyGasFee charges a positive fee to the order's gas pool and credits a
// negative one back.
func ApplyGasFee(order models.Order, fee Delta) (models.Order, error) {
	if fee.Amount.IsZero() {
		return order, nil
	}
	a := asset.New(order.Balance.Gas.Info, fee.Amount)
	if fee.Negative {
		return Credit(order, models.SlotGas, a)
	}
	return Debit(order, models.SlotGas, a)
}
