package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
)

// Slot names one of the five assets on an order's balance sheet.
type Slot string

const (
	SlotSource Slot = "source"
	SlotSpent  Slot = "spent"
	SlotTarget Slot = "target"
	SlotTip    Slot = "tip"
	SlotGas    Slot = "gas"
)

func ParseSlot(s string) (Slot, error) {
	switch slot := Slot(s); slot {
	case SlotSource, SlotSpent, SlotTarget, SlotTip, SlotGas:
		return slot, nil
	default:
		return "", fmt.Errorf("%w: unknown balance slot %q", errs.ErrInvalidInput, s)
	}
}

// Order is a DCA order (DcaInfo on chain).
type Order struct {
	ID            string           `json:"id"`
	Owner         string           `json:"created_by"`
	CreatedAt     uint64           `json:"created_at"`
	StartAt       uint64           `json:"start_at"`
	Interval      uint64           `json:"interval"`
	TrancheAmount asset.Asset      `json:"dca_amount"`
	MaxHops       *uint32          `json:"max_hops,omitempty"`
	MaxSpread     *decimal.Decimal `json:"max_spread,omitempty"`
	Balance       Balance          `json:"balance"`
}

// Balance is the order's five-asset balance sheet.
type Balance struct {
	Source       asset.Asset `json:"source"`
	Spent        asset.Asset `json:"spent"`
	Target       asset.Asset `json:"target"`
	Tip          asset.Asset `json:"tip"`
	Gas          asset.Asset `json:"gas"`
	LastPurchase uint64      `json:"last_purchase"`
}

// Slot returns a pointer to the asset stored in slot.
func (b *Balance) Slot(slot Slot) (*asset.Asset, error) {
	switch slot {
	case SlotSource:
		return &b.Source, nil
	case SlotSpent:
		return &b.Spent, nil
	case SlotTarget:
		return &b.Target, nil
	case SlotTip:
		return &b.Tip, nil
	case SlotGas:
		return &b.Gas, nil
	default:
		return nil, fmt.Errorf("%w: unknown balance slot %q", errs.ErrInvalidInput, slot)
	}
}

// Clone returns a deep copy; pointer fields are not shared.
func (o Order) Clone() Order {
	out := o
	if o.MaxHops != nil {
		v := *o.MaxHops
		out.MaxHops = &v
	}
	if o.MaxSpread != nil {
		v := *o.MaxSpread
		out.MaxSpread = &v
	}
	return out
}

// EffectiveMaxHops returns the order override or the contract default.
func (o Order) EffectiveMaxHops(cfg ContractConfig) uint32 {
	if o.MaxHops != nil {
		return *o.MaxHops
	}
	return cfg.MaxHops
}

func (o Order) EffectiveMaxSpread(cfg ContractConfig) decimal.Decimal {
	if o.MaxSpread != nil {
		return *o.MaxSpread
	}
	return cfg.MaxSpread
}

// Whitelist lists the asset kinds allowed as source and as tip.
type Whitelist struct {
	Source []asset.Info `json:"source"`
	Tip    []asset.Info `json:"tip"`
}

func (w Whitelist) IsSourceAsset(info asset.Info) bool { return contains(w.Source, info) }

func (w Whitelist) IsTipAsset(info asset.Info) bool { return contains(w.Tip, info) }

func contains(list []asset.Info, info asset.Info) bool {
	for _, item := range list {
		if item == info {
			return true
		}
	}
	return false
}

// ContractConfig is the process-wide contract configuration.
type ContractConfig struct {
	Owner       string          `json:"owner"`
	MaxHops     uint32          `json:"max_hops"`
	MaxSpread   decimal.Decimal `json:"max_spread"`
	PerHopFee   asset.Amount    `json:"per_hop_fee"`
	GasInfo     asset.Info      `json:"gas_info"`
	Whitelist   Whitelist       `json:"whitelisted_tokens"`
	FactoryAddr string          `json:"factory_addr"`
	RouterAddr  string          `json:"router_addr"`
}

func (c ContractConfig) Clone() ContractConfig {
	out := c
	out.Whitelist.Source = append([]asset.Info(nil), c.Whitelist.Source...)
	out.Whitelist.Tip = append([]asset.Info(nil), c.Whitelist.Tip...)
	return out
}

// PendingPurchase is the state carried from purchase initiation to
// reconciliation. At most one exists at a time.
type PendingPurchase struct {
	OrderID            string       `json:"order_id"`
	GasBalanceSnapshot asset.Amount `json:"gas_balance_snapshot"`
	TipCost            asset.Asset  `json:"tip_cost"`
}

// SwapLeg is one executed hop reported by the router.
type SwapLeg struct {
	OfferInfo    asset.Info   `json:"offer_info"`
	AskInfo      asset.Info   `json:"ask_info"`
	OfferAmount  asset.Amount `json:"offer_amount"`
	ReturnAmount asset.Amount `json:"return_amount"`
	Receiver     string       `json:"receiver"`
}

// SwapReply records the last reconciled purchase.
type SwapReply struct {
	OrderID  string          `json:"order_id"`
	Height   int64           `json:"height"`
	Legs     []SwapLeg       `json:"legs"`
	Received asset.Asset     `json:"received"`
	GasFee   decimal.Decimal `json:"gas_fee"`
}
