// Package router describes swap requests sent to an Astroport-style router
// and reads the executed legs back out of its events.
package router

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/models"
)

// SwapOperation is one hop. Exactly one field is set.
type SwapOperation struct {
	NativeSwap *NativeSwap `json:"native_swap,omitempty"`
	AstroSwap  *AstroSwap  `json:"astro_swap,omitempty"`
}

type NativeSwap struct {
	OfferDenom string `json:"offer_denom"`
	AskDenom   string `json:"ask_denom"`
}

type AstroSwap struct {
	OfferAssetInfo asset.Info `json:"offer_asset_info"`
	AskAssetInfo   asset.Info `json:"ask_asset_info"`
}

func NewAstroSwap(offer, ask asset.Info) SwapOperation {
	return SwapOperation{AstroSwap: &AstroSwap{OfferAssetInfo: offer, AskAssetInfo: ask}}
}

func NewNativeSwap(offerDenom, askDenom string) SwapOperation {
	return SwapOperation{NativeSwap: &NativeSwap{OfferDenom: offerDenom, AskDenom: askDenom}}
}

func (op SwapOperation) Offer() asset.Info {
	switch {
	case op.NativeSwap != nil:
		return asset.NativeInfo(op.NativeSwap.OfferDenom)
	case op.AstroSwap != nil:
		return op.AstroSwap.OfferAssetInfo
	default:
		return asset.Info{}
	}
}

func (op SwapOperation) Ask() asset.Info {
	switch {
	case op.NativeSwap != nil:
		return asset.NativeInfo(op.NativeSwap.AskDenom)
	case op.AstroSwap != nil:
		return op.AstroSwap.AskAssetInfo
	default:
		return asset.Info{}
	}
}

func (op SwapOperation) Validate() error {
	if (op.NativeSwap == nil) == (op.AstroSwap == nil) {
		return fmt.Errorf("%w: swap operation must set exactly one of native_swap, astro_swap", errs.ErrInvalidInput)
	}
	if err := op.Offer().Validate(); err != nil {
		return err
	}
	if err := op.Ask().Validate(); err != nil {
		return err
	}
	if op.Offer() == op.Ask() {
		return fmt.Errorf("%w: hop offers and asks %s", errs.ErrInvalidInput, op.Offer())
	}
	return nil
}

func (op SwapOperation) String() string {
	return op.Offer().Key() + ">" + op.Ask().Key()
}

// ValidateRoute checks every hop and that each hop offers what the previous
// one asked for.
func ValidateRoute(ops []SwapOperation) error {
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
		if i > 0 && ops[i-1].Ask() != op.Offer() {
			return fmt.Errorf("%w: hop %d offers %s, previous hop asks %s", errs.ErrInvalidInput, i, op.Offer(), ops[i-1].Ask())
		}
	}
	return nil
}

// SwapRequest is the execute_swap_operations call sent to the router.
type SwapRequest struct {
	Router     string          `json:"router"`
	Operations []SwapOperation `json:"operations"`
	Offer      asset.Asset     `json:"offer"`
	MaxSpread  decimal.Decimal `json:"max_spread"`
	Recipient  string          `json:"to"`
	Funds      asset.Coins     `json:"funds,omitempty"`
}

// Executor runs swap requests addressed to one router contract.
type Executor interface {
	Address() string
	ExecuteSwap(ctx context.Context, sender string, req SwapRequest) ([]models.Event, error)
}
