package router

import (
	"fmt"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/models"
)

// ExtractSwapLegs returns the executed hops, in order, from a router call's
// events. Only wasm events with action=swap count.
func ExtractSwapLegs(events []models.Event) ([]models.SwapLeg, error) {
	var legs []models.SwapLeg
	for _, ev := range events {
		if ev.Type != "wasm" {
			continue
		}
		if action, _ := ev.Get("action"); action != "swap" {
			continue
		}
		leg, err := parseLeg(ev)
		if err != nil {
			return nil, fmt.Errorf("swap leg %d: %w", len(legs), err)
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

func parseLeg(ev models.Event) (models.SwapLeg, error) {
	attr := func(key string) (string, error) {
		v, ok := ev.Get(key)
		if !ok || v == "" {
			return "", fmt.Errorf("%w: missing %s", errs.ErrInvalidSwapTrace, key)
		}
		return v, nil
	}

	var leg models.SwapLeg
	offer, err := attr("offer_asset")
	if err != nil {
		return leg, err
	}
	ask, err := attr("ask_asset")
	if err != nil {
		return leg, err
	}
	offerAmount, err := attr("offer_amount")
	if err != nil {
		return leg, err
	}
	returnAmount, err := attr("return_amount")
	if err != nil {
		return leg, err
	}
	receiver, err := attr("receiver")
	if err != nil {
		return leg, err
	}

	leg.OfferInfo = InfoFromKey(offer)
	leg.AskInfo = InfoFromKey(ask)
	leg.Receiver = receiver
	if leg.OfferAmount, err = asset.ParseAmount(offerAmount); err != nil {
		return leg, fmt.Errorf("%w: offer_amount: %v", errs.ErrInvalidSwapTrace, err)
	}
	if leg.ReturnAmount, err = asset.ParseAmount(returnAmount); err != nil {
		return leg, fmt.Errorf("%w: return_amount: %v", errs.ErrInvalidSwapTrace, err)
	}
	return leg, nil
}

// InfoFromKey maps an event or config asset string to its kind: contract
// addresses are tokens, everything else is a native denom.
func InfoFromKey(key string) asset.Info {
	if chain.IsAddress(key) {
		return asset.TokenInfo(key)
	}
	return asset.NativeInfo(key)
}
