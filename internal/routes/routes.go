// Package routes holds the hop routes the bot submits purchases with.
package routes

import (
	"fmt"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/router"
)

// Route is one configured path. Path lists asset keys from source to
// target; contract addresses are tokens, anything else is a native denom.
type Route struct {
	Path []string `yaml:"path" validate:"min=2,dive,required"`
}

type pair struct {
	source asset.Info
	target asset.Info
}

// Table resolves a (source, target) couple to a validated hop list.
type Table struct {
	routes map[pair][]router.SwapOperation
}

func New(list []Route) (*Table, error) {
	t := &Table{routes: make(map[pair][]router.SwapOperation, len(list))}
	for i, r := range list {
		hops, err := Hops(r.Path)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		key := pair{source: hops[0].Offer(), target: hops[len(hops)-1].Ask()}
		if _, dup := t.routes[key]; dup {
			return nil, fmt.Errorf("%w: route %d duplicates %s -> %s", errs.ErrInvalidInput, i, key.source, key.target)
		}
		t.routes[key] = hops
	}
	return t, nil
}

// Hops turns an asset path into swap operations.
func Hops(path []string) ([]router.SwapOperation, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: path needs at least two assets", errs.ErrInvalidInput)
	}
	hops := make([]router.SwapOperation, 0, len(path)-1)
	for i := 1; i < len(path); i++ {
		offer := router.InfoFromKey(path[i-1])
		ask := router.InfoFromKey(path[i])
		if offer == ask {
			return nil, fmt.Errorf("%w: hop %d swaps %s for itself", errs.ErrInvalidInput, i-1, offer)
		}
		hops = append(hops, router.NewAstroSwap(offer, ask))
	}
	if err := router.ValidateRoute(hops); err != nil {
		return nil, err
	}
	return hops, nil
}

// Lookup returns a copy of the route from source to target.
func (t *Table) Lookup(source, target asset.Info) ([]router.SwapOperation, bool) {
	hops, ok := t.routes[pair{source: source, target: target}]
	if !ok {
		return nil, false
	}
	return append([]router.SwapOperation(nil), hops...), true
}

func (t *Table) Len() int { return len(t.routes) }
