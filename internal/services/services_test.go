package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/router"
	"github.com/dauTT/astroport-dca/internal/store"
)

const prefix = "terra"

var (
	usdt     = asset.NativeInfo("usdt")
	luna     = asset.NativeInfo("uluna")
	target   = asset.TokenInfo(chain.MustModuleAddress(prefix, "target-token"))
	astro    = asset.TokenInfo(chain.MustModuleAddress(prefix, "astro-token"))
	contract = chain.MustModuleAddress(prefix, "dca")
	routerAd = chain.MustModuleAddress(prefix, "router")
	admin    = chain.MustModuleAddress(prefix, "admin")
	alice    = chain.MustModuleAddress(prefix, "alice")
	bob      = chain.MustModuleAddress(prefix, "bob")
	bot      = chain.MustModuleAddress(prefix, "bot")
)

func amt(n uint64) asset.Amount { return asset.NewAmount(n) }

func coins(cs ...asset.Coin) asset.Coins { return cs }

func coin(n uint64, denom string) asset.Coin { return asset.Coin{Denom: denom, Amount: amt(n)} }

type fixture struct {
	t         *testing.T
	ctx       context.Context
	store     *store.Memory
	ledger    *ledger.Memory
	orders    *OrderService
	purchases *PurchaseService
	env       Env
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  store.NewMemory(),
		ledger: ledger.NewMemory(),
		env:    Env{Height: 10, Time: 1000, Contract: contract},
	}
	f.orders = &OrderService{Ledger: f.ledger, Prefix: prefix, IDMode: IDSequence}
	f.purchases = &PurchaseService{Ledger: f.ledger}

	require.NoError(t, f.store.Update(f.ctx, func(tx store.Tx) error {
		return tx.SaveConfig(f.ctx, models.ContractConfig{
			Owner:     admin,
			MaxHops:   3,
			MaxSpread: decimal.RequireFromString("0.05"),
			PerHopFee: amt(100),
			GasInfo:   luna,
			Whitelist: models.Whitelist{
				Source: []asset.Info{usdt, astro},
				Tip:    []asset.Info{usdt, luna},
			},
			RouterAddr: routerAd,
		})
	}))
	return f
}

func (f *fixture) exec(fn func(tx store.Tx) (*Response, error)) (*Response, error) {
	var resp *Response
	err := f.store.Update(f.ctx, func(tx store.Tx) error {
		var err error
		resp, err = fn(tx)
		return err
	})
	return resp, err
}

func (f *fixture) order(id string) models.Order {
	f.t.Helper()
	var o models.Order
	require.NoError(f.t, f.store.View(f.ctx, func(tx store.Tx) error {
		var err error
		o, err = tx.Order(f.ctx, id)
		return err
	}))
	return o
}

func (f *fixture) pending() *models.PendingPurchase {
	f.t.Helper()
	var p *models.PendingPurchase
	require.NoError(f.t, f.store.View(f.ctx, func(tx store.Tx) error {
		var err error
		p, err = tx.PendingPurchase(f.ctx)
		return err
	}))
	return p
}

func defaultCreate() CreateOrderRequest {
	return CreateOrderRequest{
		StartAt:    0,
		Interval:   60,
		DcaAmount:  asset.New(usdt, amt(10)),
		Source:     asset.New(usdt, amt(100)),
		Tip:        asset.New(usdt, amt(200)),
		Gas:        asset.New(luna, amt(50)),
		TargetInfo: target,
	}
}

func (f *fixture) create(owner string, req CreateOrderRequest, funds asset.Coins) (*Response, error) {
	return f.exec(func(tx store.Tx) (*Response, error) {
		return f.orders.CreateOrder(f.ctx, tx, f.env, MessageInfo{Sender: owner, Funds: funds}, req)
	})
}

func (f *fixture) createDefault(owner string) string {
	f.t.Helper()
	resp, err := f.create(owner, defaultCreate(), coins(coin(300, "usdt"), coin(50, "uluna")))
	require.NoError(f.t, err)
	return resp.Data.(map[string]string)["id"]
}

func (f *fixture) initiate(id string, hops ...router.SwapOperation) (*Response, error) {
	return f.exec(func(tx store.Tx) (*Response, error) {
		return f.purchases.InitiatePurchase(f.ctx, tx, f.env, MessageInfo{Sender: bot}, PurchaseRequest{ID: id, Hops: hops})
	})
}

func swapEvent(offer, ask asset.Info, in, out uint64, receiver string) models.Event {
	return models.NewEvent("wasm").
		Add("action", "swap").
		Add("offer_asset", offer.Key()).
		Add("ask_asset", ask.Key()).
		Add("offer_amount", amt(in).String()).
		Add("return_amount", amt(out).String()).
		Add("receiver", receiver)
}

func (f *fixture) reconcile(events ...models.Event) (*Response, error) {
	return f.exec(func(tx store.Tx) (*Response, error) {
		return f.purchases.ReconcilePurchase(f.ctx, tx, f.env, events)
	})
}
