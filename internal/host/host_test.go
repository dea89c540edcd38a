package host

import (
	"context"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/router"
	"github.com/dauTT/astroport-dca/internal/services"
	"github.com/dauTT/astroport-dca/internal/store"
)

const prefix = "terra"

var (
	usdt     = asset.NativeInfo("usdt")
	luna     = asset.NativeInfo("uluna")
	target   = asset.TokenInfo(chain.MustModuleAddress(prefix, "target-token"))
	contract = chain.MustModuleAddress(prefix, "dca")
	routerAd = chain.MustModuleAddress(prefix, "router")
	feeAddr  = chain.MustModuleAddress(prefix, "fee-collector")
	admin    = chain.MustModuleAddress(prefix, "admin")
	alice    = chain.MustModuleAddress(prefix, "alice")
	bot      = chain.MustModuleAddress(prefix, "bot")
)

func amt(n uint64) asset.Amount { return asset.NewAmount(n) }

func coin(n uint64, denom string) asset.Coin { return asset.Coin{Denom: denom, Amount: amt(n)} }

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Memory
	ledger *ledger.Memory
	clock  *ManualClock
	rates  map[router.Pair]decimal.Decimal
	host   *Host
}

func testConfig() models.ContractConfig {
	return models.ContractConfig{
		Owner:     admin,
		MaxHops:   3,
		MaxSpread: decimal.RequireFromString("0.05"),
		PerHopFee: amt(100),
		GasInfo:   luna,
		Whitelist: models.Whitelist{
			Source: []asset.Info{usdt},
			Tip:    []asset.Info{usdt},
		},
		RouterAddr: routerAd,
	}
}

// newFixture wires a host with one simulated router quoting 5 target per
// usdt and charging 3 uluna per hop. routerStock is the router's target
// inventory.
func newFixture(t *testing.T, routerStock uint64) *fixture {
	t.Helper()
	rates := map[router.Pair]decimal.Decimal{{Offer: usdt, Ask: target}: decimal.NewFromInt(5)}
	return newFixtureWith(t, routerStock, testConfig(), rates)
}

func newFixtureWith(t *testing.T, routerStock uint64, cfg models.ContractConfig, rates map[router.Pair]decimal.Decimal) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store.NewMemory(),
		clock: NewManualClock(time.Unix(1_700_000_000, 0)),
		rates: rates,
	}
	f.start()

	created, err := f.host.Instantiate(f.ctx, cfg)
	require.NoError(t, err)
	require.True(t, created)

	if routerStock > 0 {
		require.NoError(t, f.host.Mint(f.ctx, routerAd, asset.New(target, amt(routerStock))))
	}
	require.NoError(t, f.host.Mint(f.ctx, alice, asset.New(usdt, amt(1000))))
	require.NoError(t, f.host.Mint(f.ctx, alice, asset.New(luna, amt(100))))
	return f
}

// start builds a host over the fixture's store with an empty ledger, the
// way a node process comes up.
func (f *fixture) start() {
	f.t.Helper()
	f.ledger = ledger.NewMemory()
	sim := router.NewSim(f.ledger, router.SimOptions{
		Address:      routerAd,
		FeeCollector: feeAddr,
		Rates:        f.rates,
		FeePerHop:    asset.New(luna, amt(3)),
	}, nil)

	var err error
	f.host, err = New(f.ctx, Options{
		Store:    f.store,
		Ledger:   f.ledger,
		Routers:  []router.Executor{sim},
		Contract: contract,
		Prefix:   prefix,
		Clock:    f.clock,
	})
	require.NoError(f.t, err)
}

func (f *fixture) balance(account string, info asset.Info) string {
	v, err := f.ledger.BalanceOf(f.ctx, account, info)
	require.NoError(f.t, err)
	return v.String()
}

func (f *fixture) createOrder() string {
	f.t.Helper()
	res, err := f.host.Execute(f.ctx, Tx{
		Sender: alice,
		Funds:  asset.Coins{coin(300, "usdt"), coin(50, "uluna")},
		Msg: ExecuteMsg{CreateOrder: &services.CreateOrderRequest{
			Interval:   3600,
			DcaAmount:  asset.New(usdt, amt(10)),
			Source:     asset.New(usdt, amt(100)),
			Tip:        asset.New(usdt, amt(200)),
			Gas:        asset.New(luna, amt(50)),
			TargetInfo: target,
		}},
	})
	require.NoError(f.t, err)
	require.True(f.t, res.OK())
	return res.Data.(map[string]string)["id"]
}

func (f *fixture) purchase(id string) (TxResult, error) {
	return f.host.Execute(f.ctx, Tx{
		Sender: bot,
		Msg: ExecuteMsg{PerformPurchase: &services.PurchaseRequest{
			ID:   id,
			Hops: []router.SwapOperation{router.NewAstroSwap(usdt, target)},
		}},
	})
}

func TestPurchaseSettlesAndReconciles(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.createOrder()
	assert.Equal(t, "300", f.balance(contract, usdt))
	assert.Equal(t, "50", f.balance(contract, luna))

	res, err := f.purchase(id)
	require.NoError(t, err)
	require.True(t, res.OK())

	assert.Equal(t, "50", f.balance(contract, target))
	assert.Equal(t, "10", f.balance(routerAd, usdt))
	assert.Equal(t, "100", f.balance(bot, usdt))
	assert.Equal(t, "3", f.balance(feeAddr, luna))
	assert.Equal(t, "190", f.balance(contract, usdt))

	order, err := f.host.Order(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "90", order.Balance.Source.Amount.String())
	assert.Equal(t, "10", order.Balance.Spent.Amount.String())
	assert.Equal(t, "100", order.Balance.Tip.Amount.String())
	assert.Equal(t, "50", order.Balance.Target.Amount.String())
	assert.Equal(t, "47", order.Balance.Gas.Amount.String())

	st, err := f.host.Status(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, st.PendingPurchase)

	reply, err := f.host.LastSwapReply(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "3", reply.GasFee.String())
	require.Len(t, reply.Legs, 1)
	assert.Equal(t, contract, reply.Legs[0].Receiver)

	res, err = f.purchase(id)
	require.ErrorIs(t, err, errs.ErrPurchaseTooEarly)
	assert.Equal(t, codeFor(errs.KindValidation), res.Code)

	f.clock.Advance(time.Hour)
	_, err = f.purchase(id)
	require.NoError(t, err)
	assert.Equal(t, "100", f.balance(contract, target))
}

func TestFailedSwapRevertsEverything(t *testing.T) {
	f := newFixture(t, 0)
	id := f.createOrder()
	before, err := f.host.Order(f.ctx, id)
	require.NoError(t, err)

	res, err := f.purchase(id)
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)
	assert.False(t, res.OK())
	assert.Empty(t, res.Events)

	after, err := f.host.Order(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Equal(t, "300", f.balance(contract, usdt))
	assert.Equal(t, "50", f.balance(contract, luna))
	assert.Equal(t, "0", f.balance(bot, usdt))
	assert.Equal(t, "0", f.balance(routerAd, usdt))
	assert.Equal(t, "0", f.balance(feeAddr, luna))

	st, err := f.host.Status(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, st.PendingPurchase)
}

func TestStalePendingPurchaseBlocks(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.createOrder()
	require.NoError(t, f.store.Update(f.ctx, func(tx store.Tx) error {
		return tx.SetPendingPurchase(f.ctx, models.PendingPurchase{OrderID: "99", TipCost: asset.Zero(usdt)})
	}))

	res, err := f.purchase(id)
	require.ErrorIs(t, err, errs.ErrPurchaseInFlight)
	assert.Equal(t, codeFor(errs.KindState), res.Code)
	assert.Equal(t, "0", f.balance(bot, usdt))
}

func TestUnknownRouterRejected(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.createOrder()
	other := chain.MustModuleAddress(prefix, "other-router")

	_, err := f.host.Execute(f.ctx, Tx{
		Sender: admin,
		Msg:    ExecuteMsg{UpdateConfig: &services.UpdateConfigRequest{RouterAddr: &other}},
	})
	require.NoError(t, err)

	_, err = f.purchase(id)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Equal(t, "300", f.balance(contract, usdt))
}

func TestFundsAttachedWithoutBalance(t *testing.T) {
	f := newFixture(t, 1000)
	res, err := f.host.Execute(f.ctx, Tx{
		Sender: bot,
		Funds:  asset.Coins{coin(5, "usdt")},
		Msg:    ExecuteMsg{CancelOrder: &services.CancelOrderRequest{ID: "1"}},
	})
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)
	assert.False(t, res.OK())
}

func TestExecuteMsgAction(t *testing.T) {
	_, err := ExecuteMsg{}.Action()
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = ExecuteMsg{
		CancelOrder: &services.CancelOrderRequest{ID: "1"},
		Withdraw:    &services.SlotRequest{},
	}.Action()
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	action, err := ExecuteMsg{Deposit: &services.SlotRequest{}}.Action()
	require.NoError(t, err)
	assert.Equal(t, "deposit", action)
}

func TestSubscribeReceivesResults(t *testing.T) {
	f := newFixture(t, 1000)
	ch, cancel := f.host.Subscribe(4)
	defer cancel()

	id := f.createOrder()
	_, _ = f.host.Execute(f.ctx, Tx{Sender: alice, Msg: ExecuteMsg{CancelOrder: &services.CancelOrderRequest{ID: "404"}}})

	first := <-ch
	assert.True(t, first.OK())
	assert.Equal(t, "create_dca_order", first.Action)
	v, ok := first.Events[len(first.Events)-1].Get("id")
	require.True(t, ok)
	assert.Equal(t, id, v)

	second := <-ch
	assert.Equal(t, codeFor(errs.KindNotFound), second.Code)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestCommitBlockPersistsHeight(t *testing.T) {
	f := newFixture(t, 0)
	assert.Equal(t, int64(1), f.host.Height())

	h, err := f.host.CommitBlock(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h)

	restarted, err := New(f.ctx, Options{Store: f.store, Ledger: f.ledger, Contract: contract, Prefix: prefix})
	require.NoError(t, err)
	assert.Equal(t, int64(2), restarted.Height())

	created, err := restarted.Instantiate(f.ctx, models.ContractConfig{Owner: alice})
	require.NoError(t, err)
	assert.False(t, created)
	cfg, err := restarted.Config(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, cfg.Owner)
}

func TestRestartRestoresLedger(t *testing.T) {
	f := newFixture(t, 1000)
	id := f.createOrder()
	require.NoError(t, f.host.Approve(f.ctx, target.ContractAddr, alice, contract, amt(7)))

	f.start()
	assert.Equal(t, "300", f.balance(contract, usdt))
	assert.Equal(t, "700", f.balance(alice, usdt))
	assert.Equal(t, "1000", f.balance(routerAd, target))
	allowance, err := f.ledger.Allowance(f.ctx, alice, contract, target.ContractAddr)
	require.NoError(t, err)
	assert.Equal(t, "7", allowance.String())

	res, err := f.host.Execute(f.ctx, Tx{Sender: alice, Msg: ExecuteMsg{CancelOrder: &services.CancelOrderRequest{ID: id}}})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "1000", f.balance(alice, usdt))
	assert.Equal(t, "100", f.balance(alice, luna))
	assert.Equal(t, "0", f.balance(contract, usdt))

	// A failed tx does not leak into the saved ledger.
	_, err = f.host.Execute(f.ctx, Tx{
		Sender: alice,
		Funds:  asset.Coins{coin(5000, "usdt")},
		Msg:    ExecuteMsg{CancelOrder: &services.CancelOrderRequest{ID: id}},
	})
	require.Error(t, err)
	f.start()
	assert.Equal(t, "1000", f.balance(alice, usdt))
	assert.Equal(t, "0", f.balance(contract, usdt))
}

func TestGasAssetDoublesAsSourceAndTip(t *testing.T) {
	cfg := testConfig()
	cfg.Whitelist = models.Whitelist{Source: []asset.Info{luna}, Tip: []asset.Info{luna}}
	rates := map[router.Pair]decimal.Decimal{{Offer: luna, Ask: target}: decimal.NewFromInt(5)}
	f := newFixtureWith(t, 1000, cfg, rates)
	require.NoError(t, f.host.Mint(f.ctx, alice, asset.New(luna, amt(150))))

	res, err := f.host.Execute(f.ctx, Tx{
		Sender: alice,
		Funds:  asset.Coins{coin(250, "uluna")},
		Msg: ExecuteMsg{CreateOrder: &services.CreateOrderRequest{
			Interval:   3600,
			DcaAmount:  asset.New(luna, amt(10)),
			Source:     asset.New(luna, amt(100)),
			Tip:        asset.New(luna, amt(100)),
			Gas:        asset.New(luna, amt(50)),
			TargetInfo: target,
		}},
	})
	require.NoError(t, err)
	id := res.Data.(map[string]string)["id"]
	assert.Equal(t, "250", f.balance(contract, luna))

	_, err = f.host.Execute(f.ctx, Tx{
		Sender: bot,
		Msg: ExecuteMsg{PerformPurchase: &services.PurchaseRequest{
			ID:   id,
			Hops: []router.SwapOperation{router.NewAstroSwap(luna, target)},
		}},
	})
	require.NoError(t, err)

	// 250 in, 10 swapped, 3 router fee, 100 tip.
	assert.Equal(t, "137", f.balance(contract, luna))
	assert.Equal(t, "100", f.balance(bot, luna))
	assert.Equal(t, "3", f.balance(feeAddr, luna))

	order, err := f.host.Order(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "90", order.Balance.Source.Amount.String())
	assert.Equal(t, "0", order.Balance.Tip.Amount.String())
	assert.Equal(t, "47", order.Balance.Gas.Amount.String())
	assert.Equal(t, "50", order.Balance.Target.Amount.String())

	reply, err := f.host.LastSwapReply(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "3", reply.GasFee.String())

	held, err := order.Balance.Source.Amount.Add(order.Balance.Tip.Amount)
	require.NoError(t, err)
	held, err = held.Add(order.Balance.Gas.Amount)
	require.NoError(t, err)
	assert.Equal(t, f.balance(contract, luna), held.String())
}

func signerFor(t *testing.T, seed string) *chain.Signer {
	t.Helper()
	s, err := chain.SignerFromHex(prefix, strings.Repeat(seed, 32))
	require.NoError(t, err)
	return s
}

func TestExecuteSigned(t *testing.T) {
	f := newFixture(t, 1000)
	owner := signerFor(t, "44")
	thief := signerFor(t, "55")
	require.NoError(t, f.host.Mint(f.ctx, owner.Address(), asset.New(usdt, amt(100))))

	req := chain.BroadcastRequest{
		Sender: owner.Address(),
		Msg:    ExecuteMsg{Withdraw: &services.SlotRequest{ID: "1", Slot: models.SlotTip, Asset: asset.New(usdt, amt(1))}},
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = f.host.ExecuteSigned(f.ctx, *thief.SignBody(body))
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	seq, err := f.host.AccountSequence(f.ctx, owner.Address())
	require.NoError(t, err)
	assert.Zero(t, seq)

	signed, err := owner.Sign(chain.BroadcastRequest{
		Funds: asset.Coins{coin(40, "usdt")},
		Msg:   ExecuteMsg{CancelOrder: &services.CancelOrderRequest{ID: "404"}},
	})
	require.NoError(t, err)
	res, err := f.host.ExecuteSigned(f.ctx, *signed)
	require.ErrorIs(t, err, errs.ErrNativeBalanceMismatch)
	assert.Equal(t, owner.Address(), res.Tx.Sender)
	assert.Equal(t, "100", f.balance(owner.Address(), usdt))

	// The failed tx still used sequence 0.
	_, err = f.host.ExecuteSigned(f.ctx, *signed)
	require.ErrorIs(t, err, errs.ErrSequenceMismatch)
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	seq, err = f.host.AccountSequence(f.ctx, owner.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	signed.Signature[len(signed.Signature)-1] ^= 0xff
	_, err = f.host.ExecuteSigned(f.ctx, *signed)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestTxHash(t *testing.T) {
	tx := Tx{Sender: alice, Msg: ExecuteMsg{CancelOrder: &services.CancelOrderRequest{ID: "1"}}}
	first, err := txHash(3, 1, tx)
	require.NoError(t, err)
	again, err := txHash(3, 1, tx)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, first, 64)
	assert.Equal(t, strings.ToUpper(first), first)

	next, err := txHash(3, 2, tx)
	require.NoError(t, err)
	assert.NotEqual(t, first, next)
}
