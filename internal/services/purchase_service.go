package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/balance"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/metrics"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/router"
	"github.com/dauTT/astroport-dca/internal/store"
)

// PurchaseService runs the two halves of a DCA purchase: InitiatePurchase
// debits the order and asks the router to swap, ReconcilePurchase books the
// swap result once the router call has succeeded.
type PurchaseService struct {
	Ledger ledger.Querier
	Logger *zap.Logger
}

func (s *PurchaseService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *PurchaseService) InitiatePurchase(ctx context.Context, tx store.Tx, env Env, info MessageInfo, req PurchaseRequest) (*Response, error) {
	if err := rejectUnclaimed(info.Funds, nil); err != nil {
		return nil, err
	}
	cfg, err := tx.Config(ctx)
	if err != nil {
		return nil, err
	}
	order, err := tx.Order(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	cost, err := cfg.PerHopFee.Mul(asset.NewAmount(uint64(len(req.Hops))))
	if err != nil {
		return nil, fmt.Errorf("tip cost: %w", err)
	}
	tipCost := asset.New(order.Balance.Tip.Info, cost)

	snapshot, err := s.Ledger.BalanceOf(ctx, env.Contract, order.Balance.Gas.Info)
	if err != nil {
		return nil, fmt.Errorf("snapshot gas balance: %w", err)
	}
	if err := acquirePurchase(ctx, tx, models.PendingPurchase{
		OrderID:            order.ID,
		GasBalanceSnapshot: snapshot,
		TipCost:            tipCost,
	}); err != nil {
		return nil, err
	}

	if err := checkPurchase(env, cfg, order, req.Hops, tipCost); err != nil {
		return nil, err
	}
	tranche := order.TrancheAmount
	if order, err = balance.DebitPurchase(order, tipCost, env.Time); err != nil {
		return nil, err
	}
	if err := tx.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	resp := &Response{}
	swap := router.SwapRequest{
		Router:     cfg.RouterAddr,
		Operations: req.Hops,
		Offer:      tranche,
		MaxSpread:  order.EffectiveMaxSpread(cfg),
		Recipient:  env.Contract,
	}
	switch tranche.Info.Kind {
	case asset.KindToken:
		ins, err := ledger.Transfer(cfg.RouterAddr, tranche)
		if err != nil {
			return nil, err
		}
		resp.transfer(ins)
	case asset.KindNative:
		swap.Funds = asset.Coins{{Denom: tranche.Info.Denom, Amount: tranche.Amount}}
	}
	resp.swap(swap)
	if err := refund(resp, info.Sender, tipCost); err != nil {
		return nil, err
	}

	resp.Events = append(resp.Events, contractEvent(env, "perform_dca_purchase").
		Add("dca_order_id", order.ID).
		Add("hops", strconv.Itoa(len(req.Hops))).
		Add("tranche", tranche.String()).
		Add("tip_cost", tipCost.String()).
		Add("bot", info.Sender))

	s.logger().Info("purchase initiated",
		zap.String("order_id", order.ID),
		zap.String("bot", info.Sender),
		zap.Int("hops", len(req.Hops)),
		zap.String("tip_cost", tipCost.String()))
	return resp, nil
}

// checkPurchase runs every pre-flight check without touching state.
func checkPurchase(env Env, cfg models.ContractConfig, order models.Order, hops []router.SwapOperation, tipCost asset.Asset) error {
	b := order.Balance
	if b.Source.Amount.Lt(order.TrancheAmount.Amount) {
		return fmt.Errorf("%w: source %s below tranche %s", errs.ErrInsufficientBalance, b.Source, order.TrancheAmount)
	}
	if len(hops) == 0 {
		return errs.ErrEmptyHopRoute
	}
	if limit := order.EffectiveMaxHops(cfg); uint64(len(hops)) > uint64(limit) {
		return fmt.Errorf("%w: %d hops, max %d", errs.ErrMaxHopsExceeded, len(hops), limit)
	}
	if b.Tip.Amount.Lt(tipCost.Amount) {
		return fmt.Errorf("%w: tip %s, cost %s", errs.ErrInsufficientTipBalance, b.Tip, tipCost)
	}
	if first := hops[0].Offer(); first != b.Source.Info {
		return fmt.Errorf("%w: route starts at %s, source is %s", errs.ErrStartAssetMismatch, first, b.Source.Info)
	}
	if last := hops[len(hops)-1].Ask(); last != b.Target.Info {
		return fmt.Errorf("%w: route ends at %s, target is %s", errs.ErrTargetAssetMismatch, last, b.Target.Info)
	}
	if err := router.ValidateRoute(hops); err != nil {
		return err
	}
	if next := b.LastPurchase + order.Interval; next < b.LastPurchase || env.Time < next {
		return fmt.Errorf("%w: next purchase at %d, now %d", errs.ErrPurchaseTooEarly, next, env.Time)
	}
	if env.Time < order.StartAt {
		return fmt.Errorf("%w: starts at %d, now %d", errs.ErrPurchaseNotStarted, order.StartAt, env.Time)
	}
	return nil
}

// ReconcilePurchase books the router result for the purchase in flight. The
// host calls it only after the router call succeeded.
func (s *PurchaseService) ReconcilePurchase(ctx context.Context, tx store.Tx, env Env, events []models.Event) (*Response, error) {
	pending, err := heldPurchase(ctx, tx)
	if err != nil {
		return nil, err
	}
	order, err := tx.Order(ctx, pending.OrderID)
	if err != nil {
		return nil, err
	}

	legs, err := router.ExtractSwapLegs(events)
	if err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return nil, errs.ErrNoSwapExecuted
	}
	last := legs[len(legs)-1]
	if last.Receiver != env.Contract {
		return nil, fmt.Errorf("%w: last hop paid %s, not the contract", errs.ErrInvalidSwapTrace, last.Receiver)
	}
	if last.AskInfo != order.Balance.Target.Info {
		return nil, fmt.Errorf("%w: last hop returned %s, target is %s", errs.ErrInvalidSwapTrace, last.AskInfo, order.Balance.Target.Info)
	}
	received := asset.New(last.AskInfo, last.ReturnAmount)
	if order, err = balance.CreditTarget(order, received); err != nil {
		return nil, err
	}

	current, err := s.Ledger.BalanceOf(ctx, env.Contract, order.Balance.Gas.Info)
	if err != nil {
		return nil, fmt.Errorf("query gas balance: %w", err)
	}
	fee, err := balance.GasFee(balance.GasFeeInput{
		Snapshot:   pending.GasBalanceSnapshot,
		Current:    current,
		Tranche:    order.TrancheAmount,
		TipCost:    pending.TipCost,
		SwapOutput: received,
		Gas:        order.Balance.Gas.Info,
	})
	if err != nil {
		return nil, err
	}
	if order, err = balance.ApplyGasFee(order, fee); err != nil {
		return nil, fmt.Errorf("charge gas fee %s: %w", fee, err)
	}

	if err := tx.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := tx.SaveSwapReply(ctx, models.SwapReply{
		OrderID:  order.ID,
		Height:   env.Height,
		Legs:     legs,
		Received: received,
		GasFee:   feeDecimal(fee),
	}); err != nil {
		return nil, err
	}
	if err := releasePurchase(ctx, tx, order.ID); err != nil {
		return nil, err
	}

	metrics.PurchaseReconciled(amountFloat(received.Amount), feeDecimal(fee).InexactFloat64())
	s.logger().Info("purchase reconciled",
		zap.String("order_id", order.ID),
		zap.String("received", received.String()),
		zap.String("gas_fee", fee.String()))

	return &Response{Events: []models.Event{contractEvent(env, "perform_dca_purchase_reply").
		Add("dca_order_id", order.ID).
		Add("return_amount", received.String()).
		Add("gas_fee", fee.String())}}, nil
}

// amountFloat converts through the decimal string so amounts above 2^64 keep
// their magnitude.
func amountFloat(a asset.Amount) float64 {
	return decimal.RequireFromString(a.String()).InexactFloat64()
}

func feeDecimal(fee balance.Delta) decimal.Decimal {
	d := decimal.RequireFromString(fee.Amount.String())
	if fee.Negative {
		return d.Neg()
	}
	return d
}
