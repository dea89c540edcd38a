package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/balance"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/store"
)

// IDMode selects how new order ids are allocated.
type IDMode string

const (
	IDSequence IDMode = "sequence"
	IDUUID     IDMode = "uuid"
)

// OrderService creates, changes and cancels orders. Every method runs inside
// the caller's store transaction.
type OrderService struct {
	Ledger ledger.Querier
	// Prefix is the bech32 prefix token addresses must carry; empty accepts any.
	Prefix string
	IDMode IDMode
	Logger *zap.Logger
}

func (s *OrderService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *OrderService) CreateOrder(ctx context.Context, tx store.Tx, env Env, info MessageInfo, req CreateOrderRequest) (*Response, error) {
	cfg, err := tx.Config(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.checkCreate(cfg, &req); err != nil {
		return nil, err
	}

	resp := &Response{}
	if err := s.collectFunds(ctx, env, info, resp, req.Source, req.Tip, req.Gas); err != nil {
		return nil, err
	}

	id, err := s.nextID(ctx, tx)
	if err != nil {
		return nil, err
	}
	order := models.Order{
		ID:            id,
		Owner:         info.Sender,
		CreatedAt:     env.Time,
		StartAt:       req.StartAt,
		Interval:      req.Interval,
		TrancheAmount: req.DcaAmount,
		MaxHops:       req.MaxHops,
		MaxSpread:     req.MaxSpread,
		Balance: models.Balance{
			Source: req.Source,
			Spent:  asset.Zero(req.Source.Info),
			Target: asset.Zero(req.TargetInfo),
			Tip:    req.Tip,
			Gas:    req.Gas,
		},
	}
	if err := tx.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	ids, err := tx.OwnerOrders(ctx, order.Owner)
	if err != nil {
		return nil, err
	}
	if err := tx.SaveOwnerOrders(ctx, order.Owner, append(ids, id)); err != nil {
		return nil, err
	}

	resp.Events = append(resp.Events, contractEvent(env, "create_dca_order").
		Add("id", id).
		Add("created_by", order.Owner).
		Add("created_at", strconv.FormatUint(order.CreatedAt, 10)).
		Add("start_at", strconv.FormatUint(order.StartAt, 10)).
		Add("interval", strconv.FormatUint(order.Interval, 10)).
		Add("dca_amount", order.TrancheAmount.String()).
		Add("source", order.Balance.Source.String()).
		Add("tip", order.Balance.Tip.String()).
		Add("gas", order.Balance.Gas.String()).
		Add("target_info", order.Balance.Target.Info.Key()))
	resp.Data = map[string]string{"id": id}

	s.logger().Info("order created", zap.String("order_id", id), zap.String("owner", order.Owner))
	return resp, nil
}

func (s *OrderService) checkCreate(cfg models.ContractConfig, req *CreateOrderRequest) error {
	var err error
	for _, a := range []*asset.Asset{&req.DcaAmount, &req.Source, &req.Tip, &req.Gas} {
		if a.Info, err = s.checkInfo(a.Info); err != nil {
			return err
		}
	}
	if req.TargetInfo, err = s.checkInfo(req.TargetInfo); err != nil {
		return err
	}

	if req.DcaAmount.Info != req.Source.Info {
		return fmt.Errorf("%w: dca_amount %s, source %s", errs.ErrAssetKindMismatch, req.DcaAmount.Info, req.Source.Info)
	}
	if !cfg.Whitelist.IsSourceAsset(req.Source.Info) {
		return fmt.Errorf("%w: source asset %s", errs.ErrNotWhitelisted, req.Source.Info)
	}
	if !cfg.Whitelist.IsTipAsset(req.Tip.Info) {
		return fmt.Errorf("%w: tip asset %s", errs.ErrNotWhitelisted, req.Tip.Info)
	}
	amounts := []struct {
		name string
		a    asset.Asset
	}{{"dca_amount", req.DcaAmount}, {"source", req.Source}, {"tip", req.Tip}, {"gas", req.Gas}}
	for _, item := range amounts {
		if item.a.Amount.IsZero() {
			return fmt.Errorf("%w: %s", errs.ErrZeroAmount, item.name)
		}
	}
	if req.Gas.Info != cfg.GasInfo {
		return fmt.Errorf("%w: gas asset %s, chain gas is %s", errs.ErrAssetKindMismatch, req.Gas.Info, cfg.GasInfo)
	}
	return checkSpread(req.MaxSpread)
}

func checkSpread(spread *decimal.Decimal) error {
	if spread == nil {
		return nil
	}
	if spread.IsNegative() || spread.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: max_spread %s outside [0, 1]", errs.ErrInvalidInput, spread)
	}
	return nil
}

// checkInfo validates an asset kind and normalizes token addresses.
func (s *OrderService) checkInfo(info asset.Info) (asset.Info, error) {
	if err := info.Validate(); err != nil {
		return info, err
	}
	if info.IsNative() {
		return info, nil
	}
	addr, err := chain.NormalizeAddress(s.Prefix, info.ContractAddr)
	if err != nil {
		return info, err
	}
	return asset.TokenInfo(addr), nil
}

// collectFunds makes sure the caller pays in assets: native coins must be
// attached with exact amounts, tokens are pulled with transfer_from against
// the caller's allowance. Attached coins nothing asked for are rejected.
func (s *OrderService) collectFunds(ctx context.Context, env Env, info MessageInfo, resp *Response, assets ...asset.Asset) error {
	totals, err := asset.Aggregate(assets...)
	if err != nil {
		return err
	}

	claimed := map[string]bool{}
	for _, a := range totals {
		switch a.Info.Kind {
		case asset.KindNative:
			if err := ledger.AssertAttached(info.Funds, a); err != nil {
				return err
			}
			claimed[a.Info.Denom] = true
		case asset.KindToken:
			allowance, err := s.Ledger.Allowance(ctx, info.Sender, env.Contract, a.Info.ContractAddr)
			if err != nil {
				return fmt.Errorf("query allowance: %w", err)
			}
			if allowance.Lt(a.Amount) {
				return fmt.Errorf("%w: %s allowance %s, needs %s", errs.ErrTokenAllowanceInsufficient, a.Info, allowance, a.Amount)
			}
			ins, err := ledger.TransferFrom(info.Sender, env.Contract, a)
			if err != nil {
				return err
			}
			resp.transfer(ins)
		}
	}
	return rejectUnclaimed(info.Funds, claimed)
}

func rejectUnclaimed(funds asset.Coins, claimed map[string]bool) error {
	for _, c := range funds {
		if !claimed[c.Denom] && !c.Amount.IsZero() {
			return fmt.Errorf("%w: unexpected %s attached", errs.ErrNativeBalanceMismatch, c)
		}
	}
	return nil
}

func (s *OrderService) nextID(ctx context.Context, tx store.Tx) (string, error) {
	if s.IDMode == IDUUID {
		return strings.ReplaceAll(uuid.NewString(), "-", ""), nil
	}
	seq, err := tx.NextOrderSeq(ctx)
	if err != nil {
		return "", fmt.Errorf("allocate order id: %w", err)
	}
	return strconv.FormatUint(seq, 10), nil
}

// ownedOrder loads an order and checks that sender owns it.
func ownedOrder(ctx context.Context, tx store.Tx, id, sender string) (models.Order, error) {
	order, err := tx.Order(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if order.Owner != sender {
		return models.Order{}, fmt.Errorf("%w: order %s belongs to %s", errs.ErrUnauthorized, id, order.Owner)
	}
	return order, nil
}

func (s *OrderService) ModifyOrder(ctx context.Context, tx store.Tx, env Env, info MessageInfo, req ModifyOrderRequest) (*Response, error) {
	order, err := ownedOrder(ctx, tx, req.ID, info.Sender)
	if err != nil {
		return nil, err
	}
	cfg, err := tx.Config(ctx)
	if err != nil {
		return nil, err
	}

	var refunds, incoming []asset.Asset
	changed := []string{}

	if req.NewSourceAsset != nil {
		next := *req.NewSourceAsset
		if next.Info, err = s.checkInfo(next.Info); err != nil {
			return nil, err
		}
		var old asset.Asset
		if order, old, err = balance.Replace(order, models.SlotSource, next); err != nil {
			return nil, err
		}
		if !cfg.Whitelist.IsSourceAsset(next.Info) {
			return nil, fmt.Errorf("%w: source asset %s", errs.ErrNotWhitelisted, next.Info)
		}
		if next.Amount.IsZero() {
			return nil, fmt.Errorf("%w: new source asset", errs.ErrZeroAmount)
		}
		if req.NewDcaAmount == nil {
			return nil, fmt.Errorf("%w: new_dca_amount is required with new_source_asset", errs.ErrInvalidInput)
		}
		refunds = append(refunds, old)
		incoming = append(incoming, next)
		changed = append(changed, "source")
	}

	if req.NewTargetAssetInfo != nil {
		next, err := s.checkInfo(*req.NewTargetAssetInfo)
		if err != nil {
			return nil, err
		}
		var old asset.Asset
		if order, old, err = balance.Replace(order, models.SlotTarget, asset.Zero(next)); err != nil {
			return nil, err
		}
		refunds = append(refunds, old)
		changed = append(changed, "target")
	}

	if req.NewTipAsset != nil {
		next := *req.NewTipAsset
		if next.Info, err = s.checkInfo(next.Info); err != nil {
			return nil, err
		}
		var old asset.Asset
		if order, old, err = balance.Replace(order, models.SlotTip, next); err != nil {
			return nil, err
		}
		if !cfg.Whitelist.IsTipAsset(next.Info) {
			return nil, fmt.Errorf("%w: tip asset %s", errs.ErrNotWhitelisted, next.Info)
		}
		if next.Amount.IsZero() {
			return nil, fmt.Errorf("%w: new tip asset", errs.ErrZeroAmount)
		}
		refunds = append(refunds, old)
		incoming = append(incoming, next)
		changed = append(changed, "tip")
	}

	if req.NewInterval != nil {
		order.Interval = *req.NewInterval
		changed = append(changed, "interval")
	}

	if req.NewDcaAmount != nil {
		next := *req.NewDcaAmount
		if next.Info, err = s.checkInfo(next.Info); err != nil {
			return nil, err
		}
		if next.Info != order.Balance.Source.Info {
			return nil, fmt.Errorf("%w: new_dca_amount %s, source %s", errs.ErrAssetKindMismatch, next.Info, order.Balance.Source.Info)
		}
		if next.Amount.IsZero() {
			return nil, fmt.Errorf("%w: new_dca_amount", errs.ErrZeroAmount)
		}
		order.TrancheAmount = next
		changed = append(changed, "dca_amount")
	}

	if req.NewStartAt != nil {
		order.StartAt = *req.NewStartAt
		changed = append(changed, "start_at")
	}
	if req.NewMaxHops != nil {
		v := *req.NewMaxHops
		order.MaxHops = &v
		changed = append(changed, "max_hops")
	}
	if req.NewMaxSpread != nil {
		if err := checkSpread(req.NewMaxSpread); err != nil {
			return nil, err
		}
		v := *req.NewMaxSpread
		order.MaxSpread = &v
		changed = append(changed, "max_spread")
	}

	resp := &Response{}
	if err := s.collectFunds(ctx, env, info, resp, incoming...); err != nil {
		return nil, err
	}
	if err := refund(resp, order.Owner, refunds...); err != nil {
		return nil, err
	}
	if err := tx.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	resp.Events = append(resp.Events, contractEvent(env, "modify_dca_order").
		Add("dca_order_id", order.ID).
		Add("changed", strings.Join(changed, ",")))
	return resp, nil
}

// refund emits a transfer back to owner for every non-zero asset.
func refund(resp *Response, owner string, assets ...asset.Asset) error {
	for _, a := range assets {
		if a.Amount.IsZero() {
			continue
		}
		ins, err := ledger.Transfer(owner, a)
		if err != nil {
			return err
		}
		resp.transfer(ins)
	}
	return nil
}

func (s *OrderService) CancelOrder(ctx context.Context, tx store.Tx, env Env, info MessageInfo, req CancelOrderRequest) (*Response, error) {
	if err := rejectUnclaimed(info.Funds, nil); err != nil {
		return nil, err
	}
	order, err := ownedOrder(ctx, tx, req.ID, info.Sender)
	if err != nil {
		return nil, err
	}

	ids, err := tx.OwnerOrders(ctx, order.Owner)
	if err != nil {
		return nil, err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != order.ID {
			kept = append(kept, id)
		}
	}
	if err := tx.SaveOwnerOrders(ctx, order.Owner, kept); err != nil {
		return nil, err
	}
	if err := tx.DeleteOrder(ctx, order.ID); err != nil {
		return nil, err
	}

	resp := &Response{}
	b := order.Balance
	if err := refund(resp, order.Owner, b.Source, b.Tip, b.Gas, b.Target); err != nil {
		return nil, err
	}
	resp.Events = append(resp.Events, contractEvent(env, "cancel_dca_order").Add("id", order.ID))

	s.logger().Info("order cancelled", zap.String("order_id", order.ID), zap.Int("refunds", len(resp.Messages)))
	return resp, nil
}

func checkUserSlot(slot models.Slot) error {
	switch slot {
	case models.SlotSource, models.SlotTip, models.SlotGas:
		return nil
	case models.SlotSpent, models.SlotTarget:
		return fmt.Errorf("%w: %s is managed by purchases", errs.ErrDisallowedSlot, slot)
	default:
		return fmt.Errorf("%w: unknown balance slot %q", errs.ErrInvalidInput, slot)
	}
}

func (s *OrderService) Deposit(ctx context.Context, tx store.Tx, env Env, info MessageInfo, req SlotRequest) (*Response, error) {
	if err := checkUserSlot(req.Slot); err != nil {
		return nil, err
	}
	order, err := ownedOrder(ctx, tx, req.ID, info.Sender)
	if err != nil {
		return nil, err
	}
	a := req.Asset
	if a.Info, err = s.checkInfo(a.Info); err != nil {
		return nil, err
	}
	if order, err = balance.Credit(order, req.Slot, a); err != nil {
		return nil, err
	}

	resp := &Response{}
	if err := s.collectFunds(ctx, env, info, resp, a); err != nil {
		return nil, err
	}
	if err := tx.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	resp.Events = append(resp.Events, contractEvent(env, "deposit").
		Add("dca_order_id", order.ID).
		Add("slot", string(req.Slot)).
		Add("asset", a.String()))
	return resp, nil
}

func (s *OrderService) Withdraw(ctx context.Context, tx store.Tx, env Env, info MessageInfo, req SlotRequest) (*Response, error) {
	if err := rejectUnclaimed(info.Funds, nil); err != nil {
		return nil, err
	}
	if err := checkUserSlot(req.Slot); err != nil {
		return nil, err
	}
	order, err := ownedOrder(ctx, tx, req.ID, info.Sender)
	if err != nil {
		return nil, err
	}
	a := req.Asset
	if a.Info, err = s.checkInfo(a.Info); err != nil {
		return nil, err
	}
	if order, err = balance.Debit(order, req.Slot, a); err != nil {
		return nil, err
	}

	resp := &Response{}
	if err := refund(resp, order.Owner, a); err != nil {
		return nil, err
	}
	if err := tx.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	resp.Events = append(resp.Events, contractEvent(env, "withdraw").
		Add("dca_order_id", order.ID).
		Add("slot", string(req.Slot)).
		Add("asset", a.String()))
	return resp, nil
}

// UpdateConfig lets the contract owner change contract-wide defaults.
func (s *OrderService) UpdateConfig(ctx context.Context, tx store.Tx, env Env, info MessageInfo, req UpdateConfigRequest) (*Response, error) {
	if err := rejectUnclaimed(info.Funds, nil); err != nil {
		return nil, err
	}
	cfg, err := tx.Config(ctx)
	if err != nil {
		return nil, err
	}
	if info.Sender != cfg.Owner {
		return nil, fmt.Errorf("%w: only the contract owner may update config", errs.ErrUnauthorized)
	}

	if req.MaxHops != nil {
		cfg.MaxHops = *req.MaxHops
	}
	if req.PerHopFee != nil {
		cfg.PerHopFee = *req.PerHopFee
	}
	if req.WhitelistedSourceAssets != nil {
		if cfg.Whitelist.Source, err = s.checkInfos(req.WhitelistedSourceAssets); err != nil {
			return nil, err
		}
	}
	if req.WhitelistedTipAssets != nil {
		if cfg.Whitelist.Tip, err = s.checkInfos(req.WhitelistedTipAssets); err != nil {
			return nil, err
		}
	}
	if req.MaxSpread != nil {
		if err := checkSpread(req.MaxSpread); err != nil {
			return nil, err
		}
		cfg.MaxSpread = *req.MaxSpread
	}
	if req.RouterAddr != nil {
		addr, err := chain.NormalizeAddress(s.Prefix, *req.RouterAddr)
		if err != nil {
			return nil, err
		}
		cfg.RouterAddr = addr
	}
	if err := tx.SaveConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return &Response{Events: []models.Event{contractEvent(env, "update_config")}}, nil
}

func (s *OrderService) checkInfos(infos []asset.Info) ([]asset.Info, error) {
	out := make([]asset.Info, 0, len(infos))
	for _, info := range infos {
		checked, err := s.checkInfo(info)
		if err != nil {
			return nil, err
		}
		out = append(out, checked)
	}
	return out, nil
}

func (s *OrderService) GetOrder(ctx context.Context, tx store.Tx, id string) (models.Order, error) {
	return tx.Order(ctx, id)
}

// ListOrders returns owner's orders in creation order.
func (s *OrderService) ListOrders(ctx context.Context, tx store.Tx, env Env, owner string) ([]OrderInfo, error) {
	ids, err := tx.OwnerOrders(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]OrderInfo, 0, len(ids))
	for _, id := range ids {
		order, err := tx.Order(ctx, id)
		if err != nil {
			return nil, err
		}
		item := OrderInfo{Order: order}
		if src := order.Balance.Source.Info; !src.IsNative() {
			if item.TokenAllowance, err = s.Ledger.Allowance(ctx, owner, env.Contract, src.ContractAddr); err != nil {
				return nil, fmt.Errorf("query allowance: %w", err)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *OrderService) ListAllOrders(ctx context.Context, tx store.Tx, startAfter string, limit int) ([]models.Order, error) {
	return tx.Orders(ctx, startAfter, limit)
}

func (s *OrderService) GetConfig(ctx context.Context, tx store.Tx) (models.ContractConfig, error) {
	return tx.Config(ctx)
}

func (s *OrderService) LastSwapReply(ctx context.Context, tx store.Tx) (*models.SwapReply, error) {
	return tx.LastSwapReply(ctx)
}
