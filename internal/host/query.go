package host

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/services"
	"github.com/dauTT/astroport-dca/internal/store"
)

// Status describes the node at the current block.
type Status struct {
	Height          int64                   `json:"height"`
	Time            uint64                  `json:"time"`
	Contract        string                  `json:"contract"`
	PendingPurchase *models.PendingPurchase `json:"pending_purchase,omitempty"`
}

func (h *Host) Status(ctx context.Context) (Status, error) {
	h.mu.Lock()
	env := h.env()
	h.mu.Unlock()

	st := Status{Height: env.Height, Time: env.Time, Contract: env.Contract}
	err := h.store.View(ctx, func(tx store.Tx) error {
		var err error
		st.PendingPurchase, err = tx.PendingPurchase(ctx)
		return err
	})
	return st, err
}

func (h *Host) Config(ctx context.Context) (cfg models.ContractConfig, err error) {
	err = h.store.View(ctx, func(tx store.Tx) error {
		cfg, err = h.orders.GetConfig(ctx, tx)
		return err
	})
	return cfg, err
}

func (h *Host) Order(ctx context.Context, id string) (order models.Order, err error) {
	err = h.store.View(ctx, func(tx store.Tx) error {
		order, err = h.orders.GetOrder(ctx, tx, id)
		return err
	})
	return order, err
}

func (h *Host) Orders(ctx context.Context, startAfter string, limit int) (orders []models.Order, err error) {
	err = h.store.View(ctx, func(tx store.Tx) error {
		orders, err = h.orders.ListAllOrders(ctx, tx, startAfter, limit)
		return err
	})
	return orders, err
}

func (h *Host) OwnerOrders(ctx context.Context, owner string) (infos []services.OrderInfo, err error) {
	if owner, err = chain.NormalizeAddress(h.prefix, owner); err != nil {
		return nil, err
	}
	env := services.Env{Contract: h.contract}
	err = h.store.View(ctx, func(tx store.Tx) error {
		infos, err = h.orders.ListOrders(ctx, tx, env, owner)
		return err
	})
	return infos, err
}

// LastSwapReply returns nil before the first purchase settles.
func (h *Host) LastSwapReply(ctx context.Context) (reply *models.SwapReply, err error) {
	err = h.store.View(ctx, func(tx store.Tx) error {
		reply, err = h.orders.LastSwapReply(ctx, tx)
		return err
	})
	return reply, err
}

func (h *Host) Balances(addr string) ([]asset.Asset, error) {
	addr, err := chain.NormalizeAddress(h.prefix, addr)
	if err != nil {
		return nil, err
	}
	return h.ledger.Balances(addr), nil
}

// AccountSequence is the sequence the next signed transaction from addr
// must carry.
func (h *Host) AccountSequence(ctx context.Context, addr string) (seq uint64, err error) {
	if addr, err = chain.NormalizeAddress(h.prefix, addr); err != nil {
		return 0, err
	}
	err = h.store.View(ctx, func(tx store.Tx) error {
		seq, err = tx.AccountSequence(ctx, addr)
		return err
	})
	return seq, err
}

// Mint credits addr on the simulated ledger. Serialized with transactions so
// a rollback never discards it.
func (h *Host) Mint(ctx context.Context, addr string, a asset.Asset) error {
	addr, err := chain.NormalizeAddress(h.prefix, addr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	err = h.persistLedger(ctx, func() error {
		return h.ledger.Mint(addr, a)
	})
	if err != nil {
		return fmt.Errorf("mint %s: %w", a, err)
	}
	h.logger.Info("minted", zap.String("account", addr), zap.String("asset", a.String()))
	return nil
}

// Approve sets a token allowance on the simulated ledger.
func (h *Host) Approve(ctx context.Context, token, owner, spender string, amount asset.Amount) error {
	var err error
	for _, p := range []*string{&token, &owner, &spender} {
		if *p, err = chain.NormalizeAddress(h.prefix, *p); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.persistLedger(ctx, func() error {
		h.ledger.Approve(token, owner, spender, amount)
		return nil
	})
}

// persistLedger applies change to the ledger and saves the result. The
// ledger is rolled back when either step fails.
func (h *Host) persistLedger(ctx context.Context, change func() error) error {
	snap := h.ledger.Snapshot()
	err := h.store.Update(ctx, func(tx store.Tx) error {
		if err := change(); err != nil {
			return err
		}
		return tx.SaveLedgerState(ctx, h.ledger.State())
	})
	if err != nil {
		h.ledger.Restore(snap)
	}
	return err
}
