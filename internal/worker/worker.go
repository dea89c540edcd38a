// Package worker is the keeper bot: it finds orders whose next purchase is
// due and submits perform_dca_purchase for them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/host"
	"github.com/dauTT/astroport-dca/internal/metrics"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/router"
	"github.com/dauTT/astroport-dca/internal/routes"
	"github.com/dauTT/astroport-dca/internal/services"
)

// Node is the part of the node API the bot needs.
type Node interface {
	Status(ctx context.Context) (*chain.Status, error)
	Config(ctx context.Context) (*models.ContractConfig, error)
	Orders(ctx context.Context, startAfter string, limit int) ([]models.Order, error)
	Account(ctx context.Context, addr string) (*chain.Account, error)
	BroadcastSigned(ctx context.Context, tx *chain.SignedTx) (*chain.Tx, error)
}

// Locker dedupes submissions across bot replicas.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Worker struct {
	Node        Node
	Routes      *routes.Table
	Signer      *chain.Signer
	Interval    time.Duration
	PageSize    int
	WSEndpoints []string
	// WSFailoverThreshold is how many failed connects move to the next endpoint.
	WSFailoverThreshold int
	Lock                Locker
	LockTTL             time.Duration
	Logger              *zap.Logger

	trigger chan struct{}
}

func (w *Worker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

func (w *Worker) Run(ctx context.Context) {
	w.trigger = make(chan struct{}, 1)
	go w.RunWS(ctx)
	interval := w.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.SyncOnce(ctx); err != nil {
			w.logger().Warn("sync failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.trigger:
		}
	}
}

// poke asks the loop for an early sync.
func (w *Worker) poke() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// SyncOnce scans every order once and submits the due ones. It returns how
// many purchases the node accepted.
func (w *Worker) SyncOnce(ctx context.Context) (int, error) {
	st, err := w.Node.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("node status: %w", err)
	}
	cfg, err := w.Node.Config(ctx)
	if err != nil {
		return 0, fmt.Errorf("contract config: %w", err)
	}
	if st.PendingPurchase != nil {
		w.logger().Warn("purchase slot held, skipping sync", zap.String("order_id", st.PendingPurchase.OrderID))
		return 0, nil
	}

	pageSize := w.PageSize
	if pageSize <= 0 {
		pageSize = 30
	}
	accepted := 0
	startAfter := ""
	for {
		page, err := w.Node.Orders(ctx, startAfter, pageSize)
		if err != nil {
			return accepted, fmt.Errorf("list orders after %q: %w", startAfter, err)
		}
		for _, order := range page {
			hops, ok := w.Routes.Lookup(order.Balance.Source.Info, order.Balance.Target.Info)
			if !ok {
				w.logger().Debug("no route", zap.String("order_id", order.ID),
					zap.String("source", order.Balance.Source.Info.Key()),
					zap.String("target", order.Balance.Target.Info.Key()))
				continue
			}
			if !Due(st.Time, *cfg, order, len(hops)) {
				continue
			}
			if w.submit(ctx, st.Height, order, hops) {
				accepted++
			}
		}
		if len(page) < pageSize {
			break
		}
		startAfter = page[len(page)-1].ID
	}
	return accepted, nil
}

// Due reports whether a purchase over a route of hops would pass the
// contract's checks at time now.
func Due(now uint64, cfg models.ContractConfig, order models.Order, hops int) bool {
	b := order.Balance
	if hops == 0 || uint64(hops) > uint64(order.EffectiveMaxHops(cfg)) {
		return false
	}
	if now < order.StartAt {
		return false
	}
	if next := b.LastPurchase + order.Interval; next < b.LastPurchase || now < next {
		return false
	}
	if b.Source.Amount.Lt(order.TrancheAmount.Amount) {
		return false
	}
	cost, err := cfg.PerHopFee.Mul(asset.NewAmount(uint64(hops)))
	if err != nil {
		return false
	}
	return !b.Tip.Amount.Lt(cost)
}

func (w *Worker) submit(ctx context.Context, height int64, order models.Order, hops []router.SwapOperation) bool {
	log := w.logger().With(zap.String("order_id", order.ID), zap.Int64("height", height))
	if w.Lock != nil {
		key := fmt.Sprintf("dca:purchase:%s:%d", order.ID, height)
		ok, err := w.Lock.Acquire(ctx, key, w.LockTTL)
		if err != nil {
			log.Warn("acquire lock failed", zap.Error(err))
			return false
		}
		if !ok {
			log.Debug("purchase claimed by another bot")
			metrics.PurchaseSubmitted("skipped")
			return false
		}
	}

	acct, err := w.Node.Account(ctx, w.Signer.Address())
	if err != nil {
		log.Warn("load bot account failed", zap.Error(err))
		metrics.PurchaseSubmitted("error")
		return false
	}
	signed, err := w.Signer.Sign(chain.BroadcastRequest{
		Msg: host.ExecuteMsg{PerformPurchase: &services.PurchaseRequest{
			ID:   order.ID,
			Hops: hops,
		}},
		Sequence: acct.Sequence,
	})
	if err != nil {
		log.Error("sign purchase failed", zap.Error(err))
		metrics.PurchaseSubmitted("error")
		return false
	}

	tx, err := w.Node.BroadcastSigned(ctx, signed)
	var txErr *chain.TxError
	switch {
	case errors.As(err, &txErr):
		log.Info("purchase rejected", zap.String("hash", txErr.Hash), zap.String("kind", txErr.Codespace), zap.String("log", txErr.Log))
		metrics.PurchaseSubmitted("rejected")
		return false
	case err != nil:
		log.Warn("broadcast purchase failed", zap.Error(err))
		metrics.PurchaseSubmitted("error")
		return false
	}
	log.Info("purchase submitted", zap.String("hash", tx.Hash), zap.Int("hops", len(hops)))
	metrics.PurchaseSubmitted("ok")
	return true
}
