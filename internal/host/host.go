// Package host runs the DCA contract the way a chain would: every
// transaction executes atomically against the store and the ledger, follow-up
// messages run in order, and a purchase is reconciled once its swap and tip
// have settled.
package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/metrics"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/router"
	"github.com/dauTT/astroport-dca/internal/services"
	"github.com/dauTT/astroport-dca/internal/store"
)

type Options struct {
	Store    store.Store
	Ledger   *ledger.Memory
	Routers  []router.Executor
	Contract string
	Prefix   string
	IDMode   services.IDMode
	Clock    Clock
	Logger   *zap.Logger
}

type Host struct {
	store     store.Store
	ledger    *ledger.Memory
	routers   map[string]router.Executor
	contract  string
	prefix    string
	orders    *services.OrderService
	purchases *services.PurchaseService
	clock     Clock
	logger    *zap.Logger

	// mu serializes transactions and block commits.
	mu     sync.Mutex
	height int64
	txSeq  uint64

	subMu   sync.Mutex
	subs    map[uint64]chan TxResult
	nextSub uint64
}

// New restores the block height and the ledger persisted in the store. On
// first start the ledger passed in is saved as the genesis state; later
// starts replace its contents with the saved state.
func New(ctx context.Context, opts Options) (*Host, error) {
	if opts.Store == nil || opts.Ledger == nil {
		return nil, errors.New("host: store and ledger are required")
	}
	contract, err := chain.NormalizeAddress(opts.Prefix, opts.Contract)
	if err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IDMode == "" {
		opts.IDMode = services.IDSequence
	}

	h := &Host{
		store:    opts.Store,
		ledger:   opts.Ledger,
		routers:  make(map[string]router.Executor, len(opts.Routers)),
		contract: contract,
		prefix:   opts.Prefix,
		orders: &services.OrderService{
			Ledger: opts.Ledger,
			Prefix: opts.Prefix,
			IDMode: opts.IDMode,
			Logger: opts.Logger.Named("orders"),
		},
		purchases: &services.PurchaseService{Ledger: opts.Ledger, Logger: opts.Logger.Named("purchases")},
		clock:     opts.Clock,
		logger:    opts.Logger,
		subs:      map[uint64]chan TxResult{},
	}
	for _, r := range opts.Routers {
		h.routers[r.Address()] = r
	}

	if err := h.store.View(ctx, func(tx store.Tx) error {
		h.height, err = tx.SyncHeight(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load block height: %w", err)
	}
	if err := h.restoreLedger(ctx); err != nil {
		return nil, err
	}
	if h.height == 0 {
		h.height = 1
	}
	metrics.SetBlockHeight(h.height)
	return h, nil
}

// Instantiate stores the initial contract config. An existing config is kept
// and false is returned.
func (h *Host) Instantiate(ctx context.Context, cfg models.ContractConfig) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	created := false
	err := h.store.Update(ctx, func(tx store.Tx) error {
		_, err := tx.Config(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.ErrConfigNotFound) {
			return err
		}
		created = true
		return tx.SaveConfig(ctx, cfg)
	})
	if err != nil {
		return false, err
	}
	if created {
		h.logger.Info("contract instantiated", zap.String("contract", h.contract), zap.String("owner", cfg.Owner))
	}
	return created, nil
}

func (h *Host) restoreLedger(ctx context.Context) error {
	return h.store.Update(ctx, func(tx store.Tx) error {
		saved, err := tx.LedgerState(ctx)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		if saved == nil {
			h.logger.Info("saving genesis ledger")
			return tx.SaveLedgerState(ctx, h.ledger.State())
		}
		if err := h.ledger.Load(*saved); err != nil {
			return fmt.Errorf("restore ledger: %w", err)
		}
		h.logger.Info("ledger restored", zap.Int("balances", len(saved.Balances)), zap.Int("allowances", len(saved.Allowances)))
		return nil
	})
}

func (h *Host) Contract() string { return h.contract }

func (h *Host) Height() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.height
}

func (h *Host) env() services.Env {
	return services.Env{
		Height:   h.height,
		Time:     uint64(h.clock.Now().Unix()),
		Contract: h.contract,
	}
}

// Execute runs tx inside the current block. A failed transaction leaves the
// store and the ledger as they were and is reported with a non-zero code.
func (h *Host) Execute(ctx context.Context, tx Tx) (TxResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.execute(ctx, tx)
}

// ExecuteSigned verifies the envelope and executes its body as the account
// that signed it. The body must name that account as sender and carry its
// current sequence. The sequence is consumed even when the transaction
// fails, so a signed transaction runs at most once.
func (h *Host) ExecuteSigned(ctx context.Context, env chain.SignedTx) (TxResult, error) {
	signer, err := env.Verify(h.prefix)
	if err != nil {
		return TxResult{}, err
	}
	var body signedBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return TxResult{}, fmt.Errorf("%w: decode tx body: %v", errs.ErrInvalidInput, err)
	}
	claimed, err := chain.NormalizeAddress(h.prefix, body.Sender)
	if err != nil {
		return TxResult{}, err
	}
	if claimed != signer {
		h.logger.Warn("tx sender does not match signer", zap.String("signer", signer), zap.String("sender", claimed))
		return TxResult{}, fmt.Errorf("%w: tx signed by %s names sender %s", errs.ErrUnauthorized, signer, claimed)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.useSequence(ctx, signer, body.Sequence); err != nil {
		return TxResult{}, err
	}
	return h.execute(ctx, body.Tx)
}

func (h *Host) useSequence(ctx context.Context, addr string, seq uint64) error {
	return h.store.Update(ctx, func(tx store.Tx) error {
		want, err := tx.AccountSequence(ctx, addr)
		if err != nil {
			return err
		}
		if seq != want {
			return fmt.Errorf("%w: account %s is at sequence %d, tx has %d", errs.ErrSequenceMismatch, addr, want, seq)
		}
		return tx.SetAccountSequence(ctx, addr, want+1)
	})
}

func (h *Host) execute(ctx context.Context, tx Tx) (TxResult, error) {
	start := time.Now()
	h.txSeq++
	hash, err := txHash(h.height, h.txSeq, tx)
	if err != nil {
		h.logger.Error("hash tx failed", zap.String("sender", tx.Sender), zap.Error(err))
		return TxResult{}, fmt.Errorf("hash tx: %w", err)
	}
	res := TxResult{Height: h.height, Hash: hash, Tx: tx}
	action, err := tx.Msg.Action()
	res.Action = action
	if err == nil {
		res.Events, res.Data, err = h.run(ctx, tx)
	}

	kind := "ok"
	log := h.logger.With(
		zap.String("hash", res.Hash),
		zap.Int64("height", res.Height),
		zap.String("action", action),
		zap.String("sender", tx.Sender))
	if err != nil {
		k := errs.KindOf(err)
		kind = string(k)
		res.Code = codeFor(k)
		res.Codespace = kind
		res.Log = err.Error()
		res.Events = nil
		res.Data = nil
		if k == errs.KindProtocol {
			metrics.ProtocolError()
			log.Error("tx failed reconciliation", zap.Error(err))
		} else {
			log.Info("tx rejected", zap.String("kind", kind), zap.Error(err))
		}
	} else {
		log.Info("tx executed", zap.Int("events", len(res.Events)))
	}
	metrics.ObserveTx(action, kind, time.Since(start))

	h.publish(res)
	return res, err
}

func (h *Host) run(ctx context.Context, tx Tx) ([]models.Event, any, error) {
	sender, err := chain.NormalizeAddress(h.prefix, tx.Sender)
	if err != nil {
		return nil, nil, err
	}
	env := h.env()
	info := services.MessageInfo{Sender: sender, Funds: tx.Funds}

	var (
		events []models.Event
		data   any
	)
	snap := h.ledger.Snapshot()
	err = h.store.Update(ctx, func(stx store.Tx) error {
		evs, err := h.ledger.Send(ctx, sender, h.contract, tx.Funds)
		if err != nil {
			return fmt.Errorf("attach funds: %w", err)
		}
		events = append(events, evs...)

		resp, err := h.dispatch(ctx, stx, env, info, tx.Msg)
		if err != nil {
			return err
		}
		events = append(events, resp.Events...)
		data = resp.Data

		evs, err = h.settle(ctx, stx, env, resp.Messages)
		if err != nil {
			return err
		}
		events = append(events, evs...)
		return stx.SaveLedgerState(ctx, h.ledger.State())
	})
	if err != nil {
		h.ledger.Restore(snap)
		return nil, nil, err
	}
	return events, data, nil
}

func (h *Host) dispatch(ctx context.Context, stx store.Tx, env services.Env, info services.MessageInfo, msg ExecuteMsg) (*services.Response, error) {
	switch {
	case msg.CreateOrder != nil:
		return h.orders.CreateOrder(ctx, stx, env, info, *msg.CreateOrder)
	case msg.ModifyOrder != nil:
		return h.orders.ModifyOrder(ctx, stx, env, info, *msg.ModifyOrder)
	case msg.CancelOrder != nil:
		return h.orders.CancelOrder(ctx, stx, env, info, *msg.CancelOrder)
	case msg.Deposit != nil:
		return h.orders.Deposit(ctx, stx, env, info, *msg.Deposit)
	case msg.Withdraw != nil:
		return h.orders.Withdraw(ctx, stx, env, info, *msg.Withdraw)
	case msg.PerformPurchase != nil:
		return h.purchases.InitiatePurchase(ctx, stx, env, info, *msg.PerformPurchase)
	case msg.UpdateConfig != nil:
		return h.orders.UpdateConfig(ctx, stx, env, info, *msg.UpdateConfig)
	}
	return nil, fmt.Errorf("%w: empty execute message", errs.ErrInvalidInput)
}

// settle executes follow-up messages in order. When one of them was a swap,
// the purchase is reconciled after all of them have run so the gas balance
// reflects the tip as well.
func (h *Host) settle(ctx context.Context, stx store.Tx, env services.Env, msgs []services.Message) ([]models.Event, error) {
	events, swapEvents, swapped, err := h.execMessages(ctx, msgs)
	if err != nil || !swapped {
		return events, err
	}

	reply, err := h.purchases.ReconcilePurchase(ctx, stx, env, swapEvents)
	if err != nil {
		return nil, err
	}
	events = append(events, reply.Events...)
	evs, _, swapped, err := h.execMessages(ctx, reply.Messages)
	if err != nil {
		return nil, err
	}
	if swapped {
		return nil, fmt.Errorf("%w: reconciliation issued a swap", errs.ErrInvalidSwapTrace)
	}
	return append(events, evs...), nil
}

func (h *Host) execMessages(ctx context.Context, msgs []services.Message) (events, swapEvents []models.Event, swapped bool, err error) {
	for i, m := range msgs {
		var evs []models.Event
		switch {
		case m.Transfer != nil:
			if evs, err = h.ledger.Execute(ctx, h.contract, m.Transfer); err != nil {
				return nil, nil, false, fmt.Errorf("message %d %s: %w", i, m.Transfer, err)
			}
		case m.Swap != nil:
			if evs, err = h.swap(ctx, *m.Swap); err != nil {
				return nil, nil, false, fmt.Errorf("message %d swap: %w", i, err)
			}
			swapEvents = append(swapEvents, evs...)
			swapped = true
		default:
			return nil, nil, false, fmt.Errorf("%w: message %d is empty", errs.ErrInvalidInput, i)
		}
		events = append(events, evs...)
	}
	return events, swapEvents, swapped, nil
}

func (h *Host) swap(ctx context.Context, req router.SwapRequest) ([]models.Event, error) {
	ex, ok := h.routers[req.Router]
	if !ok {
		return nil, fmt.Errorf("%w: no router at %s", errs.ErrInvalidInput, req.Router)
	}
	events, err := h.ledger.Send(ctx, h.contract, req.Router, req.Funds)
	if err != nil {
		return nil, fmt.Errorf("attach swap funds: %w", err)
	}
	evs, err := ex.ExecuteSwap(ctx, h.contract, req)
	if err != nil {
		return nil, err
	}
	return append(events, evs...), nil
}

// CommitBlock closes the current block and persists its height.
func (h *Host) CommitBlock(ctx context.Context) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.height + 1
	if err := h.store.Update(ctx, func(tx store.Tx) error {
		return tx.SetSyncHeight(ctx, next)
	}); err != nil {
		return h.height, err
	}
	h.height = next
	metrics.SetBlockHeight(next)
	return next, nil
}

// Run commits a block every blockTime until ctx is done.
func (h *Host) Run(ctx context.Context, blockTime time.Duration) {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.CommitBlock(ctx); err != nil {
				h.logger.Warn("commit block failed", zap.Error(err))
			}
		}
	}
}

// Subscribe streams every executed transaction. Slow subscribers miss
// results rather than stall the node.
func (h *Host) Subscribe(buffer int) (<-chan TxResult, func()) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	id := h.nextSub
	h.nextSub++
	ch := make(chan TxResult, buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.subMu.Lock()
			defer h.subMu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *Host) publish(res TxResult) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- res:
		default:
			h.logger.Warn("subscriber lagging, dropped tx", zap.Uint64("subscriber", id), zap.String("hash", res.Hash))
		}
	}
}

func txHash(height int64, seq uint64, tx Tx) (string, error) {
	raw, err := json.Marshal(struct {
		Height int64  `json:"height"`
		Seq    uint64 `json:"seq"`
		Tx     Tx     `json:"tx"`
	}{height, seq, tx})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}
