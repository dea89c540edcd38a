package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/models"
)

// Memory keeps contract state in process. Update works on a copy and swaps
// it in only when fn succeeds.
type Memory struct {
	mu    sync.RWMutex
	state memState
}

type memState struct {
	cfg     *models.ContractConfig
	orders  map[string]models.Order
	owners  map[string][]string
	pending *models.PendingPurchase
	reply   *models.SwapReply
	seq     uint64
	height  int64
	ledger  *ledger.State
	seqs    map[string]uint64
}

func NewMemory() *Memory {
	return &Memory{state: memState{
		orders: map[string]models.Order{},
		owners: map[string][]string{},
		seqs:   map[string]uint64{},
	}}
}

func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{state: m.state.clone(), readOnly: true})
}

func (m *Memory) Close() {}

func (s memState) clone() memState {
	out := memState{
		orders: make(map[string]models.Order, len(s.orders)),
		owners: make(map[string][]string, len(s.owners)),
		seqs:   make(map[string]uint64, len(s.seqs)),
		seq:    s.seq,
		height: s.height,
	}
	if s.cfg != nil {
		cfg := s.cfg.Clone()
		out.cfg = &cfg
	}
	for id, o := range s.orders {
		out.orders[id] = o.Clone()
	}
	for owner, ids := range s.owners {
		out.owners[owner] = append([]string(nil), ids...)
	}
	for addr, n := range s.seqs {
		out.seqs[addr] = n
	}
	if s.pending != nil {
		p := *s.pending
		out.pending = &p
	}
	if s.reply != nil {
		r := *s.reply
		r.Legs = append([]models.SwapLeg(nil), s.reply.Legs...)
		out.reply = &r
	}
	if s.ledger != nil {
		st := cloneLedger(*s.ledger)
		out.ledger = &st
	}
	return out
}

func cloneLedger(st ledger.State) ledger.State {
	return ledger.State{
		Balances:   append([]ledger.Holding(nil), st.Balances...),
		Allowances: append([]ledger.Grant(nil), st.Allowances...),
	}
}

type memTx struct {
	state    memState
	readOnly bool
}

var errReadOnly = fmt.Errorf("%w: write in read-only transaction", errs.ErrInvalidInput)

func (t *memTx) write() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) Config(ctx context.Context) (models.ContractConfig, error) {
	if t.state.cfg == nil {
		return models.ContractConfig{}, errs.ErrConfigNotFound
	}
	return t.state.cfg.Clone(), nil
}

func (t *memTx) SaveConfig(ctx context.Context, cfg models.ContractConfig) error {
	if err := t.write(); err != nil {
		return err
	}
	c := cfg.Clone()
	t.state.cfg = &c
	return nil
}

func (t *memTx) Order(ctx context.Context, id string) (models.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", errs.ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

func (t *memTx) SaveOrder(ctx context.Context, order models.Order) error {
	if err := t.write(); err != nil {
		return err
	}
	t.state.orders[order.ID] = order.Clone()
	return nil
}

func (t *memTx) DeleteOrder(ctx context.Context, id string) error {
	if err := t.write(); err != nil {
		return err
	}
	delete(t.state.orders, id)
	return nil
}

func (t *memTx) Orders(ctx context.Context, startAfter string, limit int) ([]models.Order, error) {
	ids := make([]string, 0, len(t.state.orders))
	for id := range t.state.orders {
		if startAfter != "" && !idLess(startAfter, id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })

	limit = clampLimit(limit)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.state.orders[id].Clone())
	}
	return out, nil
}

func (t *memTx) OwnerOrders(ctx context.Context, owner string) ([]string, error) {
	return append([]string(nil), t.state.owners[owner]...), nil
}

func (t *memTx) SaveOwnerOrders(ctx context.Context, owner string, ids []string) error {
	if err := t.write(); err != nil {
		return err
	}
	if len(ids) == 0 {
		delete(t.state.owners, owner)
		return nil
	}
	t.state.owners[owner] = append([]string(nil), ids...)
	return nil
}

func (t *memTx) PendingPurchase(ctx context.Context) (*models.PendingPurchase, error) {
	if t.state.pending == nil {
		return nil, nil
	}
	p := *t.state.pending
	return &p, nil
}

func (t *memTx) SetPendingPurchase(ctx context.Context, p models.PendingPurchase) error {
	if err := t.write(); err != nil {
		return err
	}
	t.state.pending = &p
	return nil
}

func (t *memTx) ClearPendingPurchase(ctx context.Context) error {
	if err := t.write(); err != nil {
		return err
	}
	t.state.pending = nil
	return nil
}

func (t *memTx) LastSwapReply(ctx context.Context) (*models.SwapReply, error) {
	if t.state.reply == nil {
		return nil, nil
	}
	r := *t.state.reply
	r.Legs = append([]models.SwapLeg(nil), t.state.reply.Legs...)
	return &r, nil
}

func (t *memTx) SaveSwapReply(ctx context.Context, reply models.SwapReply) error {
	if err := t.write(); err != nil {
		return err
	}
	reply.Legs = append([]models.SwapLeg(nil), reply.Legs...)
	t.state.reply = &reply
	return nil
}

func (t *memTx) NextOrderSeq(ctx context.Context) (uint64, error) {
	if err := t.write(); err != nil {
		return 0, err
	}
	t.state.seq++
	return t.state.seq, nil
}

func (t *memTx) SyncHeight(ctx context.Context) (int64, error) {
	return t.state.height, nil
}

func (t *memTx) SetSyncHeight(ctx context.Context, height int64) error {
	if err := t.write(); err != nil {
		return err
	}
	t.state.height = height
	return nil
}

func (t *memTx) LedgerState(ctx context.Context) (*ledger.State, error) {
	if t.state.ledger == nil {
		return nil, nil
	}
	st := cloneLedger(*t.state.ledger)
	return &st, nil
}

func (t *memTx) SaveLedgerState(ctx context.Context, st ledger.State) error {
	if err := t.write(); err != nil {
		return err
	}
	c := cloneLedger(st)
	t.state.ledger = &c
	return nil
}

func (t *memTx) AccountSequence(ctx context.Context, addr string) (uint64, error) {
	return t.state.seqs[addr], nil
}

func (t *memTx) SetAccountSequence(ctx context.Context, addr string, seq uint64) error {
	if err := t.write(); err != nil {
		return err
	}
	t.state.seqs[addr] = seq
	return nil
}
