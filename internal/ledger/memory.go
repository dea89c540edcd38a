package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/models"
)

// Memory is an in-process bank and token ledger.
type Memory struct {
	mu         sync.Mutex
	balances   map[asset.Info]map[string]asset.Amount
	allowances map[allowanceKey]asset.Amount
}

type allowanceKey struct {
	token, owner, spender string
}

// Snapshot is a point-in-time copy of a Memory ledger.
type Snapshot struct {
	balances   map[asset.Info]map[string]asset.Amount
	allowances map[allowanceKey]asset.Amount
}

func NewMemory() *Memory {
	return &Memory{
		balances:   map[asset.Info]map[string]asset.Amount{},
		allowances: map[allowanceKey]asset.Amount{},
	}
}

func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{balances: copyBalances(m.balances), allowances: copyAllowances(m.allowances)}
}

func (m *Memory) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = copyBalances(s.balances)
	m.allowances = copyAllowances(s.allowances)
}

func copyBalances(in map[asset.Info]map[string]asset.Amount) map[asset.Info]map[string]asset.Amount {
	out := make(map[asset.Info]map[string]asset.Amount, len(in))
	for info, holders := range in {
		h := make(map[string]asset.Amount, len(holders))
		for k, v := range holders {
			h[k] = v
		}
		out[info] = h
	}
	return out
}

func copyAllowances(in map[allowanceKey]asset.Amount) map[allowanceKey]asset.Amount {
	out := make(map[allowanceKey]asset.Amount, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Memory) BalanceOf(ctx context.Context, account string, info asset.Info) (asset.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[info][account], nil
}

func (m *Memory) Allowance(ctx context.Context, owner, spender, token string) (asset.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[allowanceKey{token: token, owner: owner, spender: spender}], nil
}

// Balances lists every non-zero holding of account, sorted by asset key.
func (m *Memory) Balances(account string) []asset.Asset {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []asset.Asset
	for info, holders := range m.balances {
		if amt := holders[account]; !amt.IsZero() {
			out = append(out, asset.New(info, amt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.Key() < out[j].Info.Key() })
	return out
}

// Mint credits account out of thin air. Used for genesis and tests.
func (m *Memory) Mint(account string, a asset.Asset) error {
	if err := a.Info.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credit(a.Info, account, a.Amount)
}

// Approve sets the allowance spender may draw from owner's token balance.
func (m *Memory) Approve(token, owner, spender string, amount asset.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{token: token, owner: owner, spender: spender}] = amount
}

// Send moves attached native coins from one account to another.
func (m *Memory) Send(ctx context.Context, from, to string, coins asset.Coins) ([]models.Event, error) {
	if len(coins) == 0 {
		return nil, nil
	}
	return m.Execute(ctx, from, BankSend{To: to, Coins: coins})
}

// Execute applies ins as if sender had signed it. A failed instruction
// leaves the ledger unchanged.
func (m *Memory) Execute(ctx context.Context, sender string, ins Instruction) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := Snapshot{balances: copyBalances(m.balances), allowances: copyAllowances(m.allowances)}
	events, err := m.apply(sender, ins)
	if err != nil {
		m.balances, m.allowances = saved.balances, saved.allowances
		return nil, err
	}
	return events, nil
}

func (m *Memory) apply(sender string, ins Instruction) ([]models.Event, error) {
	switch msg := ins.(type) {
	case BankSend:
		for _, c := range msg.Coins {
			if err := m.move(asset.NativeInfo(c.Denom), sender, msg.To, c.Amount); err != nil {
				return nil, err
			}
		}
		return []models.Event{models.NewEvent("transfer").
			Add("recipient", msg.To).
			Add("sender", sender).
			Add("amount", msg.Coins.String())}, nil

	case TokenTransfer:
		if err := m.move(asset.TokenInfo(msg.Token), sender, msg.To, msg.Amount); err != nil {
			return nil, err
		}
		return []models.Event{models.NewEvent("wasm").
			Add("_contract_address", msg.Token).
			Add("action", "transfer").
			Add("from", sender).
			Add("to", msg.To).
			Add("amount", msg.Amount.String())}, nil

	case TokenTransferFrom:
		key := allowanceKey{token: msg.Token, owner: msg.Owner, spender: sender}
		left, err := m.allowances[key].Sub(msg.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %s allowance of %s to %s below %s",
				errs.ErrTokenAllowanceInsufficient, msg.Token, msg.Owner, sender, msg.Amount)
		}
		if err := m.move(asset.TokenInfo(msg.Token), msg.Owner, msg.To, msg.Amount); err != nil {
			return nil, err
		}
		m.allowances[key] = left
		return []models.Event{models.NewEvent("wasm").
			Add("_contract_address", msg.Token).
			Add("action", "transfer_from").
			Add("from", msg.Owner).
			Add("to", msg.To).
			Add("by", sender).
			Add("amount", msg.Amount.String())}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported instruction %T", errs.ErrInvalidInput, ins)
	}
}

func (m *Memory) move(info asset.Info, from, to string, amount asset.Amount) error {
	if amount.IsZero() {
		return nil
	}
	holders := m.balances[info]
	left, err := holders[from].Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s holds %s%s, needs %s", errs.ErrInsufficientBalance, from, holders[from], info, amount)
	}
	holders[from] = left
	return m.credit(info, to, amount)
}

func (m *Memory) credit(info asset.Info, account string, amount asset.Amount) error {
	holders, ok := m.balances[info]
	if !ok {
		holders = map[string]asset.Amount{}
		m.balances[info] = holders
	}
	sum, err := holders[account].Add(amount)
	if err != nil {
		return err
	}
	holders[account] = sum
	return nil
}

// State is the serializable form of a Memory ledger. Entries are sorted so
// equal ledgers encode to equal documents.
type State struct {
	Balances   []Holding `json:"balances"`
	Allowances []Grant   `json:"allowances"`
}

type Holding struct {
	Account string      `json:"account"`
	Asset   asset.Asset `json:"asset"`
}

type Grant struct {
	Token   string       `json:"token"`
	Owner   string       `json:"owner"`
	Spender string       `json:"spender"`
	Amount  asset.Amount `json:"amount"`
}

// State exports every non-zero balance and allowance.
func (m *Memory) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{Balances: []Holding{}, Allowances: []Grant{}}
	for info, holders := range m.balances {
		for account, amt := range holders {
			if !amt.IsZero() {
				st.Balances = append(st.Balances, Holding{Account: account, Asset: asset.New(info, amt)})
			}
		}
	}
	for k, amt := range m.allowances {
		if !amt.IsZero() {
			st.Allowances = append(st.Allowances, Grant{Token: k.token, Owner: k.owner, Spender: k.spender, Amount: amt})
		}
	}
	sort.Slice(st.Balances, func(i, j int) bool {
		a, b := st.Balances[i], st.Balances[j]
		if a.Asset.Info.Key() != b.Asset.Info.Key() {
			return a.Asset.Info.Key() < b.Asset.Info.Key()
		}
		return a.Account < b.Account
	})
	sort.Slice(st.Allowances, func(i, j int) bool {
		a, b := st.Allowances[i], st.Allowances[j]
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		return a.Spender < b.Spender
	})
	return st
}

// Load replaces the ledger contents with st.
func (m *Memory) Load(st State) error {
	balances := map[asset.Info]map[string]asset.Amount{}
	for _, h := range st.Balances {
		if err := h.Asset.Info.Validate(); err != nil {
			return fmt.Errorf("holding of %s: %w", h.Account, err)
		}
		holders, ok := balances[h.Asset.Info]
		if !ok {
			holders = map[string]asset.Amount{}
			balances[h.Asset.Info] = holders
		}
		sum, err := holders[h.Account].Add(h.Asset.Amount)
		if err != nil {
			return err
		}
		holders[h.Account] = sum
	}
	allowances := make(map[allowanceKey]asset.Amount, len(st.Allowances))
	for _, g := range st.Allowances {
		allowances[allowanceKey{token: g.Token, owner: g.Owner, spender: g.Spender}] = g.Amount
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances, m.allowances = balances, allowances
	return nil
}
