// Package ledger describes asset movements as instructions and answers
// balance and allowance queries.
package ledger

import (
	"context"
	"fmt"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
)

// Instruction is a transfer the host executes on behalf of the contract.
type Instruction interface {
	isInstruction()
	String() string
}

// BankSend moves native coins out of the sender's bank account.
type BankSend struct {
	To    string      `json:"to_address"`
	Coins asset.Coins `json:"amount"`
}

// TokenTransfer moves token balance held by the sender.
type TokenTransfer struct {
	Token  string       `json:"contract_addr"`
	To     string       `json:"recipient"`
	Amount asset.Amount `json:"amount"`
}

// TokenTransferFrom spends an allowance Owner granted to the sender.
type TokenTransferFrom struct {
	Token  string       `json:"contract_addr"`
	Owner  string       `json:"owner"`
	To     string       `json:"recipient"`
	Amount asset.Amount `json:"amount"`
}

func (BankSend) isInstruction()          {}
func (TokenTransfer) isInstruction()     {}
func (TokenTransferFrom) isInstruction() {}

func (m BankSend) String() string {
	return fmt.Sprintf("bank_send %s -> %s", m.Coins, m.To)
}

func (m TokenTransfer) String() string {
	return fmt.Sprintf("transfer %s%s -> %s", m.Amount, m.Token, m.To)
}

func (m TokenTransferFrom) String() string {
	return fmt.Sprintf("transfer_from %s%s %s -> %s", m.Amount, m.Token, m.Owner, m.To)
}

// Transfer builds the instruction sending a to recipient.
func Transfer(recipient string, a asset.Asset) (Instruction, error) {
	switch a.Info.Kind {
	case asset.KindNative:
		return BankSend{To: recipient, Coins: asset.Coins{{Denom: a.Info.Denom, Amount: a.Amount}}}, nil
	case asset.KindToken:
		return TokenTransfer{Token: a.Info.ContractAddr, To: recipient, Amount: a.Amount}, nil
	default:
		return nil, fmt.Errorf("%w: transfer of unknown asset kind %d", errs.ErrInvalidInput, a.Info.Kind)
	}
}

// TransferFrom builds the instruction pulling a token asset from owner.
// Native coins cannot be pulled; they must be attached to the call.
func TransferFrom(owner, recipient string, a asset.Asset) (Instruction, error) {
	switch a.Info.Kind {
	case asset.KindToken:
		return TokenTransferFrom{Token: a.Info.ContractAddr, Owner: owner, To: recipient, Amount: a.Amount}, nil
	case asset.KindNative:
		return nil, fmt.Errorf("%w: native %s cannot be pulled with transfer_from", errs.ErrInvalidInput, a.Info.Denom)
	default:
		return nil, fmt.Errorf("%w: transfer_from of unknown asset kind %d", errs.ErrInvalidInput, a.Info.Kind)
	}
}

// Querier reads balances and allowances.
type Querier interface {
	BalanceOf(ctx context.Context, account string, info asset.Info) (asset.Amount, error)
	Allowance(ctx context.Context, owner, spender, token string) (asset.Amount, error)
}

// AssertAttached checks that a native asset was attached to the call with
// exactly the claimed amount. Token assets pass.
func AssertAttached(funds asset.Coins, a asset.Asset) error {
	if !a.Info.IsNative() {
		return nil
	}
	sent, err := funds.AmountOf(a.Info.Denom)
	if err != nil {
		return err
	}
	if !sent.Equal(a.Amount) {
		return fmt.Errorf("%w: %s claimed, %s%s attached", errs.ErrNativeBalanceMismatch, a, sent, a.Info.Denom)
	}
	return nil
}
