package host

import (
	"fmt"
	"strings"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/services"
)

// ExecuteMsg is the contract's execute message. Exactly one field is set.
type ExecuteMsg struct {
	CreateOrder     *services.CreateOrderRequest  `json:"create_dca_order,omitempty"`
	ModifyOrder     *services.ModifyOrderRequest  `json:"modify_dca_order,omitempty"`
	CancelOrder     *services.CancelOrderRequest  `json:"cancel_dca_order,omitempty"`
	Deposit         *services.SlotRequest         `json:"deposit,omitempty"`
	Withdraw        *services.SlotRequest         `json:"withdraw,omitempty"`
	PerformPurchase *services.PurchaseRequest     `json:"perform_dca_purchase,omitempty"`
	UpdateConfig    *services.UpdateConfigRequest `json:"update_config,omitempty"`
}

// Action names the variant that is set.
func (m ExecuteMsg) Action() (string, error) {
	var set []string
	for _, v := range []struct {
		name string
		ok   bool
	}{
		{"create_dca_order", m.CreateOrder != nil},
		{"modify_dca_order", m.ModifyOrder != nil},
		{"cancel_dca_order", m.CancelOrder != nil},
		{"deposit", m.Deposit != nil},
		{"withdraw", m.Withdraw != nil},
		{"perform_dca_purchase", m.PerformPurchase != nil},
		{"update_config", m.UpdateConfig != nil},
	} {
		if v.ok {
			set = append(set, v.name)
		}
	}
	switch len(set) {
	case 1:
		return set[0], nil
	case 0:
		return "", fmt.Errorf("%w: empty execute message", errs.ErrInvalidInput)
	default:
		return "", fmt.Errorf("%w: execute message sets %s", errs.ErrInvalidInput, strings.Join(set, ", "))
	}
}

// Tx is a signed call into the contract.
type Tx struct {
	Sender string      `json:"sender" validate:"required"`
	Funds  asset.Coins `json:"funds,omitempty"`
	Msg    ExecuteMsg  `json:"msg"`
}

// signedBody is what a SignedTx signs: the transaction and the sender's
// account sequence.
type signedBody struct {
	Tx
	Sequence uint64 `json:"sequence"`
}

// TxResult is what the node reports for an executed transaction. Failed
// transactions carry a non-zero Code and no state change.
type TxResult struct {
	Height    int64          `json:"height"`
	Hash      string         `json:"hash"`
	Code      uint32         `json:"code"`
	Codespace string         `json:"codespace,omitempty"`
	Log       string         `json:"log,omitempty"`
	Action    string         `json:"action"`
	Events    []models.Event `json:"events"`
	Data      any            `json:"data,omitempty"`
	Tx        Tx             `json:"tx"`
}

func (r TxResult) OK() bool { return r.Code == 0 }

var codes = map[errs.Kind]uint32{
	errs.KindInternal:      1,
	errs.KindValidation:    2,
	errs.KindState:         3,
	errs.KindAuthorization: 4,
	errs.KindProtocol:      5,
	errs.KindNotFound:      6,
}

func codeFor(kind errs.Kind) uint32 {
	if c, ok := codes[kind]; ok {
		return c
	}
	return 1
}
