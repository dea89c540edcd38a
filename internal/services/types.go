package services

import (
	"github.com/shopspring/decimal"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/router"
)

// Env is the block context a message executes in.
type Env struct {
	Height   int64
	Time     uint64
	Contract string
}

// MessageInfo identifies the caller and the native coins attached to the call.
type MessageInfo struct {
	Sender string
	Funds  asset.Coins
}

// Message is one follow-up action the host executes after a handler returns.
// Exactly one field is set. A Swap is dispatched to the router and reconciled
// once it succeeds.
type Message struct {
	Transfer ledger.Instruction  `json:"transfer,omitempty"`
	Swap     *router.SwapRequest `json:"swap,omitempty"`
}

// Response is what a handler hands back to the host.
type Response struct {
	Messages []Message     `json:"messages"`
	Events   []models.Event `json:"events"`
	Data     any            `json:"data,omitempty"`
}

func (r *Response) transfer(ins ledger.Instruction) {
	r.Messages = append(r.Messages, Message{Transfer: ins})
}

func (r *Response) swap(req router.SwapRequest) {
	r.Messages = append(r.Messages, Message{Swap: &req})
}

// Transfers lists only the transfer instructions, in order.
func (r *Response) Transfers() []ledger.Instruction {
	var out []ledger.Instruction
	for _, m := range r.Messages {
		if m.Transfer != nil {
			out = append(out, m.Transfer)
		}
	}
	return out
}

func contractEvent(env Env, action string) models.Event {
	return models.NewEvent("wasm").
		Add("_contract_address", env.Contract).
		Add("action", action)
}

type CreateOrderRequest struct {
	StartAt    uint64           `json:"start_at"`
	Interval   uint64           `json:"interval"`
	DcaAmount  asset.Asset      `json:"dca_amount"`
	MaxHops    *uint32          `json:"max_hops,omitempty"`
	MaxSpread  *decimal.Decimal `json:"max_spread,omitempty"`
	Source     asset.Asset      `json:"source"`
	Tip        asset.Asset      `json:"tip"`
	Gas        asset.Asset      `json:"gas"`
	TargetInfo asset.Info       `json:"target_info"`
}

// ModifyOrderRequest changes any subset of an order. Nil fields are left
// untouched.
type ModifyOrderRequest struct {
	ID                 string           `json:"id"`
	NewSourceAsset     *asset.Asset     `json:"new_source_asset,omitempty"`
	NewTargetAssetInfo *asset.Info      `json:"new_target_asset_info,omitempty"`
	NewTipAsset        *asset.Asset     `json:"new_tip_asset,omitempty"`
	NewInterval        *uint64          `json:"new_interval,omitempty"`
	NewDcaAmount       *asset.Asset     `json:"new_dca_amount,omitempty"`
	NewStartAt         *uint64          `json:"new_start_at,omitempty"`
	NewMaxHops         *uint32          `json:"new_max_hops,omitempty"`
	NewMaxSpread       *decimal.Decimal `json:"new_max_spread,omitempty"`
}

type CancelOrderRequest struct {
	ID string `json:"id"`
}

// SlotRequest moves one asset into or out of a single balance slot.
type SlotRequest struct {
	ID    string      `json:"dca_order_id"`
	Slot  models.Slot `json:"slot"`
	Asset asset.Asset `json:"asset"`
}

type PurchaseRequest struct {
	ID   string                 `json:"dca_order_id"`
	Hops []router.SwapOperation `json:"hops"`
}

type UpdateConfigRequest struct {
	MaxHops                 *uint32          `json:"max_hops,omitempty"`
	PerHopFee               *asset.Amount    `json:"per_hop_fee,omitempty"`
	WhitelistedSourceAssets []asset.Info     `json:"whitelisted_source_assets,omitempty"`
	WhitelistedTipAssets    []asset.Info     `json:"whitelisted_tip_assets,omitempty"`
	MaxSpread               *decimal.Decimal `json:"max_spread,omitempty"`
	RouterAddr              *string          `json:"router_addr,omitempty"`
}

// OrderInfo is an order together with the allowance its owner has granted
// the contract on a token source asset.
type OrderInfo struct {
	Order          models.Order `json:"info"`
	TokenAllowance asset.Amount `json:"token_allowance"`
}
