// Package errs holds the error taxonomy shared by the DCA engine, the host
// runtime and the HTTP layer.
package errs

import "errors"

// Kind groups errors by who is at fault and how callers should react.
type Kind string

const (
	KindInternal      Kind = "internal"
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindAuthorization Kind = "authorization"
	KindProtocol      Kind = "protocol"
	KindNotFound      Kind = "not_found"
)

// Validation errors: caller mistakes, nothing is mutated.
var (
	ErrAssetKindMismatch          = errors.New("asset kind mismatch")
	ErrZeroAmount                 = errors.New("amount must be greater than zero")
	ErrNotWhitelisted             = errors.New("asset not whitelisted")
	ErrRedundantChange            = errors.New("new value equals current value")
	ErrEmptyHopRoute              = errors.New("hop route is empty")
	ErrMaxHopsExceeded            = errors.New("hop route exceeds max hops")
	ErrStartAssetMismatch         = errors.New("first hop does not offer the source asset")
	ErrTargetAssetMismatch        = errors.New("last hop does not return the target asset")
	ErrPurchaseTooEarly           = errors.New("purchase interval has not elapsed")
	ErrPurchaseNotStarted         = errors.New("order start time not reached")
	ErrNativeBalanceMismatch      = errors.New("attached native funds do not match")
	ErrTokenAllowanceInsufficient = errors.New("token allowance insufficient")
	ErrDisallowedSlot             = errors.New("balance slot not allowed for this operation")
	ErrInvalidAddress             = errors.New("invalid address")
	ErrInvalidInput               = errors.New("invalid input")
)

// State errors: the request is well formed but resources are missing.
var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientTipBalance = errors.New("insufficient tip balance")
	ErrPurchaseInFlight       = errors.New("another purchase is in flight")
	ErrOverflow               = errors.New("arithmetic overflow")
	ErrUnderflow              = errors.New("arithmetic underflow")
	ErrSequenceMismatch       = errors.New("account sequence mismatch")
)

// ErrUnauthorized is returned when a non-owner calls an owner-only operation.
var ErrUnauthorized = errors.New("unauthorized")

// Protocol errors never happen absent a bug or a misbehaving collaborator.
var (
	ErrNoPendingPurchase = errors.New("no pending purchase")
	ErrNoSwapExecuted    = errors.New("no swap executed")
	ErrInvalidSwapTrace  = errors.New("invalid swap trace")
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrConfigNotFound = errors.New("config not found")
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{
		ErrAssetKindMismatch, ErrZeroAmount, ErrNotWhitelisted, ErrRedundantChange,
		ErrEmptyHopRoute, ErrMaxHopsExceeded, ErrStartAssetMismatch, ErrTargetAssetMismatch,
		ErrPurchaseTooEarly, ErrPurchaseNotStarted, ErrNativeBalanceMismatch,
		ErrTokenAllowanceInsufficient, ErrDisallowedSlot, ErrInvalidAddress, ErrInvalidInput,
	}},
	{KindState, []error{
		ErrInsufficientBalance, ErrInsufficientTipBalance, ErrPurchaseInFlight,
		ErrOverflow, ErrUnderflow, ErrSequenceMismatch,
	}},
	{KindAuthorization, []error{ErrUnauthorized}},
	{KindProtocol, []error{ErrNoPendingPurchase, ErrNoSwapExecuted, ErrInvalidSwapTrace}},
	{KindNotFound, []error{ErrOrderNotFound, ErrConfigNotFound}},
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, group := range kinds {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return KindInternal
}

// IsProtocol reports whether err signals an integrity violation that
// monitoring should alert on.
func IsProtocol(err error) bool {
	return KindOf(err) == KindProtocol
}
