package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{ErrZeroAmount, KindValidation},
		{fmt.Errorf("%w: source", ErrNotWhitelisted), KindValidation},
		{ErrPurchaseInFlight, KindState},
		{fmt.Errorf("withdraw: %w", ErrInsufficientBalance), KindState},
		{ErrUnauthorized, KindAuthorization},
		{ErrInvalidSwapTrace, KindProtocol},
		{ErrOrderNotFound, KindNotFound},
		{errors.New("boom"), KindInternal},
		{nil, ""},
	}

	for _, tt := range tests {
		require.Equal(t, tt.kind, KindOf(tt.err), "err: %v", tt.err)
	}
}

func TestIsProtocol(t *testing.T) {
	require.True(t, IsProtocol(fmt.Errorf("reconcile: %w", ErrNoPendingPurchase)))
	require.False(t, IsProtocol(ErrPurchaseTooEarly))
}
