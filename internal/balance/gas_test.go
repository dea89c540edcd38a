package balance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
)

func TestGasFee(t *testing.T) {
	tests := []struct {
		name string
		in   GasFeeInput
		want string
	}{
		{
			name: "plain fee",
			in: GasFeeInput{
				Snapshot: amount(1000), Current: amount(990),
				TipCost: asset.New(usdt, amount(100)), SwapOutput: asset.New(astro, amount(5)), Gas: luna,
			},
			want: "10",
		},
		{
			name: "gas shares tip kind",
			in: GasFeeInput{
				Snapshot: amount(1000), Current: amount(897),
				TipCost: asset.New(luna, amount(100)), SwapOutput: asset.New(astro, amount(5)), Gas: luna,
			},
			want: "3",
		},
		{
			name: "gas shares target kind",
			in: GasFeeInput{
				Snapshot: amount(1000), Current: amount(1048),
				TipCost: asset.New(usdt, amount(100)), SwapOutput: asset.New(luna, amount(50)), Gas: luna,
			},
			want: "2",
		},
		{
			name: "gas shares source kind",
			in: GasFeeInput{
				Snapshot: amount(1000), Current: amount(985),
				Tranche: asset.New(luna, amount(10)), TipCost: asset.New(usdt, amount(100)),
				SwapOutput: asset.New(astro, amount(5)), Gas: luna,
			},
			want: "5",
		},
		{
			name: "balance grew",
			in: GasFeeInput{
				Snapshot: amount(1000), Current: amount(1004),
				TipCost: asset.New(usdt, amount(100)), SwapOutput: asset.New(astro, amount(5)), Gas: luna,
			},
			want: "-4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := GasFee(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, fee.String())
		})
	}
}

func TestApplyGasFee(t *testing.T) {
	out, err := ApplyGasFee(newOrder(), Delta{Amount: amount(10)})
	require.NoError(t, err)
	require.Equal(t, "40", out.Balance.Gas.Amount.String())

	out, err = ApplyGasFee(newOrder(), Delta{Amount: amount(10), Negative: true})
	require.NoError(t, err)
	require.Equal(t, "60", out.Balance.Gas.Amount.String())

	out, err = ApplyGasFee(newOrder(), Delta{})
	require.NoError(t, err)
	require.Equal(t, newOrder(), out)

	_, err = ApplyGasFee(newOrder(), Delta{Amount: amount(51)})
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)
}
