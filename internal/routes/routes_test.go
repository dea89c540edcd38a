package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/router"
)

func TestTable(t *testing.T) {
	astro := chain.MustModuleAddress("terra", "astro-token")
	table, err := New([]Route{
		{Path: []string{"usdt", astro}},
		{Path: []string{"uluna", "usdt", astro}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	hops, ok := table.Lookup(asset.NativeInfo("uluna"), asset.TokenInfo(astro))
	require.True(t, ok)
	assert.Equal(t, []router.SwapOperation{
		router.NewAstroSwap(asset.NativeInfo("uluna"), asset.NativeInfo("usdt")),
		router.NewAstroSwap(asset.NativeInfo("usdt"), asset.TokenInfo(astro)),
	}, hops)

	_, ok = table.Lookup(asset.TokenInfo(astro), asset.NativeInfo("usdt"))
	assert.False(t, ok)
}

func TestTableRejectsBadRoutes(t *testing.T) {
	_, err := New([]Route{{Path: []string{"usdt"}}})
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = New([]Route{{Path: []string{"usdt", "usdt"}}})
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = New([]Route{{Path: []string{"usdt", "uluna"}}, {Path: []string{"usdt", "uluna"}}})
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}
