package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/router"
)

const sample = `
server:
  addr: ":9000"
chain:
  bech32_prefix: terra
contract:
  owner: owner
  max_spread: "0.1"
  per_hop_fee: 100
  gas_asset: uluna
  source_whitelist: [uusd]
  tip_whitelist: [uusd, uluna]
  router_addr: router
sim:
  fee_per_hop: 3
  rates:
    - { offer: uusd, ask: uluna, rate: "0.5" }
  genesis:
    - { address: alice, asset: uusd, amount: 10 }
bot:
  api_endpoints: ["http://localhost:9000"]
  routes:
    - path: [uusd, uluna]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, int64(6), cfg.Chain.BlockSeconds)
	assert.Equal(t, uint32(3), cfg.Contract.MaxHops)
	assert.Equal(t, "sequence", cfg.Contract.IDMode)
	assert.Equal(t, 30, cfg.Bot.PageSize)
	require.Len(t, cfg.Bot.Routes, 1)

	cc, err := cfg.Contract.ContractConfig("terra")
	require.NoError(t, err)
	assert.Equal(t, chain.MustModuleAddress("terra", "owner"), cc.Owner)
	assert.Equal(t, chain.MustModuleAddress("terra", "router"), cc.RouterAddr)
	assert.Empty(t, cc.FactoryAddr)
	assert.Equal(t, "0.1", cc.MaxSpread.String())
	assert.Equal(t, asset.NativeInfo("uluna"), cc.GasInfo)
	assert.Equal(t, []asset.Info{asset.NativeInfo("uusd"), asset.NativeInfo("uluna")}, cc.Whitelist.Tip)

	opts, err := cfg.Sim.RouterOptions("terra", cc.RouterAddr, cc.GasInfo)
	require.NoError(t, err)
	assert.Equal(t, "0.5", opts.Rates[router.Pair{Offer: asset.NativeInfo("uusd"), Ask: asset.NativeInfo("uluna")}].String())
	assert.Equal(t, asset.New(asset.NativeInfo("uluna"), asset.NewAmount(3)), opts.FeePerHop)
	assert.Equal(t, cc.RouterAddr, opts.FeeCollector)

	addr, bal, err := cfg.Sim.Genesis[0].Account("terra")
	require.NoError(t, err)
	assert.Equal(t, chain.MustModuleAddress("terra", "alice"), addr)
	assert.Equal(t, asset.New(asset.NativeInfo("uusd"), asset.NewAmount(10)), bal)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7000")
	t.Setenv("BOT_API_ENDPOINTS", "http://a:1, http://b:2,")
	t.Setenv("BOT_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("SIM_ENABLED", "true")
	t.Setenv("SIM_UNSIGNED_TX", "1")
	t.Setenv("BOT_PRIVATE_KEY", strings.Repeat("ab", 32))

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://a:1", "http://b:2"}, cfg.Bot.APIEndpoints)
	assert.Equal(t, int64(30), cfg.Bot.IntervalSeconds)
	assert.True(t, cfg.Sim.Enabled)
	assert.True(t, cfg.Sim.UnsignedTx)
	assert.Equal(t, strings.Repeat("ab", 32), cfg.Bot.PrivateKey)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"postgres without dsn": sample + "store:\n  driver: postgres\n",
		"unknown driver":       sample + "store:\n  driver: sqlite\n",
		"bad log format":       sample + "log:\n  format: xml\n",
		"missing owner":        "contract:\n  gas_asset: uluna\n  router_addr: r\n",
		"short private key":    strings.Replace(sample, "bot:\n", "bot:\n  private_key: abcd\n", 1),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, strings.Replace(sample, `max_spread: "0.1"`, "max_spread: lots", 1)))
	require.ErrorContains(t, err, "max_spread")
}
