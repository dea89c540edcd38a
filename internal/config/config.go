package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/models"
	"github.com/dauTT/astroport-dca/internal/router"
	"github.com/dauTT/astroport-dca/internal/routes"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr" validate:"required"`
	} `yaml:"server"`
	Store struct {
		Driver string `yaml:"driver" validate:"oneof=memory postgres"`
		DSN    string `yaml:"dsn" validate:"required_if=Driver postgres"`
	} `yaml:"store"`
	Chain struct {
		Bech32Prefix string `yaml:"bech32_prefix" validate:"required"`
		BlockSeconds int64  `yaml:"block_seconds" validate:"gte=1"`
		ContractAddress string `yaml:"contract_address" validate:"required"`
	} `yaml:"chain"`
	Contract Contract `yaml:"contract"`
	Sim      Sim      `yaml:"sim"`
	Bot      Bot      `yaml:"bot"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format" validate:"oneof=json console"`
	} `yaml:"log"`
}

// Contract is the configuration the node instantiates the contract with on
// first start. Asset fields take denoms or token contract addresses; account
// fields take bech32 addresses or module names.
type Contract struct {
	Owner           string   `yaml:"owner" validate:"required"`
	MaxHops         uint32   `yaml:"max_hops" validate:"gte=1"`
	MaxSpread       string   `yaml:"max_spread" validate:"required"`
	PerHopFee       uint64   `yaml:"per_hop_fee"`
	GasAsset        string   `yaml:"gas_asset" validate:"required"`
	SourceWhitelist []string `yaml:"source_whitelist" validate:"dive,required"`
	TipWhitelist    []string `yaml:"tip_whitelist" validate:"dive,required"`
	RouterAddr      string   `yaml:"router_addr" validate:"required"`
	FactoryAddr     string   `yaml:"factory_addr"`
	IDMode          string   `yaml:"id_mode" validate:"oneof=sequence uuid"`
}

type Sim struct {
	Enabled bool `yaml:"enabled"`
	// UnsignedTx makes the node accept transactions whose sender is not
	// backed by a signature.
	UnsignedTx   bool      `yaml:"unsigned_tx"`
	FeeCollector string    `yaml:"fee_collector"`
	FeePerHop    uint64    `yaml:"fee_per_hop"`
	Rates        []Rate    `yaml:"rates" validate:"dive"`
	Genesis      []Genesis `yaml:"genesis" validate:"dive"`
}

type Rate struct {
	Offer string `yaml:"offer" validate:"required"`
	Ask   string `yaml:"ask" validate:"required"`
	Rate  string `yaml:"rate" validate:"required"`
}

type Genesis struct {
	Address string `yaml:"address" validate:"required"`
	Asset   string `yaml:"asset" validate:"required"`
	Amount  uint64 `yaml:"amount" validate:"gt=0"`
}

type Bot struct {
	APIEndpoints         []string       `yaml:"api_endpoints" validate:"dive,url"`
	WSEndpoints          []string       `yaml:"ws_endpoints"`
	IntervalSeconds      int64          `yaml:"interval_seconds" validate:"gte=1"`
	PageSize             int            `yaml:"page_size" validate:"gte=1"`
	PrivateKey           string         `yaml:"private_key" validate:"omitempty,hexadecimal,len=64"`
	XPrv                 string         `yaml:"xprv"`
	Index                uint32         `yaml:"index"`
	Address              string         `yaml:"address"`
	XPub                 string         `yaml:"xpub"`
	RPCFailoverThreshold int            `yaml:"rpc_failover_threshold" validate:"gte=1"`
	WSFailoverThreshold  int            `yaml:"ws_failover_threshold" validate:"gte=1"`
	Routes               []routes.Route `yaml:"routes" validate:"dive"`
	Redis                struct {
		Addr           string `yaml:"addr"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		LockTTLSeconds int64  `yaml:"lock_ttl_seconds" validate:"gte=1"`
	} `yaml:"redis"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := decimal.NewFromString(cfg.Contract.MaxSpread); err != nil {
		return nil, fmt.Errorf("contract.max_spread: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Store.Driver = "memory"
	cfg.Chain.Bech32Prefix = "terra"
	cfg.Chain.BlockSeconds = 6
	cfg.Chain.ContractAddress = "dca"
	cfg.Contract.MaxHops = 3
	cfg.Contract.MaxSpread = "0.05"
	cfg.Contract.IDMode = "sequence"
	cfg.Bot.IntervalSeconds = 30
	cfg.Bot.PageSize = 30
	cfg.Bot.RPCFailoverThreshold = 3
	cfg.Bot.WSFailoverThreshold = 3
	cfg.Bot.Redis.LockTTLSeconds = 60
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// ContractConfig converts the contract section into the stored form.
func (c Contract) ContractConfig(prefix string) (models.ContractConfig, error) {
	spread, err := decimal.NewFromString(c.MaxSpread)
	if err != nil {
		return models.ContractConfig{}, fmt.Errorf("max_spread: %w", err)
	}
	owner, err := chain.ResolveAddress(prefix, c.Owner)
	if err != nil {
		return models.ContractConfig{}, fmt.Errorf("owner: %w", err)
	}
	routerAddr, err := chain.ResolveAddress(prefix, c.RouterAddr)
	if err != nil {
		return models.ContractConfig{}, fmt.Errorf("router_addr: %w", err)
	}
	factoryAddr := ""
	if c.FactoryAddr != "" {
		if factoryAddr, err = chain.ResolveAddress(prefix, c.FactoryAddr); err != nil {
			return models.ContractConfig{}, fmt.Errorf("factory_addr: %w", err)
		}
	}
	return models.ContractConfig{
		Owner:     owner,
		MaxHops:   c.MaxHops,
		MaxSpread: spread,
		PerHopFee: asset.NewAmount(c.PerHopFee),
		GasInfo:   router.InfoFromKey(c.GasAsset),
		Whitelist: models.Whitelist{
			Source: infos(c.SourceWhitelist),
			Tip:    infos(c.TipWhitelist),
		},
		FactoryAddr: factoryAddr,
		RouterAddr:  routerAddr,
	}, nil
}

// RouterOptions builds the simulated router's rate table and per-hop fee.
// Fees stay with the router unless a collector is configured.
func (s Sim) RouterOptions(prefix, address string, gas asset.Info) (router.SimOptions, error) {
	opts := router.SimOptions{
		Address:      address,
		FeeCollector: address,
		Rates:        make(map[router.Pair]decimal.Decimal, len(s.Rates)),
	}
	if s.FeeCollector != "" {
		collector, err := chain.ResolveAddress(prefix, s.FeeCollector)
		if err != nil {
			return router.SimOptions{}, fmt.Errorf("fee_collector: %w", err)
		}
		opts.FeeCollector = collector
	}
	for _, r := range s.Rates {
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return router.SimOptions{}, fmt.Errorf("rate %s -> %s: %w", r.Offer, r.Ask, err)
		}
		opts.Rates[router.Pair{Offer: router.InfoFromKey(r.Offer), Ask: router.InfoFromKey(r.Ask)}] = rate
	}
	if s.FeePerHop > 0 {
		opts.FeePerHop = asset.New(gas, asset.NewAmount(s.FeePerHop))
	}
	return opts, nil
}

// Account resolves the genesis holder and its starting balance.
func (g Genesis) Account(prefix string) (string, asset.Asset, error) {
	addr, err := chain.ResolveAddress(prefix, g.Address)
	if err != nil {
		return "", asset.Asset{}, err
	}
	return addr, asset.New(router.InfoFromKey(g.Asset), asset.NewAmount(g.Amount)), nil
}

func infos(keys []string) []asset.Info {
	out := make([]asset.Info, 0, len(keys))
	for _, k := range keys {
		out = append(out, router.InfoFromKey(k))
	}
	return out
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("BECH32_PREFIX"); v != "" {
		cfg.Chain.Bech32Prefix = v
	}
	if v := os.Getenv("BLOCK_SECONDS"); v != "" {
		cfg.Chain.BlockSeconds = atoi64Or(cfg.Chain.BlockSeconds, v)
	}
	if v := os.Getenv("CONTRACT_ADDRESS"); v != "" {
		cfg.Chain.ContractAddress = v
	}
	if v := os.Getenv("CONTRACT_OWNER"); v != "" {
		cfg.Contract.Owner = v
	}
	if v := os.Getenv("ROUTER_ADDR"); v != "" {
		cfg.Contract.RouterAddr = v
	}
	if v := os.Getenv("ORDER_ID_MODE"); v != "" {
		cfg.Contract.IDMode = v
	}
	if v := os.Getenv("SIM_ENABLED"); v != "" {
		cfg.Sim.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BOT_API_ENDPOINTS"); v != "" {
		cfg.Bot.APIEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("BOT_WS_ENDPOINTS"); v != "" {
		cfg.Bot.WSEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("BOT_INTERVAL_SECONDS"); v != "" {
		cfg.Bot.IntervalSeconds = atoi64Or(cfg.Bot.IntervalSeconds, v)
	}
	if v := os.Getenv("SIM_UNSIGNED_TX"); v != "" {
		cfg.Sim.UnsignedTx = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BOT_PRIVATE_KEY"); v != "" {
		cfg.Bot.PrivateKey = v
	}
	if v := os.Getenv("BOT_XPRV"); v != "" {
		cfg.Bot.XPrv = v
	}
	if v := os.Getenv("BOT_ADDRESS"); v != "" {
		cfg.Bot.Address = v
	}
	if v := os.Getenv("BOT_XPUB"); v != "" {
		cfg.Bot.XPub = v
	}
	if v := os.Getenv("BOT_INDEX"); v != "" {
		cfg.Bot.Index = uint32(atoi64Or(int64(cfg.Bot.Index), v))
	}
	if v := os.Getenv("BOT_RPC_FAILOVER_THRESHOLD"); v != "" {
		cfg.Bot.RPCFailoverThreshold = atoiOr(cfg.Bot.RPCFailoverThreshold, v)
	}
	if v := os.Getenv("BOT_WS_FAILOVER_THRESHOLD"); v != "" {
		cfg.Bot.WSFailoverThreshold = atoiOr(cfg.Bot.WSFailoverThreshold, v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Bot.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Bot.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
