package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/config"
	"github.com/dauTT/astroport-dca/internal/db"
	"github.com/dauTT/astroport-dca/internal/host"
	internalhttp "github.com/dauTT/astroport-dca/internal/http"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/logging"
	"github.com/dauTT/astroport-dca/internal/router"
	"github.com/dauTT/astroport-dca/internal/services"
	"github.com/dauTT/astroport-dca/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store open failed", zap.Error(err))
	}
	defer st.Close()

	prefix := cfg.Chain.Bech32Prefix
	contract, err := chain.ResolveAddress(prefix, cfg.Chain.ContractAddress)
	if err != nil {
		logger.Fatal("invalid contract address", zap.Error(err))
	}
	contractCfg, err := cfg.Contract.ContractConfig(prefix)
	if err != nil {
		logger.Fatal("invalid contract config", zap.Error(err))
	}

	// Genesis balances seed the ledger on first start only; afterwards the
	// ledger saved in the store wins.
	l := ledger.NewMemory()
	for _, g := range cfg.Sim.Genesis {
		addr, bal, err := g.Account(prefix)
		if err != nil {
			logger.Fatal("invalid genesis account", zap.String("address", g.Address), zap.Error(err))
		}
		if err := l.Mint(addr, bal); err != nil {
			logger.Fatal("genesis mint failed", zap.String("address", addr), zap.Error(err))
		}
	}
	simOpts, err := cfg.Sim.RouterOptions(prefix, contractCfg.RouterAddr, contractCfg.GasInfo)
	if err != nil {
		logger.Fatal("invalid router config", zap.Error(err))
	}
	sim := router.NewSim(l, simOpts, logger.Named("router"))

	node, err := host.New(ctx, host.Options{
		Store:    st,
		Ledger:   l,
		Routers:  []router.Executor{sim},
		Contract: contract,
		Prefix:   prefix,
		IDMode:   services.IDMode(cfg.Contract.IDMode),
		Clock:    host.SystemClock{},
		Logger:   logger.Named("node"),
	})
	if err != nil {
		logger.Fatal("node init failed", zap.Error(err))
	}
	if _, err := node.Instantiate(ctx, contractCfg); err != nil {
		logger.Fatal("instantiate failed", zap.Error(err))
	}
	go node.Run(ctx, time.Duration(cfg.Chain.BlockSeconds)*time.Second)

	h := internalhttp.NewHandler(node, cfg.Sim.Enabled, logger.Named("http"))
	h.AllowUnsigned = cfg.Sim.UnsignedTx
	if h.AllowUnsigned {
		logger.Warn("accepting unsigned transactions; senders are not authenticated")
	}
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Server.Addr), zap.String("contract", contract))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.Store.Driver != "postgres" {
		return store.NewMemory(), nil
	}
	pool, err := db.Connect(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool, logger.Named("migrate")); err != nil {
		pool.Close()
		return nil, err
	}
	return store.NewPostgres(pool), nil
}
