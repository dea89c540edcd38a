package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/config"
	"github.com/dauTT/astroport-dca/internal/logging"
	"github.com/dauTT/astroport-dca/internal/routes"
	"github.com/dauTT/astroport-dca/internal/worker"
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

	if len(cfg.Bot.APIEndpoints) == 0 {
		logger.Fatal("bot.api_endpoints is empty")
	}
	node, err := chain.NewMultiClient(cfg.Bot.APIEndpoints, cfg.Bot.RPCFailoverThreshold)
	if err != nil {
		logger.Fatal("node client init failed", zap.Error(err))
	}

	table, err := routes.New(cfg.Bot.Routes)
	if err != nil {
		logger.Fatal("invalid routes", zap.Error(err))
	}

	signer, err := botSigner(cfg)
	if err != nil {
		logger.Fatal("bot key", zap.Error(err))
	}

	wsEndpoints := cfg.Bot.WSEndpoints
	if len(wsEndpoints) == 0 {
		for _, ep := range cfg.Bot.APIEndpoints {
			if ws := chain.DefaultWSEndpoint(ep); ws != "" {
				wsEndpoints = append(wsEndpoints, ws)
			}
		}
	}

	w := &worker.Worker{
		Node:                node,
		Routes:              table,
		Signer:              signer,
		Interval:            time.Duration(cfg.Bot.IntervalSeconds) * time.Second,
		PageSize:            cfg.Bot.PageSize,
		WSEndpoints:         wsEndpoints,
		WSFailoverThreshold: cfg.Bot.WSFailoverThreshold,
		LockTTL:             time.Duration(cfg.Bot.Redis.LockTTLSeconds) * time.Second,
		Logger:              logger.Named("bot"),
	}
	if cfg.Bot.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Bot.Redis.Addr,
			Password: cfg.Bot.Redis.Password,
			DB:       cfg.Bot.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping failed", zap.String("addr", cfg.Bot.Redis.Addr), zap.Error(err))
		}
		w.Lock = worker.NewRedisLock(rdb, "", logger.Named("lock"))
	}

	logger.Info("bot started",
		zap.String("bot", signer.Address()),
		zap.String("api", node.BaseURL()),
		zap.Int("routes", table.Len()),
		zap.Bool("redis_lock", w.Lock != nil))
	w.Run(ctx)
}

// botSigner loads bot.private_key, or the xprv child at bot.index. When
// bot.address or bot.xpub is set as well, the key must match it.
func botSigner(cfg *config.Config) (*chain.Signer, error) {
	prefix := cfg.Chain.Bech32Prefix
	var (
		signer *chain.Signer
		err    error
	)
	switch {
	case cfg.Bot.PrivateKey != "":
		signer, err = chain.SignerFromHex(prefix, cfg.Bot.PrivateKey)
	case cfg.Bot.XPrv != "":
		signer, err = chain.SignerFromExtendedKey(prefix, cfg.Bot.XPrv, cfg.Bot.Index)
	default:
		return nil, errors.New("bot.private_key or bot.xprv is required")
	}
	if err != nil {
		return nil, err
	}

	want := ""
	switch {
	case cfg.Bot.Address != "":
		want, err = chain.ResolveAddress(prefix, cfg.Bot.Address)
	case cfg.Bot.XPub != "":
		want, err = chain.AddressDeriver{XPub: cfg.Bot.XPub, Prefix: prefix}.Derive(cfg.Bot.Index)
	}
	if err != nil {
		return nil, err
	}
	if want != "" && want != signer.Address() {
		return nil, fmt.Errorf("bot key belongs to %s, configured address is %s", signer.Address(), want)
	}
	return signer, nil
}
