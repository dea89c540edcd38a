package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/chain"
)

// RunWS follows the node's Tx stream and pokes the sync loop whenever a
// transaction lands, so new orders and deposits are picked up before the
// next tick. It rotates through WSEndpoints after repeated connect failures.
func (w *Worker) RunWS(ctx context.Context) {
	if len(w.WSEndpoints) == 0 {
		w.logger().Info("ws disabled: no ws endpoints")
		return
	}
	threshold := w.WSFailoverThreshold
	if threshold <= 0 {
		threshold = 3
	}

	idx, failures := 0, 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		endpoint := w.WSEndpoints[idx]
		log := w.logger().With(zap.String("endpoint", endpoint))
		client := chain.NewWSClient(endpoint)
		if err := client.Connect(ctx); err != nil {
			log.Warn("ws connect failed", zap.Error(err))
			if failures++; failures >= threshold {
				idx = (idx + 1) % len(w.WSEndpoints)
				failures = 0
			}
			sleep(ctx, 3*time.Second)
			continue
		}
		failures = 0
		log.Info("ws connected")

		if err := client.Subscribe(ctx, chain.TxQuery); err != nil {
			log.Warn("ws subscribe failed", zap.Error(err))
			client.Close()
			sleep(ctx, 3*time.Second)
			continue
		}

		for {
			msg, err := client.Read(ctx)
			if err != nil {
				log.Warn("ws read failed", zap.Error(err))
				client.Close()
				break
			}
			tx, ok, err := chain.ParseWSTx(msg)
			if err != nil {
				log.Debug("ws parse failed", zap.Error(err))
				continue
			}
			if !ok || tx.Code != 0 {
				continue
			}
			log.Debug("tx observed", zap.String("hash", tx.Hash), zap.Int64("height", tx.Height))
			w.poke()
		}

		sleep(ctx, 2*time.Second)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
