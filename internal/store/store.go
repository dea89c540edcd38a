package store

import (
	"context"

	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/models"
)

// Tx is one atomic unit of reads and writes over contract state.
type Tx interface {
	Config(ctx context.Context) (models.ContractConfig, error)
	SaveConfig(ctx context.Context, cfg models.ContractConfig) error

	Order(ctx context.Context, id string) (models.Order, error)
	SaveOrder(ctx context.Context, order models.Order) error
	DeleteOrder(ctx context.Context, id string) error
	// Orders pages through every order in id order, starting after startAfter.
	Orders(ctx context.Context, startAfter string, limit int) ([]models.Order, error)

	OwnerOrders(ctx context.Context, owner string) ([]string, error)
	SaveOwnerOrders(ctx context.Context, owner string, ids []string) error

	// PendingPurchase returns nil when no purchase is in flight.
	PendingPurchase(ctx context.Context) (*models.PendingPurchase, error)
	SetPendingPurchase(ctx context.Context, p models.PendingPurchase) error
	ClearPendingPurchase(ctx context.Context) error

	LastSwapReply(ctx context.Context) (*models.SwapReply, error)
	SaveSwapReply(ctx context.Context, reply models.SwapReply) error

	NextOrderSeq(ctx context.Context) (uint64, error)

	SyncHeight(ctx context.Context) (int64, error)
	SetSyncHeight(ctx context.Context, height int64) error

	// LedgerState returns nil before the ledger was first saved.
	LedgerState(ctx context.Context) (*ledger.State, error)
	SaveLedgerState(ctx context.Context, st ledger.State) error

	// AccountSequence is the number of signed transactions addr has sent.
	AccountSequence(ctx context.Context, addr string) (uint64, error)
	SetAccountSequence(ctx context.Context, addr string, seq uint64) error
}

// Store runs functions inside transactions. A non-nil error from fn discards
// every write it made.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close()
}

const DefaultPageLimit = 30

// idLess orders numeric ids numerically and equal-length ids lexically.
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	return limit
}
