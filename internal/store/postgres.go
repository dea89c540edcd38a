package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/models"
)

// Postgres stores contract state as JSONB documents. Every Update runs in a
// serializable transaction.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

func (s *Postgres) Update(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *Postgres) View(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *Postgres) Close() { s.Pool.Close() }

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) loadDoc(ctx context.Context, dst any, query string, args ...any) (bool, error) {
	var raw []byte
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	return true, nil
}

func (t *pgTx) Config(ctx context.Context) (models.ContractConfig, error) {
	var cfg models.ContractConfig
	ok, err := t.loadDoc(ctx, &cfg, `SELECT doc FROM dca_config WHERE id=1`)
	if err != nil {
		return models.ContractConfig{}, err
	}
	if !ok {
		return models.ContractConfig{}, errs.ErrConfigNotFound
	}
	return cfg, nil
}

func (t *pgTx) SaveConfig(ctx context.Context, cfg models.ContractConfig) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO dca_config (id, doc) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET doc=EXCLUDED.doc, updated_at=now()
	`, doc)
	return err
}

func (t *pgTx) Order(ctx context.Context, id string) (models.Order, error) {
	var order models.Order
	ok, err := t.loadDoc(ctx, &order, `SELECT doc FROM dca_orders WHERE id=$1`, id)
	if err != nil {
		return models.Order{}, err
	}
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", errs.ErrOrderNotFound, id)
	}
	return order, nil
}

func (t *pgTx) SaveOrder(ctx context.Context, order models.Order) error {
	doc, err := json.Marshal(order)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO dca_orders (id, owner, doc) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET owner=EXCLUDED.owner, doc=EXCLUDED.doc, updated_at=now()
	`, order.ID, order.Owner, doc)
	return err
}

func (t *pgTx) DeleteOrder(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM dca_orders WHERE id=$1`, id)
	return err
}

func (t *pgTx) Orders(ctx context.Context, startAfter string, limit int) ([]models.Order, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT doc FROM dca_orders
		WHERE $1 = '' OR length(id) > length($1) OR (length(id) = length($1) AND id > $1)
		ORDER BY length(id), id
		LIMIT $2
	`, startAfter, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var order models.Order
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (t *pgTx) OwnerOrders(ctx context.Context, owner string) ([]string, error) {
	var ids []string
	if _, err := t.loadDoc(ctx, &ids, `SELECT order_ids FROM dca_owner_orders WHERE owner=$1`, owner); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *pgTx) SaveOwnerOrders(ctx context.Context, owner string, ids []string) error {
	if len(ids) == 0 {
		_, err := t.tx.Exec(ctx, `DELETE FROM dca_owner_orders WHERE owner=$1`, owner)
		return err
	}
	doc, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO dca_owner_orders (owner, order_ids) VALUES ($1, $2)
		ON CONFLICT (owner) DO UPDATE SET order_ids=EXCLUDED.order_ids
	`, owner, doc)
	return err
}

func (t *pgTx) PendingPurchase(ctx context.Context) (*models.PendingPurchase, error) {
	var p models.PendingPurchase
	ok, err := t.loadDoc(ctx, &p, `SELECT doc FROM dca_pending_purchase WHERE id=1`)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) SetPendingPurchase(ctx context.Context, p models.PendingPurchase) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO dca_pending_purchase (id, doc) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET doc=EXCLUDED.doc
	`, doc)
	return err
}

func (t *pgTx) ClearPendingPurchase(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM dca_pending_purchase WHERE id=1`)
	return err
}

func (t *pgTx) LastSwapReply(ctx context.Context) (*models.SwapReply, error) {
	var r models.SwapReply
	ok, err := t.loadDoc(ctx, &r, `SELECT doc FROM dca_swap_reply WHERE id=1`)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

func (t *pgTx) SaveSwapReply(ctx context.Context, reply models.SwapReply) error {
	doc, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO dca_swap_reply (id, doc) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET doc=EXCLUDED.doc, updated_at=now()
	`, doc)
	return err
}

// NextOrderSeq draws from a sequence; values consumed by rolled back
// transactions leave gaps but never repeat.
func (t *pgTx) NextOrderSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, "SELECT nextval('dca_order_seq')").Scan(&seq); err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

func (t *pgTx) SyncHeight(ctx context.Context) (int64, error) {
	var v string
	if err := t.tx.QueryRow(ctx, "SELECT value FROM sync_state WHERE key='last_block_height'").Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (t *pgTx) SetSyncHeight(ctx context.Context, height int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sync_state (key, value)
		VALUES ('last_block_height', $1)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value
	`, strconv.FormatInt(height, 10))
	return err
}

func (t *pgTx) LedgerState(ctx context.Context) (*ledger.State, error) {
	var st ledger.State
	ok, err := t.loadDoc(ctx, &st, `SELECT doc FROM dca_ledger WHERE id=1`)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

// SaveLedgerState writes the ledger in the same transaction as the contract
// state it backs, so balances and orders never disagree after a restart.
func (t *pgTx) SaveLedgerState(ctx context.Context, st ledger.State) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO dca_ledger (id, doc) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET doc=EXCLUDED.doc, updated_at=now()
	`, doc)
	return err
}

func (t *pgTx) AccountSequence(ctx context.Context, addr string) (uint64, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT sequence FROM dca_accounts WHERE address=$1`, addr).Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(seq), nil
}

func (t *pgTx) SetAccountSequence(ctx context.Context, addr string, seq uint64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO dca_accounts (address, sequence) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET sequence=EXCLUDED.sequence
	`, addr, int64(seq))
	return err
}
