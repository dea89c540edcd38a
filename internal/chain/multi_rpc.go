package chain

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/dauTT/astroport-dca/internal/models"
)

// MultiClient spreads calls over several nodes and moves to the next one
// after failThreshold consecutive transport failures.
type MultiClient struct {
	clients       []*Client
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiClient(endpoints []string, failThreshold int) (*MultiClient, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("node endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	clients := make([]*Client, 0, len(list))
	for _, ep := range list {
		clients = append(clients, NewClient(ep))
	}
	return &MultiClient{clients: clients, failThreshold: failThreshold}, nil
}

func (m *MultiClient) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index].baseURL
}

func (m *MultiClient) LatestHeight(ctx context.Context) (int64, error) {
	return failover(m, func(c *Client) (int64, error) { return c.LatestHeight(ctx) })
}

func (m *MultiClient) Status(ctx context.Context) (*Status, error) {
	return failover(m, func(c *Client) (*Status, error) { return c.Status(ctx) })
}

func (m *MultiClient) Config(ctx context.Context) (*models.ContractConfig, error) {
	return failover(m, func(c *Client) (*models.ContractConfig, error) { return c.Config(ctx) })
}

func (m *MultiClient) Orders(ctx context.Context, startAfter string, limit int) ([]models.Order, error) {
	return failover(m, func(c *Client) ([]models.Order, error) { return c.Orders(ctx, startAfter, limit) })
}

func (m *MultiClient) Account(ctx context.Context, addr string) (*Account, error) {
	return failover(m, func(c *Client) (*Account, error) { return c.Account(ctx, addr) })
}

func (m *MultiClient) BroadcastSigned(ctx context.Context, tx *SignedTx) (*Tx, error) {
	return failover(m, func(c *Client) (*Tx, error) { return c.BroadcastSigned(ctx, tx) })
}

func (m *MultiClient) Broadcast(ctx context.Context, req BroadcastRequest) (*Tx, error) {
	return failover(m, func(c *Client) (*Tx, error) { return c.Broadcast(ctx, req) })
}

// failover tries each node at most once, starting with the current one.
// Answers the node gave on purpose are returned without trying another node.
func failover[T any](m *MultiClient, call func(*Client) (T, error)) (T, error) {
	m.mu.Lock()
	start := m.index
	m.mu.Unlock()

	var zero T
	var lastErr error
	for attempts := 0; attempts < len(m.clients); attempts++ {
		client, idx := m.currentClient()
		out, err := call(client)
		if err == nil || !retryable(err) {
			m.resetFailures(idx)
			return out, err
		}
		lastErr = err
		m.noteFailure(idx)
		if m.shouldRotate() || len(m.clients) > 1 {
			m.rotate()
		}
		if idx == start && attempts > 0 {
			break
		}
	}
	return zero, lastErr
}

func retryable(err error) bool {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

func (m *MultiClient) currentClient() (*Client, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

func (m *MultiClient) noteFailure(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount++
	}
}

func (m *MultiClient) shouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failCount >= m.failThreshold
}

func (m *MultiClient) rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimRight(strings.TrimSpace(ep), "/")
		if ep == "" {
			continue
		}
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
