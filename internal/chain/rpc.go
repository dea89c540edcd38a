package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/models"
)

// Client talks to one DCA node over its REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Status is the node's view of the current block.
type Status struct {
	Height          int64                   `json:"height"`
	Time            uint64                  `json:"time"`
	Contract        string                  `json:"contract"`
	PendingPurchase *models.PendingPurchase `json:"pending_purchase,omitempty"`
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.getJSON(ctx, c.baseURL+"/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) LatestHeight(ctx context.Context) (int64, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return 0, err
	}
	return st.Height, nil
}

func (c *Client) Config(ctx context.Context) (*models.ContractConfig, error) {
	var cfg models.ContractConfig
	if err := c.getJSON(ctx, c.baseURL+"/config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Orders pages through all orders in id order.
func (c *Client) Orders(ctx context.Context, startAfter string, limit int) ([]models.Order, error) {
	u, err := url.Parse(c.baseURL + "/orders")
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	if startAfter != "" {
		values.Set("start_after", startAfter)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = values.Encode()

	var resp struct {
		Orders []models.Order `json:"orders"`
	}
	if err := c.getJSON(ctx, u.String(), &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// Account is the node's view of one account.
type Account struct {
	Address  string `json:"address"`
	Sequence uint64 `json:"sequence"`
}

func (c *Client) Account(ctx context.Context, addr string) (*Account, error) {
	var acct Account
	if err := c.getJSON(ctx, c.baseURL+"/accounts/"+url.PathEscape(addr), &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// BroadcastRequest is an execute call. Msg is the contract's execute
// message. Sequence is the sender's account sequence and only matters once
// the request is signed.
type BroadcastRequest struct {
	Sender   string      `json:"sender"`
	Funds    asset.Coins `json:"funds,omitempty"`
	Msg      any         `json:"msg"`
	Sequence uint64      `json:"sequence"`
}

// Broadcast submits an unsigned transaction. Nodes accept these only when
// they run with unsigned transactions enabled.
func (c *Client) Broadcast(ctx context.Context, req BroadcastRequest) (*Tx, error) {
	return c.postTx(ctx, req)
}

// BroadcastSigned submits a signed transaction and waits for its result. A
// transaction the contract rejected comes back as a *TxError.
func (c *Client) BroadcastSigned(ctx context.Context, tx *SignedTx) (*Tx, error) {
	return c.postTx(ctx, tx)
}

func (c *Client) postTx(ctx context.Context, payload any) (*Tx, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var result Tx
	if err := json.Unmarshal(raw, &result); err != nil || result.Hash == "" {
		return nil, statusError(resp.StatusCode, raw)
	}
	if result.Code != 0 {
		return &result, &TxError{Hash: result.Hash, Code: result.Code, Codespace: result.Codespace, Log: result.Log}
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// APIError is a non-2xx answer from the node.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("node http status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("node http status %d", e.Status)
}

func statusError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(body))
	}
	return &APIError{Status: status, Kind: payload.Kind, Message: payload.Error}
}

// TxError reports a transaction the contract executed and rejected.
type TxError struct {
	Hash      string
	Code      uint32
	Codespace string
	Log       string
}

func (e *TxError) Error() string {
	return fmt.Sprintf("tx %s failed with code %d (%s): %s", e.Hash, e.Code, e.Codespace, e.Log)
}

// Tx is an executed transaction as reported by the node.
type Tx struct {
	Hash      string         `json:"hash"`
	Height    int64          `json:"height"`
	Code      uint32         `json:"code"`
	Codespace string         `json:"codespace,omitempty"`
	Log       string         `json:"log,omitempty"`
	Events    []models.Event `json:"events"`
	Timestamp time.Time      `json:"-"`
}

func decodeEvents(events []rpcEvent) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		e := models.NewEvent(ev.Type)
		for _, attr := range ev.Attributes {
			e = e.Add(decodeMaybeBase64(attr.Key), decodeMaybeBase64(attr.Value))
		}
		out = append(out, e)
	}
	return out
}

func decodeMaybeBase64(v string) string {
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return v
	}
	if isMostlyPrintable(b) {
		return string(b)
	}
	return v
}

func isMostlyPrintable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	printable := 0
	for _, c := range b {
		if c >= 32 && c <= 126 {
			printable++
		}
	}
	return printable*100/len(b) >= 80
}

type rpcEvent struct {
	Type       string         `json:"type"`
	Attributes []rpcAttribute `json:"attributes"`
}

type rpcAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Index bool   `json:"index"`
}
