package chain

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// TxQuery subscribes to every executed transaction.
const TxQuery = "tm.event='Tx'"

// WSClient follows a node's JSON-RPC event stream.
type WSClient struct {
	Endpoint string
	Conn     *websocket.Conn
}

func NewWSClient(endpoint string) *WSClient {
	return &WSClient{Endpoint: endpoint}
}

func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return err
	}
	c.Conn = conn
	return nil
}

func (c *WSClient) Close() {
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

type subscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  struct {
		Query string `json:"query"`
	} `json:"params"`
}

func (c *WSClient) Subscribe(ctx context.Context, query string) error {
	if c.Conn == nil {
		return errors.New("ws: not connected")
	}
	req := subscribeRequest{JSONRPC: "2.0", ID: 1, Method: "subscribe"}
	req.Params.Query = query
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.Conn.SetWriteDeadline(deadline)
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return c.Conn.WriteMessage(websocket.TextMessage, raw)
}

// Read blocks for the next frame. Cancelling ctx unblocks it with an error.
func (c *WSClient) Read(ctx context.Context) ([]byte, error) {
	if c.Conn == nil {
		return nil, errors.New("ws: not connected")
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.Conn.SetReadDeadline(time.Now())
	})
	defer stop()
	_, msg, err := c.Conn.ReadMessage()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return msg, err
}

type wsEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type wsTxData struct {
	Type  string `json:"type"`
	Value struct {
		TxResult wsTxResult `json:"TxResult"`
	} `json:"value"`
}

type wsTxResult struct {
	Height string `json:"height"`
	Hash   string `json:"hash,omitempty"`
	Tx     string `json:"tx"`
	Result struct {
		Code      uint32     `json:"code"`
		Codespace string     `json:"codespace,omitempty"`
		Log       string     `json:"log,omitempty"`
		Events    []rpcEvent `json:"events"`
	} `json:"result"`
}

// ParseWSTx extracts a transaction from a subscription frame. Frames that
// carry no transaction, like the subscribe ack, return false.
func ParseWSTx(msg []byte) (*Tx, bool, error) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, false, err
	}
	if env.Error != nil {
		return nil, false, errors.New(env.Error.Message)
	}
	var result struct {
		Data json.RawMessage `json:"data"`
	}
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return nil, false, err
		}
	}
	if len(result.Data) == 0 {
		return nil, false, nil
	}

	var data wsTxData
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, false, err
	}
	if !strings.Contains(data.Type, "Tx") {
		return nil, false, nil
	}

	res := data.Value.TxResult
	height, err := strconv.ParseInt(res.Height, 10, 64)
	if err != nil {
		return nil, false, err
	}
	hash := strings.TrimSpace(res.Hash)
	if hash == "" && res.Tx != "" {
		if h, err := hashFromTx(res.Tx); err == nil {
			hash = h
		}
	}

	return &Tx{
		Hash:      strings.ToUpper(hash),
		Height:    height,
		Code:      res.Result.Code,
		Codespace: res.Result.Codespace,
		Log:       res.Result.Log,
		Events:    decodeEvents(res.Result.Events),
		Timestamp: time.Now().UTC(),
	}, true, nil
}

// EncodeWSTx renders a transaction as a subscription frame. Attribute keys
// and values are base64 encoded the way CometBFT 0.34 nodes send them.
func EncodeWSTx(id int, tx Tx, rawTx []byte) ([]byte, error) {
	var res wsTxResult
	res.Height = strconv.FormatInt(tx.Height, 10)
	res.Hash = tx.Hash
	res.Tx = base64.StdEncoding.EncodeToString(rawTx)
	res.Result.Code = tx.Code
	res.Result.Codespace = tx.Codespace
	res.Result.Log = tx.Log
	res.Result.Events = make([]rpcEvent, 0, len(tx.Events))
	for _, ev := range tx.Events {
		out := rpcEvent{Type: ev.Type}
		for _, attr := range ev.Attributes {
			out.Attributes = append(out.Attributes, rpcAttribute{
				Key:   base64.StdEncoding.EncodeToString([]byte(attr.Key)),
				Value: base64.StdEncoding.EncodeToString([]byte(attr.Value)),
				Index: true,
			})
		}
		res.Result.Events = append(res.Result.Events, out)
	}

	var data wsTxData
	data.Type = "tendermint/event/Tx"
	data.Value.TxResult = res
	result, err := json.Marshal(map[string]any{"query": TxQuery, "data": data})
	if err != nil {
		return nil, err
	}
	return json.Marshal(wsEnvelope{JSONRPC: "2.0", ID: id, Result: result})
}

// SubscribeAck is the reply to a subscribe request.
func SubscribeAck(id int) ([]byte, error) {
	return json.Marshal(wsEnvelope{JSONRPC: "2.0", ID: id, Result: json.RawMessage(`{}`)})
}

func hashFromTx(txBase64 string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(b)
	return strings.ToUpper(hex.EncodeToString(h[:])), nil
}
