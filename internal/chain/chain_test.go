package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/models"
)

func TestModuleAddress(t *testing.T) {
	a := MustModuleAddress("terra", "dca")
	b := MustModuleAddress("terra", "dca")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, MustModuleAddress("terra", "router"))
	assert.True(t, IsAddress(a))
	assert.False(t, IsAddress("uluna"))

	_, err := ModuleAddress("", "dca")
	require.Error(t, err)
}

func TestNormalizeAddress(t *testing.T) {
	addr := MustModuleAddress("terra", "alice")

	got, err := NormalizeAddress("terra", "  "+addr+" ")
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = NormalizeAddress("osmo", addr)
	require.ErrorIs(t, err, errs.ErrInvalidAddress)

	_, err = NormalizeAddress("terra", "terra1notbech32")
	require.ErrorIs(t, err, errs.ErrInvalidAddress)

	short, err := AddressFromBytes("terra", []byte{1, 2, 3})
	require.NoError(t, err)
	_, err = NormalizeAddress("terra", short)
	require.ErrorIs(t, err, errs.ErrInvalidAddress)
}

func TestResolveAddress(t *testing.T) {
	router := MustModuleAddress("terra", "router")

	got, err := ResolveAddress("terra", "router")
	require.NoError(t, err)
	assert.Equal(t, router, got)

	got, err = ResolveAddress("terra", router)
	require.NoError(t, err)
	assert.Equal(t, router, got)

	_, err = ResolveAddress("terra", MustModuleAddress("osmo", "router"))
	require.ErrorIs(t, err, errs.ErrInvalidAddress)

	_, err = ResolveAddress("terra", " ")
	require.ErrorIs(t, err, errs.ErrInvalidAddress)
}

func TestAddressDeriverNeedsXPub(t *testing.T) {
	_, err := AddressDeriver{Prefix: "terra"}.Derive(0)
	require.Error(t, err)
}

func TestDefaultWSEndpoint(t *testing.T) {
	cases := [][2]string{
		{"http://localhost:8080", "ws://localhost:8080/websocket"},
		{"https://node.example.com/", "wss://node.example.com/websocket"},
		{"ws://node:26657/websocket", "ws://node:26657/websocket"},
		{"ftp://node", ""},
		{"not a url", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc[1], DefaultWSEndpoint(tc[0]), tc[0])
	}
}

func TestWSTxFrame(t *testing.T) {
	ev := models.NewEvent("wasm").Add("action", "swap").Add("return_amount", "50")
	frame, err := EncodeWSTx(1, Tx{Hash: "ABCD", Height: 12, Events: []models.Event{ev}}, []byte(`{"sender":"x"}`))
	require.NoError(t, err)

	tx, ok, err := ParseWSTx(frame)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ABCD", tx.Hash)
	assert.Equal(t, int64(12), tx.Height)
	require.Len(t, tx.Events, 1)
	v, _ := tx.Events[0].Get("return_amount")
	assert.Equal(t, "50", v)

	ack, err := SubscribeAck(1)
	require.NoError(t, err)
	_, ok, err = ParseWSTx(ack)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseWSTx([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"bad query"}}`))
	require.EqualError(t, err, "bad query")
}

func TestParseWSTxHashFromBody(t *testing.T) {
	frame := []byte(`{"jsonrpc":"2.0","id":1,"result":{"data":{"type":"tendermint/event/Tx","value":{"TxResult":{"height":"3","tx":"aGVsbG8=","result":{"code":0,"events":[]}}}}}}`)
	tx, ok, err := ParseWSTx(frame)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824", tx.Hash)
}

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			_, _ = w.Write([]byte(`{"height":7,"time":100,"contract":"c"}`))
		case "/orders":
			assert.Equal(t, "2", r.URL.Query().Get("start_after"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"orders":[{"id":"3"}]}`))
		case "/tx":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req["sender"] == "bad" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"hash":"FF","height":7,"code":2,"codespace":"validation","log":"purchase interval has not elapsed"}`))
				return
			}
			_, _ = w.Write([]byte(`{"hash":"EE","height":7,"code":0,"events":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found","kind":"not_found"}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL + "/")

	h, err := c.LatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), h)

	orders, err := c.Orders(ctx, "2", 5)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "3", orders[0].ID)

	tx, err := c.Broadcast(ctx, BroadcastRequest{Sender: "ok", Msg: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "EE", tx.Hash)

	_, err = c.Broadcast(ctx, BroadcastRequest{Sender: "bad", Msg: map[string]any{}})
	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, uint32(2), txErr.Code)

	_, err = c.Config(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Kind)
}

func TestMultiClientFailover(t *testing.T) {
	var downHits, upHits atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upHits.Add(1)
		if r.URL.Path == "/config" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"config not found","kind":"not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"height":9}`))
	}))
	defer up.Close()

	m, err := NewMultiClient([]string{down.URL, down.URL + "/", "", up.URL}, 1)
	require.NoError(t, err)

	h, err := m.LatestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), h)
	assert.Equal(t, up.URL, m.BaseURL())
	assert.Equal(t, int32(1), downHits.Load())

	_, err = m.Config(context.Background())
	require.Error(t, err)
	assert.Equal(t, up.URL, m.BaseURL())
	assert.Equal(t, int32(1), downHits.Load())

	_, err = NewMultiClient([]string{" ", ""}, 1)
	require.Error(t, err)
}
