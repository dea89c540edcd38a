package http

import (
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/chain"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Websocket streams executed transactions in the CometBFT event format to
// clients that send a subscribe request.
func (h *Handler) Websocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	results, cancel := h.Node.Subscribe(wsBuffer)
	defer cancel()

	var (
		writeMu    sync.Mutex
		subscribed = make(chan int, 1)
		done       = make(chan struct{})
	)
	write := func(frame []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, frame)
	}

	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     int    `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(msg, &req); err != nil || req.Method != "subscribe" {
				continue
			}
			ack, err := chain.SubscribeAck(req.ID)
			if err != nil || write(ack) != nil {
				return
			}
			select {
			case subscribed <- req.ID:
			default:
			}
		}
	}()

	var id int
	select {
	case id = <-subscribed:
	case <-done:
		return
	case <-r.Context().Done():
		return
	}

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			rawTx, err := json.Marshal(res.Tx)
			if err != nil {
				h.Logger.Warn("encode tx failed", zap.String("hash", res.Hash), zap.Error(err))
				continue
			}
			frame, err := chain.EncodeWSTx(id, chain.Tx{
				Hash:      res.Hash,
				Height:    res.Height,
				Code:      res.Code,
				Codespace: res.Codespace,
				Log:       res.Log,
				Events:    res.Events,
			}, rawTx)
			if err != nil {
				h.Logger.Warn("encode ws frame failed", zap.String("hash", res.Hash), zap.Error(err))
				continue
			}
			if err := write(frame); err != nil {
				return
			}
		}
	}
}
