package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/chain"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/host"
)

type Handler struct {
	Node *host.Host
	// Sim enables the faucet endpoints of the simulated ledger.
	Sim bool
	// AllowUnsigned lets POST /tx take a bare Tx whose sender is trusted as
	// given. Only for local simulation.
	AllowUnsigned bool
	Logger        *zap.Logger
	validate *validator.Validate
}

func NewHandler(node *host.Host, sim bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Node: node, Sim: sim, Logger: logger, validate: validator.New()}
}

type mintRequest struct {
	Address string      `json:"address" validate:"required"`
	Asset   asset.Asset `json:"asset"`
}

type approveRequest struct {
	Token   string       `json:"token" validate:"required"`
	Owner   string       `json:"owner" validate:"required"`
	Spender string       `json:"spender" validate:"required"`
	Amount  asset.Amount `json:"amount"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.Node.Status(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// txEnvelope is either a chain.SignedTx or, with AllowUnsigned, a bare
// host.Tx.
type txEnvelope struct {
	chain.SignedTx
	host.Tx
}

// Broadcast executes a transaction. Once executed, the body is the TxResult
// whatever the outcome and the status code reflects the error kind. A tx
// refused before execution gets an error body.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var env txEnvelope
	if err := decodeBody(r, &env); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		res host.TxResult
		err error
	)
	switch {
	case len(env.Signature) > 0 || len(env.Body) > 0:
		res, err = h.Node.ExecuteSigned(r.Context(), env.SignedTx)
	case h.AllowUnsigned:
		if err := h.validate.Struct(env.Tx); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res, err = h.Node.Execute(r.Context(), env.Tx)
	default:
		writeErr(w, fmt.Errorf("%w: transaction is not signed", errs.ErrUnauthorized))
		return
	}
	if err != nil {
		if res.Hash == "" {
			writeErr(w, err)
			return
		}
		writeJSON(w, statusFor(errs.KindOf(err)), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	seq, err := h.Node.AccountSequence(r.Context(), addr)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain.Account{Address: addr, Sequence: seq})
}

func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Node.Config(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	orders, err := h.Node.Orders(r.Context(), r.URL.Query().Get("start_after"), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}
	order, err := h.Node.Order(r.Context(), orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) OwnerOrders(w http.ResponseWriter, r *http.Request) {
	infos, err := h.Node.OwnerOrders(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": infos})
}

func (h *Handler) LastPurchase(w http.ResponseWriter, r *http.Request) {
	reply, err := h.Node.LastSwapReply(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

func (h *Handler) Balances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Node.Balances(chi.URLParam(r, "address"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if balances == nil {
		balances = []asset.Asset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Node.Mint(r.Context(), req.Address, req.Asset); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Node.Approve(r.Context(), req.Token, req.Owner, req.Spender, req.Amount); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
