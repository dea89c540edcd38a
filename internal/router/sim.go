package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dauTT/astroport-dca/internal/asset"
	"github.com/dauTT/astroport-dca/internal/errs"
	"github.com/dauTT/astroport-dca/internal/ledger"
	"github.com/dauTT/astroport-dca/internal/models"
)

var ErrNoPool = errors.New("no pool for pair")

// Pair is an ordered offer/ask couple.
type Pair struct {
	Offer asset.Info
	Ask   asset.Info
}

// Sim settles swaps against its own inventory on a Memory ledger at fixed
// rates, and charges a per-hop network fee to the caller.
type Sim struct {
	addr         string
	feeCollector string
	ledger       *ledger.Memory
	rates        map[Pair]decimal.Decimal
	feePerHop    asset.Asset
	logger       *zap.Logger
}

type SimOptions struct {
	Address      string
	FeeCollector string
	Rates        map[Pair]decimal.Decimal
	// FeePerHop is debited from the caller for every hop executed.
	FeePerHop asset.Asset
}

func NewSim(l *ledger.Memory, opts SimOptions, logger *zap.Logger) *Sim {
	if logger == nil {
		logger = zap.NewNop()
	}
	rates := make(map[Pair]decimal.Decimal, len(opts.Rates))
	for p, r := range opts.Rates {
		rates[p] = r
	}
	return &Sim{
		addr:         opts.Address,
		feeCollector: opts.FeeCollector,
		ledger:       l,
		rates:        rates,
		feePerHop:    opts.FeePerHop,
		logger:       logger,
	}
}

func (s *Sim) Address() string { return s.addr }

// Quote returns what amount of op.Offer() buys through one hop.
func (s *Sim) Quote(op SwapOperation, amount asset.Amount) (asset.Amount, error) {
	rate, ok := s.rates[Pair{Offer: op.Offer(), Ask: op.Ask()}]
	if !ok {
		return asset.Amount{}, fmt.Errorf("%w: %s", ErrNoPool, op)
	}
	in, err := decimal.NewFromString(amount.String())
	if err != nil {
		return asset.Amount{}, err
	}
	return asset.ParseAmount(in.Mul(rate).Floor().String())
}

func (s *Sim) ExecuteSwap(ctx context.Context, sender string, req SwapRequest) ([]models.Event, error) {
	if len(req.Operations) == 0 {
		return nil, fmt.Errorf("%w: no swap operations", errs.ErrInvalidInput)
	}
	if err := ValidateRoute(req.Operations); err != nil {
		return nil, err
	}
	if req.Offer.Info != req.Operations[0].Offer() {
		return nil, fmt.Errorf("%w: offer %s, first hop offers %s", errs.ErrInvalidInput, req.Offer.Info, req.Operations[0].Offer())
	}
	if req.Offer.Info.IsNative() {
		if err := ledger.AssertAttached(req.Funds, req.Offer); err != nil {
			return nil, err
		}
	}

	returns := make([]asset.Amount, len(req.Operations))
	amount := req.Offer.Amount
	for i, op := range req.Operations {
		out, err := s.Quote(op, amount)
		if err != nil {
			return nil, err
		}
		returns[i] = out
		amount = out
	}

	var events []models.Event
	if !s.feePerHop.Amount.IsZero() {
		fee, err := s.feePerHop.Amount.Mul(asset.NewAmount(uint64(len(req.Operations))))
		if err != nil {
			return nil, err
		}
		ins, err := ledger.Transfer(s.feeCollector, asset.New(s.feePerHop.Info, fee))
		if err != nil {
			return nil, err
		}
		evs, err := s.ledger.Execute(ctx, sender, ins)
		if err != nil {
			return nil, fmt.Errorf("charge network fee: %w", err)
		}
		events = append(events, evs...)
	}

	offered := req.Offer.Amount
	for i, op := range req.Operations {
		receiver := s.addr
		if i == len(req.Operations)-1 {
			receiver = req.Recipient
		}
		events = append(events, models.NewEvent("wasm").
			Add("_contract_address", s.addr).
			Add("action", "swap").
			Add("sender", sender).
			Add("receiver", receiver).
			Add("offer_asset", op.Offer().Key()).
			Add("ask_asset", op.Ask().Key()).
			Add("offer_amount", offered.String()).
			Add("return_amount", returns[i].String()).
			Add("max_spread", req.MaxSpread.String()))
		offered = returns[i]
	}

	last := req.Operations[len(req.Operations)-1].Ask()
	ins, err := ledger.Transfer(req.Recipient, asset.New(last, amount))
	if err != nil {
		return nil, err
	}
	evs, err := s.ledger.Execute(ctx, s.addr, ins)
	if err != nil {
		return nil, fmt.Errorf("pay out %s%s: %w", amount, last, err)
	}
	events = append(events, evs...)

	s.logger.Debug("swap executed",
		zap.String("sender", sender),
		zap.String("offer", req.Offer.String()),
		zap.String("return", amount.String()+last.Key()),
		zap.Int("hops", len(req.Operations)))
	return events, nil
}
