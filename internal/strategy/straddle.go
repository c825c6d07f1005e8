package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"straddlebot/internal/config"
	"straddlebot/internal/delta"
)

// Straddle sells an at-the-money call and put pair with bracket stop-losses
type Straddle struct {
	exchange Exchange
	log      zerolog.Logger

	symbol          string
	underlying      string
	quantity        int64
	stopLossFactor  decimal.Decimal
	stopPriceFactor decimal.Decimal
	mode            string
	dryRun          bool
}

// New builds the strategy from the loaded configuration
func New(exchange Exchange, cfg *config.Config, log zerolog.Logger) *Straddle {
	return &Straddle{
		exchange:        exchange,
		log:             log.With().Str("component", "strategy").Logger(),
		symbol:          cfg.Market.Symbol,
		underlying:      cfg.Market.Underlying,
		quantity:        cfg.Strategy.Quantity,
		stopLossFactor:  decimal.NewFromFloat(cfg.Strategy.StopLossFactor),
		stopPriceFactor: decimal.NewFromFloat(cfg.Strategy.StopPriceFactor),
		mode:            cfg.Strategy.Mode,
		dryRun:          cfg.DryRun(),
	}
}

// Execute runs one straddle sale: read the spot price, pick the ATM call
// and put, price their stop-losses off the current best bid, and sell both
// legs, call first. The returned report is always non-nil and records
// whatever progress was made.
//
// A failure before any order aborts the run cleanly. A failure between the
// two orders leaves a one-legged position; nothing is unwound, the report
// flags it and the operator decides.
func (s *Straddle) Execute(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Mode:      s.mode,
		Symbol:    s.symbol,
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	log := s.log.With().Str("run_id", report.RunID).Logger()
	log.Info().Str("mode", s.mode).Str("symbol", s.symbol).Msg("starting straddle run")

	spot, err := s.exchange.GetSpotPrice(ctx, s.symbol)
	if err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("failed to read spot price: %w", err)
	}
	report.SpotPrice = spot
	log.Info().Str("spot", spot.String()).Msg("spot price read")

	calls, err := s.exchange.ListOptions(ctx, delta.ContractTypeCallOptions)
	if err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("failed to list call options: %w", err)
	}
	puts, err := s.exchange.ListOptions(ctx, delta.ContractTypePutOptions)
	if err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("failed to list put options: %w", err)
	}

	callLeg, err := s.prepareLeg(ctx, log, LegCall, calls, spot)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}
	putLeg, err := s.prepareLeg(ctx, log, LegPut, puts, spot)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}

	// Call first, then put. The order matters for failure handling: a
	// failed first leg aborts the run with no position, a failed second
	// leg leaves a one-legged position.
	report.Legs = append(report.Legs, s.sellLeg(ctx, log, callLeg))
	if report.Legs[0].Error != "" {
		report.Error = report.Legs[0].Error
		return report, fmt.Errorf("call leg failed, run aborted before put: %s", report.Legs[0].Error)
	}

	report.Legs = append(report.Legs, s.sellLeg(ctx, log, putLeg))
	if report.Legs[1].Error != "" {
		report.Error = report.Legs[1].Error
		log.Error().
			Str("call_symbol", report.Legs[0].Symbol).
			Str("put_symbol", report.Legs[1].Symbol).
			Msg("put leg failed after call filled: position is one-legged, manual intervention required")
		return report, fmt.Errorf("put leg failed after call filled: %s", report.Legs[1].Error)
	}

	log.Info().
		Str("call", report.Legs[0].Symbol).
		Str("put", report.Legs[1].Symbol).
		Msg("straddle run complete")
	return report, nil
}

// prepareLeg selects the ATM contract of the given kind and prices its
// stop-loss off the current best bid
func (s *Straddle) prepareLeg(ctx context.Context, log zerolog.Logger, kind string, candidates []delta.Product, spot decimal.Decimal) (*LegReport, error) {
	contract, err := SelectATM(candidates, s.underlying, spot)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s contract: %w", kind, err)
	}

	ticker, err := s.exchange.GetTicker(ctx, contract.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s ticker %s: %w", kind, contract.Symbol, err)
	}

	bid := ticker.Quotes.BestBid
	if bid.IsZero() {
		return nil, fmt.Errorf("no bid for %s contract %s", kind, contract.Symbol)
	}

	stopLoss := bid.Mul(s.stopLossFactor).Round(2)
	stopLimit := stopLoss.Mul(s.stopPriceFactor).Round(2)

	log.Info().
		Str("leg", kind).
		Str("symbol", contract.Symbol).
		Str("strike", contract.StrikePrice.String()).
		Str("best_bid", bid.String()).
		Str("stop_loss", stopLoss.String()).
		Str("stop_limit", stopLimit.String()).
		Msg("leg prepared")

	return &LegReport{
		Kind:               kind,
		Symbol:             contract.Symbol,
		ProductID:          contract.ID,
		StrikePrice:        contract.StrikePrice,
		BestBid:            bid,
		StopLossPrice:      stopLoss,
		StopLossLimitPrice: stopLimit,
	}, nil
}

// sellLeg submits the market sell for one prepared leg. In dry-run mode
// the order is logged but never sent.
func (s *Straddle) sellLeg(ctx context.Context, log zerolog.Logger, leg *LegReport) LegReport {
	result := *leg

	req := &delta.OrderRequest{
		OrderType:          "market_order",
		Size:               s.quantity,
		Side:               "sell",
		ProductID:          leg.ProductID,
		StopLossPrice:      leg.StopLossPrice,
		StopLossLimitPrice: leg.StopLossLimitPrice,
	}

	if s.dryRun {
		log.Info().
			Str("leg", leg.Kind).
			Str("symbol", leg.Symbol).
			RawJSON("order", req.CanonicalBody()).
			Msg("dry run, order not sent")
		result.Placed = true
		result.OrderState = "simulated"
		return result
	}

	resp, err := s.exchange.PlaceOrder(ctx, req)
	if err != nil {
		result.Error = err.Error()
		log.Error().Err(err).Str("leg", leg.Kind).Str("symbol", leg.Symbol).Msg("order failed")
		return result
	}

	result.Placed = true
	result.OrderID = resp.ID
	result.OrderState = resp.State
	log.Info().
		Str("leg", leg.Kind).
		Str("symbol", leg.Symbol).
		Int64("order_id", resp.ID).
		Str("state", resp.State).
		Msg("order placed")
	return result
}
