package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"straddlebot/internal/delta"
)

// Leg kinds
const (
	LegCall = "call"
	LegPut  = "put"
)

// Exchange is the slice of the REST client the strategy needs. The
// concrete client satisfies it; tests substitute a stub.
type Exchange interface {
	GetSpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	ListOptions(ctx context.Context, contractType string) ([]delta.Product, error)
	GetTicker(ctx context.Context, symbol string) (*delta.Ticker, error)
	PlaceOrder(ctx context.Context, req *delta.OrderRequest) (*delta.OrderResponse, error)
}

// LegReport records the outcome of one leg of the straddle
type LegReport struct {
	Kind               string          `json:"kind"`
	Symbol             string          `json:"symbol"`
	ProductID          int64           `json:"product_id"`
	StrikePrice        decimal.Decimal `json:"strike_price"`
	BestBid            decimal.Decimal `json:"best_bid"`
	StopLossPrice      decimal.Decimal `json:"stop_loss_price"`
	StopLossLimitPrice decimal.Decimal `json:"stop_loss_limit_price"`
	OrderID            int64           `json:"order_id,omitempty"`
	OrderState         string          `json:"order_state,omitempty"`
	Placed             bool            `json:"placed"`
	Error              string          `json:"error,omitempty"`
}

// RunReport summarizes one execution of the strategy
type RunReport struct {
	RunID      string          `json:"run_id"`
	Mode       string          `json:"mode"`
	Symbol     string          `json:"symbol"`
	SpotPrice  decimal.Decimal `json:"spot_price"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Legs       []LegReport     `json:"legs"`
	Error      string          `json:"error,omitempty"`
}

// Succeeded reports whether every leg was placed without error
func (r *RunReport) Succeeded() bool {
	if r.Error != "" || len(r.Legs) != 2 {
		return false
	}
	for _, leg := range r.Legs {
		if !leg.Placed || leg.Error != "" {
			return false
		}
	}
	return true
}

// OneLegged reports whether exactly one leg was placed. This is the
// dangerous outcome: the position is directional, not a straddle, and a
// human needs to intervene.
func (r *RunReport) OneLegged() bool {
	placed := 0
	for _, leg := range r.Legs {
		if leg.Placed {
			placed++
		}
	}
	return placed == 1
}
