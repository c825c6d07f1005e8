package delta

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// apiResponse is the envelope every v2 endpoint wraps its payload in.
// Success must be checked even on HTTP 200: the exchange reports request
// failures inside the body.
type apiResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Meta    *pageMeta       `json:"meta,omitempty"`
	Error   *apiErrorBody   `json:"error,omitempty"`
}

// pageMeta carries the pagination cursors for list endpoints
type pageMeta struct {
	After  string `json:"after"`
	Before string `json:"before"`
}

// Product represents a tradable contract. For options, StrikePrice and
// ContractType are populated; Description carries the human-readable
// contract name including the underlying ticker.
type Product struct {
	ID           int64           `json:"id"`
	Symbol       string          `json:"symbol"`
	Description  string          `json:"description"`
	ContractType string          `json:"contract_type"`
	State        string          `json:"state"`
	StrikePrice  decimal.Decimal `json:"strike_price"`
}

// Quotes holds the top of book for a contract
type Quotes struct {
	BestBid decimal.Decimal `json:"best_bid"`
	BestAsk decimal.Decimal `json:"best_ask"`
}

// Ticker represents a point-in-time market snapshot for one symbol
type Ticker struct {
	Symbol string          `json:"symbol"`
	Close  decimal.Decimal `json:"close"`
	Quotes Quotes          `json:"quotes"`
}

// OrderRequest represents a market order with an attached bracket stop-loss
type OrderRequest struct {
	OrderType          string          `json:"order_type"`
	Size               int64           `json:"size"`
	Side               string          `json:"side"`
	ProductID          int64           `json:"product_id"`
	StopLossPrice      decimal.Decimal `json:"bracket_stop_loss_price"`
	StopLossLimitPrice decimal.Decimal `json:"bracket_stop_loss_limit_price"`
}

// CanonicalBody renders the order to its canonical wire form: fixed key
// order, no interior whitespace, prices as bare numbers. The signature is
// computed over these exact bytes, so this rendering must not change.
func (r *OrderRequest) CanonicalBody() []byte {
	var b bytes.Buffer
	b.WriteString(`{"order_type":`)
	b.WriteString(strconv.Quote(r.OrderType))
	b.WriteString(`,"size":`)
	b.WriteString(strconv.FormatInt(r.Size, 10))
	b.WriteString(`,"side":`)
	b.WriteString(strconv.Quote(r.Side))
	b.WriteString(`,"product_id":`)
	b.WriteString(strconv.FormatInt(r.ProductID, 10))
	b.WriteString(`,"bracket_stop_loss_price":`)
	b.WriteString(r.StopLossPrice.String())
	b.WriteString(`,"bracket_stop_loss_limit_price":`)
	b.WriteString(r.StopLossLimitPrice.String())
	b.WriteString(`}`)
	return b.Bytes()
}

// OrderResponse represents the exchange's view of a placed order
type OrderResponse struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	Size          int64           `json:"size"`
	UnfilledSize  int64           `json:"unfilled_size"`
	Side          string          `json:"side"`
	OrderType     string          `json:"order_type"`
	State         string          `json:"state"`
	AveragePrice  decimal.Decimal `json:"average_fill_price"`
	StopLossPrice decimal.Decimal `json:"bracket_stop_loss_price"`
	CreatedAt     string          `json:"created_at"`
}
