package delta

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straddlebot/internal/auth"
)

func TestNewClient(t *testing.T) {
	t.Run("creates client with default configuration", func(t *testing.T) {
		signer := auth.NewSigner("test-key", "test-secret")
		client := NewClient("https://api.india.delta.exchange", signer)

		assert.NotNil(t, client)
		assert.Equal(t, "https://api.india.delta.exchange", client.BaseURL())
		assert.Equal(t, 10*time.Second, client.Timeout())
		assert.Equal(t, 3, client.MaxRetries())
	})

	t.Run("applies custom options", func(t *testing.T) {
		signer := auth.NewSigner("test-key", "test-secret")
		client := NewClient("https://api.india.delta.exchange", signer,
			WithTimeout(30*time.Second),
			WithMaxRetries(5),
			WithRateLimit(100, 10),
			WithPageSize(500),
		)

		assert.Equal(t, 30*time.Second, client.Timeout())
		assert.Equal(t, 5, client.MaxRetries())
		assert.Equal(t, 500, client.pageSize)
	})

	t.Run("handles nil signer", func(t *testing.T) {
		client := NewClient("https://api.india.delta.exchange", nil)
		assert.NotNil(t, client)
	})
}

func TestClient_GetProduct(t *testing.T) {
	t.Run("parses product response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/products/ETHUSDT", r.URL.Path)
			assert.Equal(t, "GET", r.Method)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success":true,"result":{"id":176,"symbol":"ETHUSDT","description":"ETH perpetual","contract_type":"perpetual_futures","state":"live"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil)

		product, err := client.GetProduct(context.Background(), "ETHUSDT")

		require.NoError(t, err)
		assert.Equal(t, int64(176), product.ID)
		assert.Equal(t, "ETHUSDT", product.Symbol)
		assert.Equal(t, "live", product.State)
	})

	t.Run("resolves product id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":true,"result":{"id":176,"symbol":"ETHUSDT"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil)

		id, err := client.GetProductID(context.Background(), "ETHUSDT")

		require.NoError(t, err)
		assert.Equal(t, int64(176), id)
	})

	t.Run("surfaces envelope failure as APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error":{"code":"not_found","message":"product not found"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil)

		product, err := client.GetProduct(context.Background(), "NOPE")

		assert.Nil(t, product)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "not_found", apiErr.Code)
	})

	t.Run("rejects empty symbol", func(t *testing.T) {
		client := NewClient("http://unused", nil)

		_, err := client.GetProduct(context.Background(), "")
		assert.Error(t, err)
	})
}

func TestClient_GetSpotPrice(t *testing.T) {
	t.Run("returns close price for the requested symbol", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/tickers", r.URL.Path)
			w.Write([]byte(`{"success":true,"result":[
				{"symbol":"BTCUSDT","close":43000.5},
				{"symbol":"ETHUSDT","close":2010.25}
			]}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil)

		price, err := client.GetSpotPrice(context.Background(), "ETHUSDT")

		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.RequireFromString("2010.25")))
	})

	t.Run("returns ErrNotFound when symbol is absent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":true,"result":[{"symbol":"BTCUSDT","close":43000.5}]}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil)

		_, err := client.GetSpotPrice(context.Background(), "ETHUSDT")

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("fails on malformed result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":true,"result":{"not":"a list"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil)

		_, err := client.GetSpotPrice(context.Background(), "ETHUSDT")
		assert.Error(t, err)
	})
}

func TestClient_GetTicker(t *testing.T) {
	t.Run("parses quotes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/tickers/C-ETH-2000-281223", r.URL.Path)
			w.Write([]byte(`{"success":true,"result":{"symbol":"C-ETH-2000-281223","close":97.2,"quotes":{"best_bid":"95.5","best_ask":"96.5"}}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil)

		ticker, err := client.GetTicker(context.Background(), "C-ETH-2000-281223")

		require.NoError(t, err)
		assert.True(t, ticker.Quotes.BestBid.Equal(decimal.RequireFromString("95.5")))
		assert.True(t, ticker.Quotes.BestAsk.Equal(decimal.RequireFromString("96.5")))
	})

	t.Run("maps non-200 to APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(404)
			w.Write([]byte(`{"success":false,"error":{"code":"not_found"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil, WithMaxRetries(0))

		_, err := client.GetTicker(context.Background(), "MISSING")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 404, apiErr.HTTPStatus)
	})
}

func TestClient_ListOptions(t *testing.T) {
	t.Run("sends contract type, state and page size", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/products", r.URL.Path)
			assert.Equal(t, "call_options", r.URL.Query().Get("contract_types"))
			assert.Equal(t, "live", r.URL.Query().Get("states"))
			assert.Equal(t, "10000", r.URL.Query().Get("page_size"))
			w.Write([]byte(`{"success":true,"result":[
				{"id":1,"symbol":"C-ETH-2000-281223","description":"Call ETH 2000","strike_price":"2000"}
			]}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil)

		products, err := client.ListOptions(context.Background(), ContractTypeCallOptions)

		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, int64(1), products[0].ID)
		assert.True(t, products[0].StrikePrice.Equal(decimal.NewFromInt(2000)))
	})

	t.Run("follows the pagination cursor until exhausted", func(t *testing.T) {
		pages := map[string]string{
			"": `{"success":true,"result":[
				{"id":1,"symbol":"C-ETH-1900-281223","strike_price":"1900"},
				{"id":2,"symbol":"C-ETH-2000-281223","strike_price":"2000"}
			],"meta":{"after":"cursor-2"}}`,
			"cursor-2": `{"success":true,"result":[
				{"id":3,"symbol":"C-ETH-2100-281223","strike_price":"2100"}
			],"meta":{"after":""}}`,
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(pages[r.URL.Query().Get("after")]))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil)

		products, err := client.ListOptions(context.Background(), ContractTypeCallOptions)

		require.NoError(t, err)
		require.Len(t, products, 3)
		// Page order preserved
		assert.Equal(t, int64(1), products[0].ID)
		assert.Equal(t, int64(2), products[1].ID)
		assert.Equal(t, int64(3), products[2].ID)
	})

	t.Run("rejects unknown contract type", func(t *testing.T) {
		client := NewClient("http://unused", nil)

		_, err := client.ListOptions(context.Background(), "interest_rate_swaps")
		assert.Error(t, err)
	})
}

func TestClient_PlaceOrder(t *testing.T) {
	signer := auth.NewSigner("test-key", "test-secret")

	validOrder := func() *OrderRequest {
		return &OrderRequest{
			OrderType:          "market_order",
			Size:               1,
			Side:               "sell",
			ProductID:          123,
			StopLossPrice:      decimal.RequireFromString("95.5"),
			StopLossLimitPrice: decimal.RequireFromString("93.59"),
		}
	}

	t.Run("submits the canonical body with signed headers", func(t *testing.T) {
		var gotBody string
		var gotHeaders http.Header
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/orders", r.URL.Path)
			assert.Equal(t, "POST", r.Method)
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			gotHeaders = r.Header.Clone()
			w.Write([]byte(`{"success":true,"result":{"id":99,"product_id":123,"size":1,"side":"sell","state":"closed"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, signer)

		resp, err := client.PlaceOrder(context.Background(), validOrder())

		require.NoError(t, err)
		assert.Equal(t, int64(99), resp.ID)

		expectedBody := `{"order_type":"market_order","size":1,"side":"sell","product_id":123,"bracket_stop_loss_price":95.5,"bracket_stop_loss_limit_price":93.59}`
		assert.Equal(t, expectedBody, gotBody)

		assert.Equal(t, "test-key", gotHeaders.Get("api-key"))
		assert.Equal(t, "rest-client", gotHeaders.Get("User-Agent"))
		assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))

		// The signature must verify against the exact body and timestamp
		timestamp := gotHeaders.Get("timestamp")
		require.NotEmpty(t, timestamp)
		assert.True(t, signer.ValidateSignature("POST", "/v2/orders", gotBody, timestamp, gotHeaders.Get("signature")))
	})

	t.Run("never retries order placement", func(t *testing.T) {
		callCount := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callCount++
			w.WriteHeader(500)
			w.Write([]byte(`{"success":false,"error":{"code":"internal_error"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, signer, WithMaxRetries(3))

		_, err := client.PlaceOrder(context.Background(), validOrder())

		assert.Error(t, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("surfaces exchange rejection as APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error":{"code":"insufficient_margin","message":"not enough margin"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, signer)

		_, err := client.PlaceOrder(context.Background(), validOrder())

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "insufficient_margin", apiErr.Code)
	})

	t.Run("requires a signer", func(t *testing.T) {
		client := NewClient("http://unused", nil)

		_, err := client.PlaceOrder(context.Background(), validOrder())
		assert.ErrorContains(t, err, "signer required")
	})

	t.Run("validates the request", func(t *testing.T) {
		client := NewClient("http://unused", signer)

		cases := map[string]func(*OrderRequest){
			"missing side":       func(r *OrderRequest) { r.Side = "" },
			"zero size":          func(r *OrderRequest) { r.Size = 0 },
			"missing product id": func(r *OrderRequest) { r.ProductID = 0 },
			"zero stop loss":     func(r *OrderRequest) { r.StopLossPrice = decimal.Zero },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				req := validOrder()
				mutate(req)
				_, err := client.PlaceOrder(context.Background(), req)
				assert.Error(t, err)
			})
		}
	})
}

func TestClient_Retries(t *testing.T) {
	t.Run("retries reads on server error", func(t *testing.T) {
		callCount := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callCount++
			if callCount < 3 {
				w.WriteHeader(500)
				return
			}
			w.Write([]byte(`{"success":true,"result":{"id":176,"symbol":"ETHUSDT"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil, WithMaxRetries(3))

		product, err := client.GetProduct(context.Background(), "ETHUSDT")

		require.NoError(t, err)
		assert.Equal(t, int64(176), product.ID)
		assert.Equal(t, 3, callCount)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(503)
		}))
		defer server.Close()

		client := NewClient(server.URL, nil, WithMaxRetries(2))

		_, err := client.GetProduct(context.Background(), "ETHUSDT")

		assert.Error(t, err)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		callCount := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callCount++
			w.WriteHeader(400)
			w.Write([]byte(`{"success":false,"error":{"code":"bad_request"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil, WithMaxRetries(3))

		_, err := client.GetProduct(context.Background(), "ETHUSDT")

		assert.Error(t, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"success":true,"result":{}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, nil, WithMaxRetries(0))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := client.GetProduct(ctx, "ETHUSDT")
		assert.Error(t, err)
	})
}

func TestClient_ErrorHook(t *testing.T) {
	t.Run("reports the failed operation once", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(503)
		}))
		defer server.Close()

		var failed []string
		client := NewClient(server.URL, nil,
			WithMaxRetries(2),
			WithErrorHook(func(operation string) { failed = append(failed, operation) }),
		)

		_, err := client.GetProduct(context.Background(), "ETHUSDT")

		assert.Error(t, err)
		assert.Equal(t, []string{"GetProduct"}, failed)
	})

	t.Run("stays silent on success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":true,"result":{"id":176,"symbol":"ETHUSDT"}}`))
		}))
		defer server.Close()

		hookCalls := 0
		client := NewClient(server.URL, nil, WithErrorHook(func(string) { hookCalls++ }))

		_, err := client.GetProduct(context.Background(), "ETHUSDT")

		require.NoError(t, err)
		assert.Zero(t, hookCalls)
	})
}

func TestOrderRequest_CanonicalBody(t *testing.T) {
	t.Run("matches the documented byte sequence", func(t *testing.T) {
		req := &OrderRequest{
			OrderType:          "market_order",
			Size:               1,
			Side:               "sell",
			ProductID:          123,
			StopLossPrice:      decimal.RequireFromString("95.5"),
			StopLossLimitPrice: decimal.RequireFromString("95.5").Mul(decimal.RequireFromString("0.98")),
		}

		expected := `{"order_type":"market_order","size":1,"side":"sell","product_id":123,"bracket_stop_loss_price":95.5,"bracket_stop_loss_limit_price":93.59}`
		assert.Equal(t, expected, string(req.CanonicalBody()))
	})

	t.Run("contains no interior whitespace", func(t *testing.T) {
		req := &OrderRequest{
			OrderType:          "market_order",
			Size:               25,
			Side:               "sell",
			ProductID:          40742,
			StopLossPrice:      decimal.RequireFromString("104.25"),
			StopLossLimitPrice: decimal.RequireFromString("102.165"),
		}

		body := string(req.CanonicalBody())
		assert.NotContains(t, body, " ")
		assert.NotContains(t, body, "\n")
	})
}
