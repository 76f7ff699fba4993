package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dyike/SchwabAI/internal/logging"
	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountJSON = `{
  "securitiesAccount": {
    "accountNumber": "123",
    "positions": [
      {"longQuantity": 10, "shortQuantity": 0, "averagePrice": 150, "marketValue": 1800,
       "instrument": {"symbol": "AAPL", "assetType": "EQUITY", "fundamental": {"sector": "Technology"}}},
      {"longQuantity": 5, "shortQuantity": 1, "averagePrice": 400, "marketValue": 1700,
       "instrument": {"symbol": "SPY", "assetType": "ETF"}}
    ],
    "currentBalances": {"liquidationValue": 10250, "cashBalance": 6500}
  }
}`

func newSchwabServer(t *testing.T, orders *[]orderBody) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/trader/v1/accounts/accountNumbers", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"accountNumber":"999","hashValue":"OTHER"},{"accountNumber":"123","hashValue":"HASH"}]`)
	})
	mux.HandleFunc("/trader/v1/accounts/HASH", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "positions", r.URL.Query().Get("fields"))
		io.WriteString(w, accountJSON)
	})
	mux.HandleFunc("/trader/v1/accounts/HASH/orders", func(w http.ResponseWriter, r *http.Request) {
		var body orderBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.OrderLegCollection[0].Instrument.Symbol == "BAD" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"message":"rejected"}`)
			return
		}
		*orders = append(*orders, body)
		w.Header().Set("Location", "https://api.schwabapi.com/trader/v1/accounts/HASH/orders/555")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/marketdata/v1/quotes", func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbols")
		if sym == "EXPIRED" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"`+sym+`":{"quote":{"lastPrice":181.5,"netChange":1.5,"netPercentChange":0.83,"totalVolume":1000,"quoteTime":1700000000000}}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSchwabPortfolio(t *testing.T) {
	srv := newSchwabServer(t, nil)
	b := NewSchwab(srv.Client(), SchwabOptions{BaseURL: srv.URL, AccountID: "123", Logger: logging.Discard()})

	pf, err := b.Portfolio(context.Background())
	require.NoError(t, err)
	require.Len(t, pf.Positions, 2)

	assert.Equal(t, "123", pf.AccountID)
	// The reported liquidation value is ignored in favour of cash plus positions.
	assert.True(t, pf.AccountValue.Equal(decimal.NewFromInt(10000)), pf.AccountValue.String())
	assert.True(t, pf.Cash.Equal(decimal.NewFromInt(6500)))

	repriced := pf.WithQuotes(map[string]models.Quote{"AAPL": {Symbol: "AAPL", Price: decimal.NewFromInt(180)}})
	assert.True(t, repriced.AccountValue.Equal(pf.AccountValue), repriced.AccountValue.String())

	aapl, ok := pf.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, "Technology", aapl.Sector)
	assert.True(t, aapl.CurrentPrice.Equal(decimal.NewFromInt(180)))
	assert.InDelta(t, 18.0, pf.Weight("AAPL"), 0.001)

	spy, ok := pf.Position("SPY")
	require.True(t, ok)
	assert.Equal(t, models.UnknownSector, spy.Sector)
	assert.True(t, spy.Quantity.Equal(decimal.NewFromInt(4)))
}

func TestSchwabPlaceOrder(t *testing.T) {
	var orders []orderBody
	srv := newSchwabServer(t, &orders)
	b := NewSchwab(srv.Client(), SchwabOptions{BaseURL: srv.URL, AccountID: "123", Logger: logging.Discard()})

	id, err := b.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol:     "AAPL",
		Side:       models.SideBuy,
		Quantity:   decimal.NewFromInt(3),
		Type:       models.OrderTypeLimit,
		LimitPrice: decimal.NewFromFloat(180.25),
	})
	require.NoError(t, err)
	assert.Equal(t, "555", id)
	require.Len(t, orders, 1)
	assert.Equal(t, "LIMIT", orders[0].OrderType)
	assert.Equal(t, "180.25", orders[0].Price)
	assert.Equal(t, "SINGLE", orders[0].OrderStrategyType)
	assert.Equal(t, "BUY", orders[0].OrderLegCollection[0].Instruction)
	assert.Equal(t, "3", orders[0].OrderLegCollection[0].Quantity)
	assert.Equal(t, "EQUITY", orders[0].OrderLegCollection[0].Instrument.AssetType)

	_, err = b.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "BAD", Side: models.SideSell, Quantity: decimal.NewFromInt(1), Type: models.OrderTypeMarket})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = b.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "AAPL", Side: models.SideBuy, Quantity: decimal.NewFromInt(1), DryRun: true})
	require.Error(t, err)
	assert.Len(t, orders, 1)
}

func TestSchwabQuote(t *testing.T) {
	srv := newSchwabServer(t, nil)
	b := NewSchwab(srv.Client(), SchwabOptions{BaseURL: srv.URL, Logger: logging.Discard()})

	q, err := b.Quote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "schwab", q.Provider)
	assert.True(t, q.Price.Equal(decimal.NewFromFloat(181.5)))

	_, err = b.Quote(context.Background(), "EXPIRED")
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
}

func TestSchwabQuoteEscapesSymbol(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/marketdata/v1/quotes", r.URL.Path)
		rawQuery = r.URL.RawQuery
		sym := r.URL.Query().Get("symbols")
		io.WriteString(w, `{"`+sym+`":{"quote":{"lastPrice":450}}}`)
	}))
	t.Cleanup(srv.Close)
	b := NewSchwab(srv.Client(), SchwabOptions{BaseURL: srv.URL, Logger: logging.Discard()})

	for _, sym := range []string{"BRK/B", "BF.B", "A&B"} {
		q, err := b.Quote(context.Background(), sym)
		require.NoError(t, err, sym)
		assert.Equal(t, sym, q.Symbol)
		assert.True(t, q.Price.Equal(decimal.NewFromInt(450)))
	}
	assert.Equal(t, "symbols=A%26B", rawQuery)
}

func TestSchwabUnknownAccount(t *testing.T) {
	srv := newSchwabServer(t, nil)
	b := NewSchwab(srv.Client(), SchwabOptions{BaseURL: srv.URL, AccountID: "777", Logger: logging.Discard()})
	_, err := b.Portfolio(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "777")
}
