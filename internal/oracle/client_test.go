package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuoteServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestClient_Lookup(t *testing.T) {
	c := newQuoteServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"AAPL","price":"187.50","prev_close":"185.00","beta":"1.2"}`)
	})

	q, err := c.Lookup(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.NewFromFloat(187.5)))
	assert.True(t, q.PrevClose.Equal(decimal.NewFromInt(185)))
	require.True(t, q.Beta.Valid)
	assert.True(t, q.Beta.Decimal.Equal(decimal.NewFromFloat(1.2)))
}

func TestClient_LookupWithoutBeta(t *testing.T) {
	c := newQuoteServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"symbol":"VOO","price":520.10,"prev_close":518.00}`)
	})

	q, err := c.Lookup(context.Background(), "VOO")
	require.NoError(t, err)
	assert.False(t, q.Beta.Valid, "absent beta stays unknown")
}

func TestClient_LookupUpstreamError(t *testing.T) {
	c := newQuoteServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})

	_, err := c.Lookup(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestClient_LookupRejectsNonPositivePrice(t *testing.T) {
	c := newQuoteServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"symbol":"AAPL","price":"0","prev_close":"185.00"}`)
	})

	_, err := c.Lookup(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable price")
}

func TestClient_LookupBadJSON(t *testing.T) {
	c := newQuoteServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"symbol":`)
	})

	_, err := c.Lookup(context.Background(), "AAPL")
	require.Error(t, err)
}
