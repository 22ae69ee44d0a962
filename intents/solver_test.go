package intents

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedRateAmountOut(t *testing.T) {
	// 1 WNEAR (24 decimals) sells for 5 USD, USDT (6 decimals) buys at 1 USD.
	rate := NewFixedRate(
		FixedRateToken{TokenID: "wrap.near", Decimals: 24, SellPriceUSD: big.NewRat(5, 1), BuyPriceUSD: big.NewRat(5, 1)},
		FixedRateToken{TokenID: "usdt.tether-token.near", Decimals: 6, SellPriceUSD: big.NewRat(1, 1), BuyPriceUSD: big.NewRat(1, 1)},
	)

	oneNear, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	out, err := rate.AmountOut(context.Background(), "wrap.near", "usdt.tether-token.near", oneNear)
	require.NoError(t, err)
	assert.Equal(t, "5000000", out.String())

	in, err := rate.AmountIn(context.Background(), "wrap.near", "usdt.tether-token.near", big.NewInt(5_000_000))
	require.NoError(t, err)
	assert.Equal(t, oneNear.String(), in.String())
}

func TestFixedRateUnknownPair(t *testing.T) {
	rate := NewFixedRate()
	out, err := rate.AmountOut(context.Background(), "a.near", "b.near", big.NewInt(1))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSolverAnswersQuote(t *testing.T) {
	upgrader := websocket.Upgrader{}
	responses := make(chan wsRequest, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var subscribe wsRequest
		require.NoError(t, conn.ReadJSON(&subscribe))
		require.Equal(t, "subscribe", subscribe.Method)

		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "quote",
			"params": map[string]interface{}{
				"data": map[string]interface{}{
					"quote_id":                    "q-77",
					"defuse_asset_identifier_in":  "usdt.tether-token.near",
					"defuse_asset_identifier_out": "wrap.near",
					"exact_amount_in":             "5000000",
				},
			},
		}))

		var response wsRequest
		require.NoError(t, conn.ReadJSON(&response))
		responses <- response
	}))
	defer srv.Close()

	m, _ := testManager(t)
	rate := NewFixedRate(
		FixedRateToken{TokenID: "wrap.near", Decimals: 24, SellPriceUSD: big.NewRat(5, 1), BuyPriceUSD: big.NewRat(5, 1)},
		FixedRateToken{TokenID: "usdt.tether-token.near", Decimals: 6, SellPriceUSD: big.NewRat(1, 1), BuyPriceUSD: big.NewRat(1, 1)},
	)
	solver := NewSolver(zerolog.Nop(), m, "ws"+strings.TrimPrefix(srv.URL, "http"), rate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		_ = solver.Run(ctx)
	}()

	select {
	case response := <-responses:
		assert.Equal(t, "quote_response", response.Method)
		require.Len(t, response.Params, 1)

		raw, err := json.Marshal(response.Params[0])
		require.NoError(t, err)
		var params struct {
			QuoteID     string `json:"quote_id"`
			QuoteOutput struct {
				AmountIn  string `json:"amount_in"`
				AmountOut string `json:"amount_out"`
			} `json:"quote_output"`
			SignedData *Commitment `json:"signed_data"`
		}
		require.NoError(t, json.Unmarshal(raw, &params))

		assert.Equal(t, "q-77", params.QuoteID)
		assert.Equal(t, "5000000", params.QuoteOutput.AmountIn)
		// 5 USD buys 1 WNEAR at the fixed rate.
		assert.Equal(t, "1000000000000000000000000", params.QuoteOutput.AmountOut)
		require.NotNil(t, params.SignedData)
		assert.Equal(t, "raw_ed25519", params.SignedData.Standard)
	case <-ctx.Done():
		t.Fatal("no quote response before timeout")
	}
}
