package intents

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// solverReconnectDelay is the pause between WebSocket reconnect
	// attempts after a dropped relay connection.
	solverReconnectDelay = 2 * time.Second

	// solverQuoteDeadline is how long a quoted price stays valid.
	solverQuoteDeadline = 20 * time.Second

	// solverMaxInflight caps quote requests handled concurrently.
	solverMaxInflight = 100
)

// RateSource prices a token pair. A nil amount with a nil error means the
// source does not quote the pair.
type RateSource interface {
	// AmountOut returns how much of tokenOut the source pays for amountIn
	// of tokenIn.
	AmountOut(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error)

	// AmountIn returns how much of tokenIn the source charges for
	// amountOut of tokenOut.
	AmountIn(ctx context.Context, tokenIn, tokenOut string, amountOut *big.Int) (*big.Int, error)
}

// Solver serves quote requests from the relay's WebSocket channel: it prices
// each request against its rate sources, signs a matching token_diff, and
// answers with a quote_response.
type Solver struct {
	log      zerolog.Logger
	manager  *Manager
	sources  []RateSource
	url      string
	headers  http.Header
	deadline time.Duration

	// writeMu serializes frames; the WebSocket connection does not allow
	// concurrent writers.
	writeMu sync.Mutex
}

// NewSolver builds a solver answering quotes with the manager's signing key.
// An empty URL selects the public relay WebSocket endpoint.
func NewSolver(log zerolog.Logger, manager *Manager, url string, sources ...RateSource) *Solver {
	if url == "" {
		url = DefaultRelayWSS
	}
	return &Solver{
		log:      log.With().Str("module", "intents_solver").Logger(),
		manager:  manager,
		sources:  sources,
		url:      url,
		headers:  http.Header{"Content-Type": []string{"application/json"}},
		deadline: solverQuoteDeadline,
	}
}

// Run connects to the relay and serves quote requests until the context is
// canceled, reconnecting after dropped connections.
func (s *Solver) Run(ctx context.Context) error {
	for {
		if err := s.serve(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error().Err(err).Msg("relay connection lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(solverReconnectDelay):
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type quoteEvent struct {
	Params struct {
		Data struct {
			QuoteID        string `json:"quote_id"`
			AssetIn        string `json:"defuse_asset_identifier_in"`
			AssetOut       string `json:"defuse_asset_identifier_out"`
			ExactAmountIn  string `json:"exact_amount_in"`
			ExactAmountOut string `json:"exact_amount_out"`
		} `json:"data"`
	} `json:"params"`
}

func (s *Solver) serve(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, s.headers)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the connection when the context ends so the blocked read
	// returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := s.write(conn, wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "subscribe",
		Params:  []interface{}{"quote"},
	}); err != nil {
		return err
	}
	s.log.Info().Str("url", s.url).Msg("subscribed to quote requests")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(solverMaxInflight)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			_ = g.Wait()
			return err
		}

		var event quoteEvent
		if err := json.Unmarshal(raw, &event); err != nil || event.Params.Data.QuoteID == "" {
			continue
		}
		g.Go(func() error {
			if err := s.answer(gctx, conn, event); err != nil {
				s.log.Warn().
					Err(err).
					Str("quote_id", event.Params.Data.QuoteID).
					Msg("quote request not answered")
			}
			return nil
		})
	}
}

// answer prices one quote request against all rate sources and responds with
// a signed token_diff when any source quotes the pair.
func (s *Solver) answer(ctx context.Context, conn *websocket.Conn, event quoteEvent) error {
	data := event.Params.Data

	var amountIn, amountOut *big.Int
	switch {
	case data.ExactAmountIn != "":
		in, ok := new(big.Int).SetString(data.ExactAmountIn, 10)
		if !ok {
			return errors.Errorf("bad exact_amount_in %q", data.ExactAmountIn)
		}
		amountIn = in
		for _, src := range s.sources {
			out, err := src.AmountOut(ctx, data.AssetIn, data.AssetOut, in)
			if err != nil {
				return err
			}
			if out != nil && (amountOut == nil || out.Cmp(amountOut) > 0) {
				amountOut = out
			}
		}
	case data.ExactAmountOut != "":
		out, ok := new(big.Int).SetString(data.ExactAmountOut, 10)
		if !ok {
			return errors.Errorf("bad exact_amount_out %q", data.ExactAmountOut)
		}
		amountOut = out
		for _, src := range s.sources {
			in, err := src.AmountIn(ctx, data.AssetIn, data.AssetOut, out)
			if err != nil {
				return err
			}
			if in != nil && (amountIn == nil || in.Cmp(amountIn) < 0) {
				amountIn = in
			}
		}
	default:
		return errors.New("quote request carries no amount")
	}
	if amountIn == nil || amountOut == nil {
		// No source quotes this pair.
		return nil
	}

	signed, err := s.manager.
		TokenDiff(map[string]string{
			data.AssetIn:  amountIn.String(),
			data.AssetOut: new(big.Int).Neg(amountOut).String(),
		}, "").
		WithDeadline(s.deadline).
		Sign()
	if err != nil {
		return err
	}

	err = s.write(conn, wsRequest{
		JSONRPC: "2.0",
		ID:      time.Now().UnixMicro(),
		Method:  "quote_response",
		Params: []interface{}{map[string]interface{}{
			"quote_id": data.QuoteID,
			"quote_output": map[string]string{
				"amount_in":  amountIn.String(),
				"amount_out": amountOut.String(),
			},
			"signed_data": signed,
		}},
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("quote_id", data.QuoteID).Msg("quote response sent")
	return nil
}

func (s *Solver) write(conn *websocket.Conn, msg wsRequest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// FixedRateToken is one token a FixedRate source is willing to trade, with
// its on-chain decimals and flat USD prices.
type FixedRateToken struct {
	TokenID string

	// Decimals scales raw amounts to whole tokens.
	Decimals int

	// SellPriceUSD is the USD credited per whole token given up.
	SellPriceUSD *big.Rat

	// BuyPriceUSD is the USD charged per whole token handed out.
	BuyPriceUSD *big.Rat
}

// FixedRate quotes swaps at configured flat USD prices. Useful for market
// making over a small stable set of tokens.
type FixedRate struct {
	tokens map[string]FixedRateToken
}

// NewFixedRate builds a fixed-rate source over the given tokens.
func NewFixedRate(tokens ...FixedRateToken) *FixedRate {
	byID := make(map[string]FixedRateToken, len(tokens))
	for _, t := range tokens {
		byID[t.TokenID] = t
	}
	return &FixedRate{tokens: byID}
}

func (f *FixedRate) AmountOut(_ context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	in, okIn := f.tokens[tokenIn]
	out, okOut := f.tokens[tokenOut]
	if !okIn || !okOut {
		return nil, nil
	}

	usd := new(big.Rat).SetInt(amountIn)
	usd.Quo(usd, pow10(in.Decimals))
	usd.Mul(usd, in.SellPriceUSD)

	result := usd.Quo(usd, out.BuyPriceUSD)
	result.Mul(result, pow10(out.Decimals))
	return ratFloor(result), nil
}

func (f *FixedRate) AmountIn(_ context.Context, tokenIn, tokenOut string, amountOut *big.Int) (*big.Int, error) {
	in, okIn := f.tokens[tokenIn]
	out, okOut := f.tokens[tokenOut]
	if !okIn || !okOut {
		return nil, nil
	}

	usd := new(big.Rat).SetInt(amountOut)
	usd.Quo(usd, pow10(out.Decimals))
	usd.Mul(usd, out.BuyPriceUSD)

	result := usd.Quo(usd, in.SellPriceUSD)
	result.Mul(result, pow10(in.Decimals))
	return ratCeil(result), nil
}

func pow10(n int) *big.Rat {
	return new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil))
}

func ratFloor(r *big.Rat) *big.Int {
	return new(big.Int).Quo(r.Num(), r.Denom())
}

func ratCeil(r *big.Rat) *big.Int {
	q, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if rem.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
