package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/reporter"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrQuoteFailed is returned when any of the four quotes of a cycle cannot be fetched
var ErrQuoteFailed = errors.New("quote failed")

// Pair is the watched token pair. Input is the settlement asset the bot holds
// between cycles; Intermediate is bought on one exchange and sold on the other.
type Pair struct {
	Input        types.Token
	Intermediate types.Token
}

// Quotes holds the four rates a cycle is scored on. Buy quotes are
// Input -> Intermediate, sell quotes Intermediate -> Input, all for the same
// nominal size.
type Quotes struct {
	BuyX  types.ExchangeRate
	SellX types.ExchangeRate
	BuyY  types.ExchangeRate
	SellY types.ExchangeRate
}

// Evaluator fetches quotes from two exchanges and scores both arbitrage directions
type Evaluator struct {
	x, y          dex.QuoteSource
	pair          Pair
	wrappedNative common.Address
	tradeSize     *big.Int
	estimatedCost *big.Int
	reporter      reporter.Reporter
	metrics       *metrics.ArbitrageMetrics
	logger        *zap.Logger
}

// NewEvaluator creates a new evaluator for exchanges x and y
func NewEvaluator(x, y dex.QuoteSource, pair Pair, wrappedNative common.Address, tradeSize, estimatedCost *big.Int, rep reporter.Reporter, m *metrics.ArbitrageMetrics, logger *zap.Logger) *Evaluator {
	if estimatedCost == nil {
		estimatedCost = big.NewInt(0)
	}
	return &Evaluator{
		x:             x,
		y:             y,
		pair:          pair,
		wrappedNative: wrappedNative,
		tradeSize:     tradeSize,
		estimatedCost: estimatedCost,
		reporter:      rep,
		metrics:       m,
		logger:        logger,
	}
}

// FetchQuotes reads the four quotes concurrently. Any failure fails the whole
// set; there is no partial scoring.
func (e *Evaluator) FetchQuotes(ctx context.Context) (*Quotes, error) {
	var q Quotes
	input, intermediate := e.pair.Input, e.pair.Intermediate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		q.BuyX, err = e.quote(gctx, e.x, input, intermediate)
		return err
	})
	g.Go(func() (err error) {
		q.SellX, err = e.quote(gctx, e.x, intermediate, input)
		return err
	})
	g.Go(func() (err error) {
		q.BuyY, err = e.quote(gctx, e.y, input, intermediate)
		return err
	})
	g.Go(func() (err error) {
		q.SellY, err = e.quote(gctx, e.y, intermediate, input)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, rate := range []types.ExchangeRate{q.BuyX, q.SellX, q.BuyY, q.SellY} {
		e.reporter.Report(reporter.Event{
			Kind:      reporter.EventQuoteFetched,
			Exchange:  rate.Exchange,
			TokenIn:   rate.TokenIn,
			TokenOut:  rate.TokenOut,
			AmountIn:  rate.AmountIn,
			AmountOut: rate.AmountOut,
		})
	}

	return &q, nil
}

func (e *Evaluator) quote(ctx context.Context, source dex.QuoteSource, tokenIn, tokenOut types.Token) (types.ExchangeRate, error) {
	name := source.GetName()
	start := time.Now()

	out, err := source.Quote(ctx, tokenIn.RouteAddress(e.wrappedNative), tokenOut.RouteAddress(e.wrappedNative), e.tradeSize)
	if e.metrics != nil {
		e.metrics.QuoteLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.QuoteErrors.WithLabelValues(name).Inc()
		}
		return types.ExchangeRate{}, fmt.Errorf("%w: %s %s->%s: %w", ErrQuoteFailed, name, tokenIn.Symbol, tokenOut.Symbol, err)
	}

	return types.ExchangeRate{
		Exchange:  name,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  new(big.Int).Set(e.tradeSize),
		AmountOut: out,
		FetchedAt: time.Now(),
	}, nil
}

// Score evaluates both directions over q. The returned opportunity always
// carries both profit scores; ok is false when neither direction is
// profitable net of the estimated cost.
func (e *Evaluator) Score(q *Quotes) (*types.ArbitrageOpportunity, bool) {
	profitXToY, profitYToX := ScoreDirections(e.tradeSize, e.estimatedCost,
		q.BuyX.AmountOut, q.SellX.AmountOut, q.BuyY.AmountOut, q.SellY.AmountOut)

	opp := &types.ArbitrageOpportunity{
		TokenIn:    e.pair.Input,
		TokenOut:   e.pair.Intermediate,
		ProfitXToY: profitXToY,
		ProfitYToX: profitYToX,
	}

	if e.metrics != nil {
		e.metrics.LastProfit.WithLabelValues(types.XToY.String()).Set(bigToFloat(profitXToY))
		e.metrics.LastProfit.WithLabelValues(types.YToX.String()).Set(bigToFloat(profitYToX))
	}

	direction, ok := SelectDirection(profitXToY, profitYToX)
	if !ok {
		return opp, false
	}

	opp.Direction = direction
	switch direction {
	case types.XToY:
		opp.BuyExchange, opp.SellExchange = e.x.GetName(), e.y.GetName()
		opp.EstimatedProfit = profitXToY
	case types.YToX:
		opp.BuyExchange, opp.SellExchange = e.y.GetName(), e.x.GetName()
		opp.EstimatedProfit = profitYToX
	}
	return opp, true
}

// ScoreDirections returns
//
//	profitXToY = T*(sellY - buyX) - cost
//	profitYToX = T*(sellX - buyY) - cost
func ScoreDirections(tradeSize, cost, buyX, sellX, buyY, sellY *big.Int) (*big.Int, *big.Int) {
	profitXToY := new(big.Int).Sub(sellY, buyX)
	profitXToY.Mul(profitXToY, tradeSize)
	profitXToY.Sub(profitXToY, cost)

	profitYToX := new(big.Int).Sub(sellX, buyY)
	profitYToX.Mul(profitYToX, tradeSize)
	profitYToX.Sub(profitYToX, cost)

	return profitXToY, profitYToX
}

// SelectDirection picks the direction to execute. Ties go to XToY.
func SelectDirection(profitXToY, profitYToX *big.Int) (types.Direction, bool) {
	if profitXToY.Sign() > 0 && profitXToY.Cmp(profitYToX) >= 0 {
		return types.XToY, true
	}
	if profitYToX.Sign() > 0 {
		return types.YToX, true
	}
	return 0, false
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
