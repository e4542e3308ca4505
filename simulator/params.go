package simulator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/michaelpento.lv/dexarb/types"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultSlippageBps is the tolerated shortfall against the simulated output (0.5%)
	DefaultSlippageBps = 50
	// DefaultDeadlineWindow is how long a swap stays valid after it is built
	DefaultDeadlineWindow = 20 * time.Minute

	bpsDenominator = 10000
)

// ReturnEstimator simulates an exact-input swap against an exchange's current reserves
type ReturnEstimator interface {
	EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
}

// ParamsBuilder turns a trade intent into concrete swap bounds
type ParamsBuilder struct {
	wrappedNative  common.Address
	slippageBps    int64
	deadlineWindow time.Duration
	now            func() time.Time
}

// NewParamsBuilder creates a builder. The native asset is routed through wrappedNative.
func NewParamsBuilder(wrappedNative common.Address, slippageBps int64, deadlineWindow time.Duration) *ParamsBuilder {
	return &ParamsBuilder{
		wrappedNative:  wrappedNative,
		slippageBps:    slippageBps,
		deadlineWindow: deadlineWindow,
		now:            time.Now,
	}
}

// Path returns the router path for a direct tokenIn -> tokenOut swap
func (b *ParamsBuilder) Path(tokenIn, tokenOut types.Token) []common.Address {
	return []common.Address{tokenIn.RouteAddress(b.wrappedNative), tokenOut.RouteAddress(b.wrappedNative)}
}

// Build simulates the swap on the given exchange and derives its minimum output
// and deadline. It must be called again for every submission attempt.
func (b *ParamsBuilder) Build(ctx context.Context, exchange ReturnEstimator, tokenIn, tokenOut types.Token, amountIn *big.Int) (*types.TradeParameters, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount in: %v", amountIn)
	}

	path := b.Path(tokenIn, tokenOut)
	simulated, err := exchange.EstimateReturn(ctx, amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate %s -> %s: %w", tokenIn.Symbol, tokenOut.Symbol, err)
	}

	value := big.NewInt(0)
	if tokenIn.IsNative() {
		value = new(big.Int).Set(amountIn)
	}

	return &types.TradeParameters{
		Path:             path,
		AmountIn:         new(big.Int).Set(amountIn),
		SimulatedOut:     simulated,
		MinimumAmountOut: ApplySlippage(simulated, b.slippageBps),
		Value:            value,
		Deadline:         big.NewInt(b.now().Add(b.deadlineWindow).Unix()),
	}, nil
}

// ApplySlippage returns amount * (10000 - bps) / 10000, rounded down
func ApplySlippage(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bpsDenominator-bps))
	return out.Quo(out, big.NewInt(bpsDenominator))
}
