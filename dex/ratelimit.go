package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// RateLimited throttles every RPC-backed call of an Exchange through a shared limiter
type RateLimited struct {
	Exchange
	limiter *rate.Limiter
}

// NewRateLimited wraps ex so that each read waits on limiter first.
// A nil limiter returns ex unchanged.
func NewRateLimited(ex Exchange, limiter *rate.Limiter) Exchange {
	if limiter == nil {
		return ex
	}
	return &RateLimited{Exchange: ex, limiter: limiter}
}

func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", r.GetName(), err)
	}
	return nil
}

// Quote waits on the limiter and forwards to the wrapped exchange
func (r *RateLimited) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.Exchange.Quote(ctx, tokenIn, tokenOut, amountIn)
}

// GetReserves waits on the limiter and forwards to the wrapped exchange
func (r *RateLimited) GetReserves(ctx context.Context, tokenIn, tokenOut common.Address) (*Reserves, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.Exchange.GetReserves(ctx, tokenIn, tokenOut)
}

// EstimateReturn waits once per hop and forwards to the wrapped exchange
func (r *RateLimited) EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	hops := len(path) - 1
	if hops < 1 {
		hops = 1
	}
	if err := r.limiter.WaitN(ctx, hops); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", r.GetName(), err)
	}
	return r.Exchange.EstimateReturn(ctx, amountIn, path)
}
