package dex

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeExchange struct {
	quotes   int
	reserves int
	returns  int
}

func (f *fakeExchange) GetName() string                  { return "fake" }
func (f *fakeExchange) GetRouterAddress() common.Address { return common.HexToAddress("0x01") }

func (f *fakeExchange) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	f.quotes++
	return new(big.Int).Mul(amountIn, big.NewInt(2)), nil
}

func (f *fakeExchange) GetReserves(ctx context.Context, tokenIn, tokenOut common.Address) (*Reserves, error) {
	f.reserves++
	return &Reserves{ReserveIn: big.NewInt(1), ReserveOut: big.NewInt(1)}, nil
}

func (f *fakeExchange) EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	f.returns++
	return amountIn, nil
}

func TestNewRateLimitedNilLimiter(t *testing.T) {
	ex := &fakeExchange{}
	assert.Same(t, ex, NewRateLimited(ex, nil))
}

func TestRateLimitedForwards(t *testing.T) {
	ex := &fakeExchange{}
	limited := NewRateLimited(ex, rate.NewLimiter(rate.Inf, 1))
	ctx := context.Background()

	out, err := limited.Quote(ctx, common.Address{}, common.Address{}, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10), out)

	_, err = limited.GetReserves(ctx, common.Address{}, common.Address{})
	require.NoError(t, err)

	_, err = limited.EstimateReturn(ctx, big.NewInt(1), []common.Address{{}, {}, {}})
	require.NoError(t, err)

	assert.Equal(t, "fake", limited.GetName())
	assert.Equal(t, common.HexToAddress("0x01"), limited.GetRouterAddress())
	assert.Equal(t, 1, ex.quotes)
	assert.Equal(t, 1, ex.reserves)
	assert.Equal(t, 1, ex.returns)
}

func TestRateLimitedHonoursContext(t *testing.T) {
	ex := &fakeExchange{}
	// One token per hour, already spent by the first call
	limited := NewRateLimited(ex, rate.NewLimiter(rate.Every(time.Hour), 1))

	_, err := limited.Quote(context.Background(), common.Address{}, common.Address{}, big.NewInt(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Quote(ctx, common.Address{}, common.Address{}, big.NewInt(1))
	assert.Error(t, err)
	assert.Equal(t, 1, ex.quotes)
}
