package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// QuoteSource returns the exchange's quoted output for an exact input
type QuoteSource interface {
	// GetName returns the exchange name
	GetName() string

	// Quote returns the router's quoted output amount for amountIn of tokenIn
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// Exchange represents a decentralized exchange
type Exchange interface {
	QuoteSource
	RouterProvider

	// GetReserves returns the reserves of a token pair, ordered as tokenIn, tokenOut
	GetReserves(ctx context.Context, tokenIn, tokenOut common.Address) (*Reserves, error)

	// EstimateReturn simulates an exact-input swap along path against current reserves
	EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
}

// RouterProvider defines an interface for exchanges that provide router contracts
type RouterProvider interface {
	GetRouterAddress() common.Address
}

// Reserves represents token pair reserves
type Reserves struct {
	ReserveIn          *big.Int
	ReserveOut         *big.Int
	BlockTimestampLast uint32
}
