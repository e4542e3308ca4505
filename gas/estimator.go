package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Backend is the subset of the node API used for fee suggestions
type Backend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Estimator provides EIP-1559 fee suggestions and tracks the last seen values
type Estimator struct {
	client      Backend
	logger      *zap.Logger
	maxGasPrice *big.Int

	mu          sync.RWMutex
	baseFee     *big.Int
	priorityFee *big.Int
}

// NewEstimator creates a new gas estimator. A nil or zero maxGasPrice disables the cap.
func NewEstimator(client Backend, maxGasPrice *big.Int, logger *zap.Logger) *Estimator {
	return &Estimator{
		client:      client,
		logger:      logger,
		maxGasPrice: maxGasPrice,
		baseFee:     big.NewInt(0),
		priorityFee: big.NewInt(0),
	}
}

// update fetches latest fee data
func (e *Estimator) update(ctx context.Context) error {
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}

	baseFee := header.BaseFee
	priorityFee, err := e.client.SuggestGasTipCap(ctx)
	if err != nil || baseFee == nil {
		// Pre-London nodes: fall back to the legacy gas price for both
		gasPrice, gpErr := e.client.SuggestGasPrice(ctx)
		if gpErr != nil {
			return fmt.Errorf("failed to get gas price: %w", gpErr)
		}
		if baseFee == nil {
			baseFee = big.NewInt(0)
		}
		priorityFee = gasPrice
	}

	e.mu.Lock()
	e.baseFee = baseFee
	e.priorityFee = priorityFee
	e.mu.Unlock()

	return nil
}

// SuggestFees returns the tip and fee cap to use for the next transaction.
// The fee cap is twice the base fee plus the tip, clamped to the configured maximum.
func (e *Estimator) SuggestFees(ctx context.Context) (*big.Int, *big.Int, error) {
	if err := e.update(ctx); err != nil {
		return nil, nil, err
	}

	e.mu.RLock()
	baseFee := new(big.Int).Set(e.baseFee)
	tip := new(big.Int).Set(e.priorityFee)
	e.mu.RUnlock()

	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)

	if e.maxGasPrice != nil && e.maxGasPrice.Sign() > 0 {
		if feeCap.Cmp(e.maxGasPrice) > 0 {
			e.logger.Warn("Fee cap clamped to max gas price",
				zap.String("suggested", feeCap.String()),
				zap.String("max", e.maxGasPrice.String()))
			feeCap = new(big.Int).Set(e.maxGasPrice)
		}
		if tip.Cmp(feeCap) > 0 {
			tip = new(big.Int).Set(feeCap)
		}
	}

	return tip, feeCap, nil
}

// EstimateGasCost estimates the wei cost of a transaction using the last fetched fees
func (e *Estimator) EstimateGasCost(gasLimit uint64) *big.Int {
	e.mu.RLock()
	totalGasPrice := new(big.Int).Add(e.baseFee, e.priorityFee)
	e.mu.RUnlock()

	return new(big.Int).Mul(totalGasPrice, new(big.Int).SetUint64(gasLimit))
}

// EstimateArbitrageGas estimates gas for an arbitrage made of numSwaps router swaps
// plus up to two approvals per swap
func (e *Estimator) EstimateArbitrageGas(numSwaps int) uint64 {
	baseCost := uint64(21000)

	// Storage reads, token transfers and the pair swap itself
	costPerSwap := uint64(152000)
	costPerApproval := uint64(46000)

	return uint64(numSwaps) * (baseCost + costPerSwap + 2*(baseCost+costPerApproval))
}
