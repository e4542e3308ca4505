package simulator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the subset of the node API used for simulation
type Backend interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SimulationResult represents the result of a transaction simulation
type SimulationResult struct {
	Success bool
	GasUsed uint64
	Error   error
}

// Simulator dry-runs calls against the latest state
type Simulator struct {
	client Backend
}

// NewSimulator creates a new transaction simulator
func NewSimulator(client Backend) *Simulator {
	return &Simulator{
		client: client,
	}
}

// SimulateCall runs the call with eth_call and estimates its gas. A revert is
// reported in the result, not as an error.
func (s *Simulator) SimulateCall(ctx context.Context, from, to common.Address, value *big.Int, data []byte) (*SimulationResult, error) {
	msg := ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	}

	if _, err := s.client.CallContract(ctx, msg, nil); err != nil {
		return &SimulationResult{
			Success: false,
			Error:   err,
		}, nil
	}

	gasUsed, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		return &SimulationResult{
			Success: false,
			Error:   err,
		}, nil
	}

	return &SimulationResult{
		Success: true,
		GasUsed: gasUsed,
	}, nil
}
