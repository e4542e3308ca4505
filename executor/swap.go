// Package executor submits router swaps and waits for their confirmation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/michaelpento.lv/dexarb/reporter"
	"github.com/michaelpento.lv/dexarb/simulator"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const routerSwapABIJson = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForETH","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

// ErrSwapReverted is returned when a swap fails preflight or reverts on chain
var ErrSwapReverted = errors.New("swap reverted")

// DefaultMineGrace is how long past the swap deadline the executor keeps
// waiting for a receipt
const DefaultMineGrace = 2 * time.Minute

// Transactor submits signed transactions and waits for their receipts
type Transactor interface {
	Address() common.Address
	Submit(ctx context.Context, to common.Address, value *big.Int, data []byte) (*gethtypes.Transaction, error)
	WaitMined(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error)
}

// Preflighter dry-runs a call before it is submitted
type Preflighter interface {
	SimulateCall(ctx context.Context, from, to common.Address, value *big.Int, data []byte) (*simulator.SimulationResult, error)
}

// SwapRequest is one exact-input swap through a V2 router
type SwapRequest struct {
	Exchange string
	Router   common.Address
	TokenIn  types.Token
	TokenOut types.Token
	Params   *types.TradeParameters
}

// SwapExecutor packs router calls and sends them from the bot's wallet
type SwapExecutor struct {
	transactor Transactor
	preflight  Preflighter
	reporter   reporter.Reporter
	logger     *zap.Logger
	routerABI  abi.ABI
	mineGrace  time.Duration
}

// NewSwapExecutor creates a swap executor. preflight may be nil.
func NewSwapExecutor(transactor Transactor, preflight Preflighter, rep reporter.Reporter, logger *zap.Logger) (*SwapExecutor, error) {
	parsed, err := abi.JSON(strings.NewReader(routerSwapABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	return &SwapExecutor{
		transactor: transactor,
		preflight:  preflight,
		reporter:   rep,
		logger:     logger,
		routerABI:  parsed,
		mineGrace:  DefaultMineGrace,
	}, nil
}

// Pack encodes the router call for req. Proceeds are always sent to the wallet.
func (e *SwapExecutor) Pack(req SwapRequest) ([]byte, error) {
	p := req.Params
	if p == nil {
		return nil, fmt.Errorf("missing trade parameters")
	}
	to := e.transactor.Address()

	var (
		data []byte
		err  error
	)
	switch {
	case req.TokenIn.IsNative() && req.TokenOut.IsNative():
		return nil, fmt.Errorf("cannot swap native asset for itself")
	case req.TokenIn.IsNative():
		data, err = e.routerABI.Pack("swapExactETHForTokens", p.MinimumAmountOut, p.Path, to, p.Deadline)
	case req.TokenOut.IsNative():
		data, err = e.routerABI.Pack("swapExactTokensForETH", p.AmountIn, p.MinimumAmountOut, p.Path, to, p.Deadline)
	default:
		data, err = e.routerABI.Pack("swapExactTokensForTokens", p.AmountIn, p.MinimumAmountOut, p.Path, to, p.Deadline)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pack swap: %w", err)
	}
	return data, nil
}

// Swap submits the swap and blocks until it is mined. A revert is never
// retried here.
func (e *SwapExecutor) Swap(ctx context.Context, req SwapRequest) (*types.SwapReceipt, error) {
	data, err := e.Pack(req)
	if err != nil {
		return nil, err
	}

	value := req.Params.Value
	if value == nil {
		value = big.NewInt(0)
	}

	if e.preflight != nil {
		result, err := e.preflight.SimulateCall(ctx, e.transactor.Address(), req.Router, value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to preflight swap on %s: %w", req.Exchange, err)
		}
		if !result.Success {
			return nil, fmt.Errorf("%w: preflight on %s: %w", ErrSwapReverted, req.Exchange, result.Error)
		}
		e.logger.Debug("Swap preflight passed",
			zap.String("exchange", req.Exchange),
			zap.Uint64("gas", result.GasUsed))
	}

	tx, err := e.transactor.Submit(ctx, req.Router, value, data)
	if err != nil {
		return nil, fmt.Errorf("failed to submit swap on %s: %w", req.Exchange, err)
	}
	e.reporter.Report(reporter.Event{
		Kind:      reporter.EventSwapSubmitted,
		Exchange:  req.Exchange,
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		AmountIn:  req.Params.AmountIn,
		AmountOut: req.Params.MinimumAmountOut,
		TxHash:    tx.Hash(),
	})

	// Past the deadline the router rejects the swap, so the wait is bounded by it
	waitCtx, cancel := context.WithDeadline(ctx, e.waitDeadline(req.Params))
	defer cancel()

	receipt, err := e.transactor.WaitMined(waitCtx, tx)
	if err != nil {
		if errors.Is(err, wallet.ErrTransactionReverted) {
			return nil, fmt.Errorf("%w: %s tx %s", ErrSwapReverted, req.Exchange, tx.Hash().Hex())
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("swap on %s tx %s not mined before deadline: %w", req.Exchange, tx.Hash().Hex(), err)
		}
		return nil, fmt.Errorf("failed waiting for swap on %s: %w", req.Exchange, err)
	}

	result := &types.SwapReceipt{
		Exchange:    req.Exchange,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
	e.reporter.Report(reporter.Event{
		Kind:        reporter.EventSwapConfirmed,
		Exchange:    req.Exchange,
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		AmountIn:    req.Params.AmountIn,
		TxHash:      result.TxHash,
		BlockNumber: result.BlockNumber,
	})

	return result, nil
}

func (e *SwapExecutor) waitDeadline(p *types.TradeParameters) time.Time {
	if p.Deadline == nil || !p.Deadline.IsInt64() {
		return time.Now().Add(simulator.DefaultDeadlineWindow + e.mineGrace)
	}
	return time.Unix(p.Deadline.Int64(), 0).Add(e.mineGrace)
}
