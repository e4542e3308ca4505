package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/dexarb/reporter"
	"github.com/michaelpento.lv/dexarb/types"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ErrApprovalFailed is returned when an approval transaction errors or reverts
var ErrApprovalFailed = errors.New("approval failed")

// AllowanceReader reads the current on-chain allowance
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Approver sets an allowance and returns once the approval is confirmed
type Approver interface {
	Approve(ctx context.Context, tok types.Token, spender common.Address, amount *big.Int) error
}

// Transactor submits signed transactions and waits for their receipts
type Transactor interface {
	Submit(ctx context.Context, to common.Address, value *big.Int, data []byte) (*gethtypes.Transaction, error)
	WaitMined(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error)
}

// TxApprover sends approve(spender, amount) through a Transactor
type TxApprover struct {
	erc20      *ERC20
	transactor Transactor
	reporter   reporter.Reporter
}

// NewTxApprover creates an Approver backed by real transactions
func NewTxApprover(erc20 *ERC20, transactor Transactor, rep reporter.Reporter) *TxApprover {
	return &TxApprover{erc20: erc20, transactor: transactor, reporter: rep}
}

// Approve submits the approval and blocks until it is mined
func (a *TxApprover) Approve(ctx context.Context, tok types.Token, spender common.Address, amount *big.Int) error {
	data, err := a.erc20.PackApprove(spender, amount)
	if err != nil {
		return err
	}

	tx, err := a.transactor.Submit(ctx, tok.Address, big.NewInt(0), data)
	if err != nil {
		return fmt.Errorf("%w: submit approve %s for %s: %w", ErrApprovalFailed, tok.Symbol, spender.Hex(), err)
	}
	a.reporter.Report(reporter.Event{
		Kind:     reporter.EventApprovalSubmitted,
		TokenIn:  tok,
		AmountIn: amount,
		TxHash:   tx.Hash(),
	})

	receipt, err := a.transactor.WaitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: approve %s tx %s: %w", ErrApprovalFailed, tok.Symbol, tx.Hash().Hex(), err)
	}
	a.reporter.Report(reporter.Event{
		Kind:        reporter.EventApprovalConfirmed,
		TokenIn:     tok,
		AmountIn:    amount,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
	})

	return nil
}

// AllowanceManager makes sure a spender can move enough of a token before a swap.
// Tokens such as USDT reject changing a non-zero allowance to another non-zero
// value, so a short allowance is reset to zero before it is raised.
type AllowanceManager struct {
	reader   AllowanceReader
	approver Approver
	logger   *zap.Logger
}

// NewAllowanceManager creates a new allowance manager
func NewAllowanceManager(reader AllowanceReader, approver Approver, logger *zap.Logger) *AllowanceManager {
	return &AllowanceManager{
		reader:   reader,
		approver: approver,
		logger:   logger,
	}
}

// EnsureAllowance raises owner's allowance for spender to at least required
func (m *AllowanceManager) EnsureAllowance(ctx context.Context, owner, spender common.Address, tok types.Token, required *big.Int) error {
	if tok.IsNative() {
		return nil
	}

	current, err := m.reader.Allowance(ctx, tok.Address, owner, spender)
	if err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}

	log := m.logger.With(
		zap.String("token", tok.Symbol),
		zap.String("spender", spender.Hex()),
		zap.String("current", current.String()),
		zap.String("required", required.String()),
	)

	switch {
	case current.Cmp(required) >= 0:
		log.Debug("Allowance sufficient")
		return nil
	case current.Sign() == 0:
		log.Info("Approving spender")
		return m.approve(ctx, tok, spender, required)
	default:
		log.Info("Resetting allowance to zero before raising it")
		if err := m.approve(ctx, tok, spender, big.NewInt(0)); err != nil {
			return err
		}
		return m.approve(ctx, tok, spender, required)
	}
}

func (m *AllowanceManager) approve(ctx context.Context, tok types.Token, spender common.Address, amount *big.Int) error {
	if err := m.approver.Approve(ctx, tok, spender, amount); err != nil {
		if errors.Is(err, ErrApprovalFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrApprovalFailed, err)
	}
	return nil
}
