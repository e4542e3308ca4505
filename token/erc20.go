package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/dexarb/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJson = `[
 {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"spender","type":"address"}],"name":"allowance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// Backend is the read side of the chain the ERC20 binding needs
type Backend interface {
	bind.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ERC20 reads token state straight from the chain. Nothing is cached:
// balances and allowances change outside of this process.
type ERC20 struct {
	backend Backend
	abi     abi.ABI
}

// NewERC20 creates a new ERC20 binding
func NewERC20(backend Backend) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &ERC20{backend: backend, abi: parsed}, nil
}

func (e *ERC20) contract(token common.Address) *bind.BoundContract {
	return bind.NewBoundContract(token, e.abi, e.backend, nil, nil)
}

func (e *ERC20) callUint256(ctx context.Context, token common.Address, method string, params ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := e.contract(token).Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no data", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse %s result", method)
	}
	return v, nil
}

// BalanceOf returns the owner's balance of tok in base units. The native
// asset is read with eth_getBalance.
func (e *ERC20) BalanceOf(ctx context.Context, tok types.Token, owner common.Address) (*big.Int, error) {
	if tok.IsNative() {
		balance, err := e.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get native balance of %s: %w", owner.Hex(), err)
		}
		return balance, nil
	}

	balance, err := e.callUint256(ctx, tok.Address, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s balance of %s: %w", tok.Symbol, owner.Hex(), err)
	}
	return balance, nil
}

// Allowance returns the amount spender may move on behalf of owner
func (e *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	allowance, err := e.callUint256(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to get allowance(%s, %s) on %s: %w", owner.Hex(), spender.Hex(), token.Hex(), err)
	}
	return allowance, nil
}

// Decimals returns the token's decimal precision
func (e *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	var out []interface{}
	if err := e.contract(token).Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("failed to get decimals of %s: %w", token.Hex(), err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("decimals returned no data")
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("failed to parse decimals of %s", token.Hex())
	}
	return d, nil
}

// VerifyDecimals checks the configured precision of tok against the chain.
// The native asset always has 18 decimals.
func (e *ERC20) VerifyDecimals(ctx context.Context, tok types.Token) error {
	if tok.IsNative() {
		if tok.Decimals != 18 {
			return fmt.Errorf("%s: native asset has 18 decimals, configured %d", tok, tok.Decimals)
		}
		return nil
	}

	onChain, err := e.Decimals(ctx, tok.Address)
	if err != nil {
		return err
	}
	if onChain != tok.Decimals {
		return fmt.Errorf("%s: token has %d decimals, configured %d", tok, onChain, tok.Decimals)
	}
	return nil
}

// PackApprove encodes approve(spender, amount)
func (e *ERC20) PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := e.abi.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return data, nil
}
