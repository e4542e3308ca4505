package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Pair contract ABI
const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// Pair represents a V2 pair contract
type Pair struct {
	contract *bind.BoundContract
	address  common.Address
	token0   common.Address
	token1   common.Address
}

// NewPair binds the pair contract at address. token0 and token1 must already be sorted.
func NewPair(address, token0, token1 common.Address, pairABI abi.ABI, caller bind.ContractCaller) *Pair {
	return &Pair{
		contract: bind.NewBoundContract(address, pairABI, caller, nil, nil),
		address:  address,
		token0:   token0,
		token1:   token1,
	}
}

// Address returns the pair contract address
func (p *Pair) Address() common.Address {
	return p.address
}

// GetReserves returns the current reserves of the pair in token0, token1 order
func (p *Pair) GetReserves(ctx context.Context) (reserve0, reserve1 *big.Int, blockTimestampLast uint32, err error) {
	var out []interface{}
	err = p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves")
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to get reserves of pair %s: %w", p.address.Hex(), err)
	}
	if len(out) < 3 {
		return nil, nil, 0, fmt.Errorf("unexpected getReserves output length %d", len(out))
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, 0, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok = out[1].(*big.Int)
	if !ok {
		return nil, nil, 0, fmt.Errorf("failed to parse reserve1")
	}
	blockTimestampLast, ok = out[2].(uint32)
	if !ok {
		return nil, nil, 0, fmt.Errorf("failed to parse blockTimestampLast")
	}

	return reserve0, reserve1, blockTimestampLast, nil
}

// ReservesFor returns the reserves oriented as tokenIn, tokenOut
func (p *Pair) ReservesFor(ctx context.Context, tokenIn common.Address) (reserveIn, reserveOut *big.Int, ts uint32, err error) {
	reserve0, reserve1, ts, err := p.GetReserves(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	switch tokenIn {
	case p.token0:
		return reserve0, reserve1, ts, nil
	case p.token1:
		return reserve1, reserve0, ts, nil
	default:
		return nil, nil, 0, fmt.Errorf("token %s is not part of pair %s", tokenIn.Hex(), p.address.Hex())
	}
}

// GetAmountOut calculates the output amount for a given input amount using
// the constant product formula with the 0.3% V2 fee
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(1000)), amountInWithFee)

	return new(big.Int).Div(numerator, denominator)
}
