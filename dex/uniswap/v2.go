package uniswap

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/dexarb/dex"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
)

// Contract addresses
var (
	MainnetRouter  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	MainnetFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	WETHAddress    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	MainnetInitCodeHash = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
)

const pairCacheSize = 64

// Router ABI, only the read methods used for quoting
const routerABIJson = `[{
	"inputs": [
		{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
		{"internalType": "address[]", "name": "path", "type": "address[]"}
	],
	"name": "getAmountsOut",
	"outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}],
	"stateMutability": "view",
	"type": "function"
}]`

// Deployment describes one V2-compatible exchange: its router, its factory
// and the init code hash used to derive pair addresses
type Deployment struct {
	Name         string
	Router       common.Address
	Factory      common.Address
	InitCodeHash common.Hash
}

// MainnetDeployment is Uniswap V2 on Ethereum mainnet
var MainnetDeployment = Deployment{
	Name:         "UniswapV2",
	Router:       MainnetRouter,
	Factory:      MainnetFactory,
	InitCodeHash: MainnetInitCodeHash,
}

// V2 implements dex.Exchange for any Uniswap V2 fork
type V2 struct {
	caller     bind.ContractCaller
	deployment Deployment
	router     *bind.BoundContract
	pairABI    abi.ABI
	pairs      *lru.Cache
}

var _ dex.Exchange = (*V2)(nil)

// NewV2 creates a V2 exchange for the given deployment
func NewV2(caller bind.ContractCaller, deployment Deployment) (*V2, error) {
	if deployment.Router == (common.Address{}) {
		return nil, fmt.Errorf("%s: router address is required", deployment.Name)
	}
	if deployment.Factory == (common.Address{}) {
		return nil, fmt.Errorf("%s: factory address is required", deployment.Name)
	}

	parsedPairABI, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	parsedRouterABI, err := abi.JSON(strings.NewReader(routerABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}
	pairs, err := lru.New(pairCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pair cache: %w", err)
	}

	return &V2{
		caller:     caller,
		deployment: deployment,
		router:     bind.NewBoundContract(deployment.Router, parsedRouterABI, caller, nil, nil),
		pairABI:    parsedPairABI,
		pairs:      pairs,
	}, nil
}

// NewUniswapV2 creates a Uniswap V2 exchange on mainnet
func NewUniswapV2(caller bind.ContractCaller) (*V2, error) {
	return NewV2(caller, MainnetDeployment)
}

// GetName returns the exchange name
func (v *V2) GetName() string {
	return v.deployment.Name
}

// GetRouterAddress returns the router contract address
func (v *V2) GetRouterAddress() common.Address {
	return v.deployment.Router
}

// Quote asks the router for getAmountsOut(amountIn, [tokenIn, tokenOut])
func (v *V2) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}

	var out []interface{}
	path := []common.Address{tokenIn, tokenOut}
	if err := v.router.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountsOut", amountIn, path); err != nil {
		return nil, fmt.Errorf("%s getAmountsOut failed: %w", v.GetName(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s getAmountsOut returned no data", v.GetName())
	}

	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, fmt.Errorf("%s getAmountsOut returned malformed amounts", v.GetName())
	}

	return amounts[len(amounts)-1], nil
}

// GetReserves returns the reserves of a token pair oriented as tokenIn, tokenOut
func (v *V2) GetReserves(ctx context.Context, tokenIn, tokenOut common.Address) (*dex.Reserves, error) {
	pair := v.getPair(tokenIn, tokenOut)

	reserveIn, reserveOut, ts, err := pair.ReservesFor(ctx, tokenIn)
	if err != nil {
		return nil, fmt.Errorf("failed to get reserves: %w", err)
	}

	return &dex.Reserves{
		ReserveIn:          reserveIn,
		ReserveOut:         reserveOut,
		BlockTimestampLast: ts,
	}, nil
}

// EstimateReturn estimates the return amount for a swap
func (v *V2) EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("invalid path length")
	}

	amount := amountIn
	// For each pair in path, calculate output amount
	for i := 0; i < len(path)-1; i++ {
		reserves, err := v.GetReserves(ctx, path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		if reserves.ReserveIn.Sign() == 0 || reserves.ReserveOut.Sign() == 0 {
			return nil, fmt.Errorf("insufficient liquidity in %s pool %s/%s", v.GetName(), path[i].Hex(), path[i+1].Hex())
		}

		amount = GetAmountOut(amount, reserves.ReserveIn, reserves.ReserveOut)
	}

	return amount, nil
}

// getPair returns the pair contract for two tokens
func (v *V2) getPair(tokenA, tokenB common.Address) *Pair {
	token0, token1 := SortTokens(tokenA, tokenB)
	pairAddr := PairFor(v.deployment.Factory, v.deployment.InitCodeHash, token0, token1)
	if cached, ok := v.pairs.Get(pairAddr); ok {
		return cached.(*Pair)
	}

	pair := NewPair(pairAddr, token0, token1, v.pairABI, v.caller)
	v.pairs.Add(pairAddr, pair)
	return pair
}

// SortTokens orders two token addresses the way V2 factories do
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// PairFor calculates the CREATE2 pair address for two sorted tokens
func PairFor(factory common.Address, initCodeHash common.Hash, token0, token1 common.Address) common.Address {
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256(
		[]byte{0xff},
		factory.Bytes(),
		salt,
		initCodeHash.Bytes(),
	)[12:])
}
