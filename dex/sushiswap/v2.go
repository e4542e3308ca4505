package sushiswap

import (
	"github.com/michaelpento.lv/dexarb/dex/uniswap"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Factory addresses
var (
	MainnetFactory = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	MainnetRouter  = common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F")

	MainnetInitCodeHash = common.HexToHash("0xe18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303")
)

// MainnetDeployment is Sushiswap's V2 fork on Ethereum mainnet
var MainnetDeployment = uniswap.Deployment{
	Name:         "SushiswapV2",
	Router:       MainnetRouter,
	Factory:      MainnetFactory,
	InitCodeHash: MainnetInitCodeHash,
}

// NewSushiswapV2 creates a Sushiswap exchange on mainnet. Sushiswap is a
// byte-for-byte fork of Uniswap V2, so the uniswap implementation serves it.
func NewSushiswapV2(caller bind.ContractCaller) (*uniswap.V2, error) {
	return uniswap.NewV2(caller, MainnetDeployment)
}
