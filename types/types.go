package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the sentinel address used for the chain's native asset (ETH),
// which has no ERC20 contract behind it.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Ether is the native asset of Ethereum mainnet and its forks
var Ether = Token{Address: NativeAsset, Symbol: "ETH", Decimals: 18}

// Token identifies an asset on the configured chain
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// IsNative reports whether the token is the native-asset sentinel
func (t Token) IsNative() bool {
	return t.Address == NativeAsset
}

// RouteAddress returns the address routers know the token by. The native
// asset trades as its wrapped ERC20.
func (t Token) RouteAddress(wrappedNative common.Address) common.Address {
	if t.IsNative() {
		return wrappedNative
	}
	return t.Address
}

func (t Token) String() string {
	return t.Symbol
}

// ExchangeRate is a quote taken from one exchange at one point in time
type ExchangeRate struct {
	Exchange  string
	TokenIn   Token
	TokenOut  Token
	AmountIn  *big.Int
	AmountOut *big.Int
	FetchedAt time.Time
}

// Direction of an arbitrage round trip between exchange X and exchange Y
type Direction int

const (
	// XToY buys the intermediate token on X and sells it on Y
	XToY Direction = iota
	// YToX buys the intermediate token on Y and sells it on X
	YToX
)

func (d Direction) String() string {
	switch d {
	case XToY:
		return "x_to_y"
	case YToX:
		return "y_to_x"
	default:
		return "unknown"
	}
}

// ArbitrageOpportunity represents a detected arbitrage opportunity.
// It is only meaningful within the polling cycle that produced it.
type ArbitrageOpportunity struct {
	Direction       Direction
	BuyExchange     string
	SellExchange    string
	TokenIn         Token
	TokenOut        Token
	EstimatedProfit *big.Int

	// Scores for both directions, kept for reporting
	ProfitXToY *big.Int
	ProfitYToX *big.Int
}

// TradeParameters are the bounds for a single exact-input swap
type TradeParameters struct {
	Path             []common.Address
	AmountIn         *big.Int
	SimulatedOut     *big.Int
	MinimumAmountOut *big.Int
	Value            *big.Int
	Deadline         *big.Int
}

// SwapReceipt describes a confirmed swap transaction
type SwapReceipt struct {
	Exchange    string
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}
