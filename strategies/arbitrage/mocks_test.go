package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/executor"
	"github.com/michaelpento.lv/dexarb/types"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner = common.HexToAddress("0x1111111111111111111111111111111111111111")
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai   = types.Token{Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Decimals: 18}
	mkr   = types.Token{Address: common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2"), Symbol: "MKR", Decimals: 18}
	pair  = Pair{Input: dai, Intermediate: mkr}
)

type quoteKey struct {
	in, out common.Address
}

// mockExchange serves fixed quotes and counts every chain read
type mockExchange struct {
	name   string
	router common.Address

	mu       sync.Mutex
	quotes   map[quoteKey]*big.Int
	quoteErr error
	block    chan struct{}

	calls atomic.Int32
}

func newMockExchange(name string, router common.Address) *mockExchange {
	return &mockExchange{
		name:   name,
		router: router,
		quotes: make(map[quoteKey]*big.Int),
	}
}

func (m *mockExchange) setRates(buy, sell int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[quoteKey{dai.Address, mkr.Address}] = big.NewInt(buy)
	m.quotes[quoteKey{mkr.Address, dai.Address}] = big.NewInt(sell)
}

func (m *mockExchange) GetName() string { return m.name }

func (m *mockExchange) GetRouterAddress() common.Address { return m.router }

func (m *mockExchange) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	m.calls.Add(1)
	if m.block != nil {
		<-m.block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	out, ok := m.quotes[quoteKey{tokenIn, tokenOut}]
	if !ok {
		return nil, fmt.Errorf("no quote for %s -> %s", tokenIn.Hex(), tokenOut.Hex())
	}
	return new(big.Int).Set(out), nil
}

func (m *mockExchange) GetReserves(ctx context.Context, tokenIn, tokenOut common.Address) (*dex.Reserves, error) {
	m.calls.Add(1)
	return &dex.Reserves{ReserveIn: big.NewInt(1e6), ReserveOut: big.NewInt(1e6)}, nil
}

func (m *mockExchange) EstimateReturn(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	m.calls.Add(1)
	return big.NewInt(1000), nil
}

// mockWallet holds balances and moves them when swaps succeed
type mockWallet struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int

	allowanceCalls []allowanceCall
	allowanceErr   error

	swaps     []executor.SwapRequest
	swapErrAt int
	swapErr   error
	proceeds  map[common.Address]*big.Int
}

type allowanceCall struct {
	spender common.Address
	token   types.Token
	amount  *big.Int
}

func newMockWallet() *mockWallet {
	return &mockWallet{
		balances: make(map[common.Address]*big.Int),
		proceeds: make(map[common.Address]*big.Int),
	}
}

func (w *mockWallet) setBalance(tok types.Token, amount int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[tok.Address] = big.NewInt(amount)
}

func (w *mockWallet) balance(tok types.Token) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.balances[tok.Address]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (w *mockWallet) BalanceOf(ctx context.Context, tok types.Token, account common.Address) (*big.Int, error) {
	return w.balance(tok), nil
}

func (w *mockWallet) EnsureAllowance(ctx context.Context, account, spender common.Address, tok types.Token, required *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.allowanceCalls = append(w.allowanceCalls, allowanceCall{spender: spender, token: tok, amount: new(big.Int).Set(required)})
	return w.allowanceErr
}

func (w *mockWallet) Swap(ctx context.Context, req executor.SwapRequest) (*types.SwapReceipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.swaps = append(w.swaps, req)
	if w.swapErrAt > 0 && len(w.swaps) == w.swapErrAt {
		return nil, w.swapErr
	}

	spent := w.balances[req.TokenIn.Address]
	w.balances[req.TokenIn.Address] = new(big.Int).Sub(spent, req.Params.AmountIn)

	out := w.proceeds[req.TokenOut.Address]
	if out == nil {
		out = req.Params.SimulatedOut
	}
	current, ok := w.balances[req.TokenOut.Address]
	if !ok {
		current = big.NewInt(0)
	}
	w.balances[req.TokenOut.Address] = new(big.Int).Add(current, out)

	return &types.SwapReceipt{
		Exchange:    req.Exchange,
		TxHash:      common.BigToHash(big.NewInt(int64(len(w.swaps)))),
		BlockNumber: uint64(100 + len(w.swaps)),
		GasUsed:     110000,
	}, nil
}

// countingTicker counts ticks and optionally holds each one for a while
type countingTicker struct {
	started  atomic.Int32
	finished atomic.Int32
	hold     chan struct{}
}

func (c *countingTicker) Tick(ctx context.Context) error {
	c.started.Add(1)
	defer c.finished.Add(1)
	if c.hold != nil {
		<-c.hold
	}
	return nil
}
