package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/michaelpento.lv/dexarb/reporter"
	"github.com/michaelpento.lv/dexarb/simulator"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/wallet"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	account = common.HexToAddress("0x1111111111111111111111111111111111111111")
	router  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	weth    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai     = types.Token{Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Decimals: 18}
	mkr     = types.Token{Address: common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2"), Symbol: "MKR", Decimals: 18}
	eth     = types.Token{Address: types.NativeAsset, Symbol: "ETH", Decimals: 18}
)

type mockTransactor struct {
	submitted []*gethtypes.Transaction
	reverted  bool
	pending   bool
}

func (m *mockTransactor) Address() common.Address { return account }

func (m *mockTransactor) Submit(ctx context.Context, to common.Address, value *big.Int, data []byte) (*gethtypes.Transaction, error) {
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{Nonce: uint64(len(m.submitted)), To: &to, Value: value, Data: data})
	m.submitted = append(m.submitted, tx)
	return tx, nil
}

func (m *mockTransactor) WaitMined(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error) {
	if m.pending {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.reverted {
		return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed}, fmt.Errorf("%w: %s", wallet.ErrTransactionReverted, tx.Hash().Hex())
	}
	return &gethtypes.Receipt{
		TxHash:      tx.Hash(),
		Status:      gethtypes.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(18000000),
		GasUsed:     110000,
	}, nil
}

type mockPreflight struct {
	result *simulator.SimulationResult
}

func (m *mockPreflight) SimulateCall(ctx context.Context, from, to common.Address, value *big.Int, data []byte) (*simulator.SimulationResult, error) {
	return m.result, nil
}

func params(path []common.Address, value int64) *types.TradeParameters {
	return &types.TradeParameters{
		Path:             path,
		AmountIn:         big.NewInt(1000),
		SimulatedOut:     big.NewInt(2000),
		MinimumAmountOut: big.NewInt(1990),
		Value:            big.NewInt(value),
		Deadline:         big.NewInt(1700001200),
	}
}

func TestSwapTokensForTokens(t *testing.T) {
	transactor := &mockTransactor{}
	rec := &reporter.Recorder{}
	e, err := NewSwapExecutor(transactor, nil, rec, zaptest.NewLogger(t))
	require.NoError(t, err)

	receipt, err := e.Swap(context.Background(), SwapRequest{
		Exchange: "UniswapV2",
		Router:   router,
		TokenIn:  dai,
		TokenOut: mkr,
		Params:   params([]common.Address{dai.Address, mkr.Address}, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(18000000), receipt.BlockNumber)
	assert.Equal(t, "UniswapV2", receipt.Exchange)

	require.Len(t, transactor.submitted, 1)
	tx := transactor.submitted[0]
	assert.Equal(t, router, *tx.To())
	assert.Equal(t, receipt.TxHash, tx.Hash())

	method, err := e.routerABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactTokensForTokens", method.Name)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), args[0])
	assert.Equal(t, big.NewInt(1990), args[1])
	assert.Equal(t, account, args[3])

	assert.Equal(t, []reporter.EventKind{reporter.EventSwapSubmitted, reporter.EventSwapConfirmed}, rec.Kinds())
}

func TestSwapNativeVariants(t *testing.T) {
	transactor := &mockTransactor{}
	e, err := NewSwapExecutor(transactor, nil, reporter.Nop{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = e.Swap(context.Background(), SwapRequest{
		Router: router, TokenIn: eth, TokenOut: dai,
		Params: params([]common.Address{weth, dai.Address}, 1000),
	})
	require.NoError(t, err)
	_, err = e.Swap(context.Background(), SwapRequest{
		Router: router, TokenIn: dai, TokenOut: eth,
		Params: params([]common.Address{dai.Address, weth}, 0),
	})
	require.NoError(t, err)

	require.Len(t, transactor.submitted, 2)
	method, err := e.routerABI.MethodById(transactor.submitted[0].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactETHForTokens", method.Name)
	assert.Equal(t, big.NewInt(1000), transactor.submitted[0].Value())

	method, err = e.routerABI.MethodById(transactor.submitted[1].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactTokensForETH", method.Name)

	_, err = e.Pack(SwapRequest{TokenIn: eth, TokenOut: eth, Params: params(nil, 0)})
	assert.Error(t, err)
}

func TestSwapReverted(t *testing.T) {
	transactor := &mockTransactor{reverted: true}
	rec := &reporter.Recorder{}
	e, err := NewSwapExecutor(transactor, nil, rec, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = e.Swap(context.Background(), SwapRequest{
		Exchange: "SushiswapV2", Router: router, TokenIn: dai, TokenOut: mkr,
		Params: params([]common.Address{dai.Address, mkr.Address}, 0),
	})
	assert.ErrorIs(t, err, ErrSwapReverted)
	assert.Equal(t, []reporter.EventKind{reporter.EventSwapSubmitted}, rec.Kinds())
}

func TestSwapPreflightFailure(t *testing.T) {
	transactor := &mockTransactor{}
	simErr := errors.New("execution reverted: UniswapV2Router: EXPIRED")
	preflight := &mockPreflight{result: &simulator.SimulationResult{Success: false, Error: simErr}}
	e, err := NewSwapExecutor(transactor, preflight, reporter.Nop{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = e.Swap(context.Background(), SwapRequest{
		Router: router, TokenIn: dai, TokenOut: mkr,
		Params: params([]common.Address{dai.Address, mkr.Address}, 0),
	})
	assert.ErrorIs(t, err, ErrSwapReverted)
	assert.ErrorIs(t, err, simErr)
	assert.Empty(t, transactor.submitted)
}

func TestSwapWaitBoundedByDeadline(t *testing.T) {
	transactor := &mockTransactor{pending: true}
	rec := &reporter.Recorder{}
	e, err := NewSwapExecutor(transactor, nil, rec, zaptest.NewLogger(t))
	require.NoError(t, err)
	e.mineGrace = 20 * time.Millisecond

	p := params([]common.Address{dai.Address, mkr.Address}, 0)
	p.Deadline = big.NewInt(time.Now().Unix())

	done := make(chan error, 1)
	go func() {
		_, err := e.Swap(context.Background(), SwapRequest{
			Exchange: "UniswapV2",
			Router:   router,
			TokenIn:  dai,
			TokenOut: mkr,
			Params:   p,
		})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "not mined before deadline")
	case <-time.After(2 * time.Second):
		t.Fatal("swap wait was not bounded by the deadline")
	}

	assert.Equal(t, []reporter.EventKind{reporter.EventSwapSubmitted}, rec.Kinds())
}
