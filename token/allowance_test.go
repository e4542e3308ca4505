package token

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/michaelpento.lv/dexarb/reporter"
	"github.com/michaelpento.lv/dexarb/types"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	owner  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	router = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	dai    = types.Token{Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Decimals: 18}
)

type mockAllowanceReader struct {
	allowance *big.Int
	err       error
}

func (m *mockAllowanceReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return m.allowance, m.err
}

type mockApprover struct {
	approvals []*big.Int
	failAt    int
}

func (m *mockApprover) Approve(ctx context.Context, tok types.Token, spender common.Address, amount *big.Int) error {
	m.approvals = append(m.approvals, new(big.Int).Set(amount))
	if m.failAt > 0 && len(m.approvals) == m.failAt {
		return errors.New("execution reverted")
	}
	return nil
}

func TestEnsureAllowance(t *testing.T) {
	tests := []struct {
		name     string
		current  int64
		required int64
		want     []int64
	}{
		{name: "zero allowance approves once", current: 0, required: 100, want: []int64{100}},
		{name: "short allowance is reset first", current: 50, required: 100, want: []int64{0, 100}},
		{name: "exact allowance is left alone", current: 100, required: 100, want: nil},
		{name: "larger allowance is left alone", current: 1000, required: 100, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockAllowanceReader{allowance: big.NewInt(tt.current)}
			approver := &mockApprover{}
			m := NewAllowanceManager(reader, approver, zaptest.NewLogger(t))

			err := m.EnsureAllowance(context.Background(), owner, router, dai, big.NewInt(tt.required))
			require.NoError(t, err)

			var got []int64
			for _, a := range approver.approvals {
				got = append(got, a.Int64())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureAllowanceNative(t *testing.T) {
	reader := &mockAllowanceReader{err: errors.New("should not be called")}
	approver := &mockApprover{}
	m := NewAllowanceManager(reader, approver, zaptest.NewLogger(t))

	eth := types.Token{Address: types.NativeAsset, Symbol: "ETH", Decimals: 18}
	require.NoError(t, m.EnsureAllowance(context.Background(), owner, router, eth, big.NewInt(1)))
	assert.Empty(t, approver.approvals)
}

func TestEnsureAllowanceFailures(t *testing.T) {
	t.Run("reset fails", func(t *testing.T) {
		approver := &mockApprover{failAt: 1}
		m := NewAllowanceManager(&mockAllowanceReader{allowance: big.NewInt(50)}, approver, zaptest.NewLogger(t))

		err := m.EnsureAllowance(context.Background(), owner, router, dai, big.NewInt(100))
		assert.ErrorIs(t, err, ErrApprovalFailed)
		assert.Len(t, approver.approvals, 1)
	})

	t.Run("raise fails", func(t *testing.T) {
		approver := &mockApprover{failAt: 2}
		m := NewAllowanceManager(&mockAllowanceReader{allowance: big.NewInt(50)}, approver, zaptest.NewLogger(t))

		err := m.EnsureAllowance(context.Background(), owner, router, dai, big.NewInt(100))
		assert.ErrorIs(t, err, ErrApprovalFailed)
		assert.Len(t, approver.approvals, 2)
	})

	t.Run("read fails", func(t *testing.T) {
		readErr := errors.New("node unreachable")
		approver := &mockApprover{}
		m := NewAllowanceManager(&mockAllowanceReader{err: readErr}, approver, zaptest.NewLogger(t))

		err := m.EnsureAllowance(context.Background(), owner, router, dai, big.NewInt(100))
		assert.ErrorIs(t, err, readErr)
		assert.NotErrorIs(t, err, ErrApprovalFailed)
		assert.Empty(t, approver.approvals)
	})
}

type mockTransactor struct {
	submitted []*gethtypes.Transaction
	status    uint64
	submitErr error
	waitErr   error
}

func (m *mockTransactor) Submit(ctx context.Context, to common.Address, value *big.Int, data []byte) (*gethtypes.Transaction, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		Nonce: uint64(len(m.submitted)),
		To:    &to,
		Value: value,
		Data:  data,
	})
	m.submitted = append(m.submitted, tx)
	return tx, nil
}

func (m *mockTransactor) WaitMined(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error) {
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return &gethtypes.Receipt{TxHash: tx.Hash(), BlockNumber: big.NewInt(100), Status: gethtypes.ReceiptStatusSuccessful}, nil
}

func TestTxApprover(t *testing.T) {
	erc20, err := NewERC20(nil)
	require.NoError(t, err)

	transactor := &mockTransactor{}
	rec := &reporter.Recorder{}
	approver := NewTxApprover(erc20, transactor, rec)

	require.NoError(t, approver.Approve(context.Background(), dai, router, big.NewInt(100)))

	require.Len(t, transactor.submitted, 1)
	tx := transactor.submitted[0]
	assert.Equal(t, dai.Address, *tx.To())
	assert.Equal(t, int64(0), tx.Value().Int64())

	want, err := erc20.PackApprove(router, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, want, tx.Data())

	assert.Equal(t, []reporter.EventKind{reporter.EventApprovalSubmitted, reporter.EventApprovalConfirmed}, rec.Kinds())
	assert.Equal(t, uint64(100), rec.Events()[1].BlockNumber)
}

func TestTxApproverWaitFails(t *testing.T) {
	erc20, err := NewERC20(nil)
	require.NoError(t, err)

	waitErr := errors.New("transaction reverted")
	approver := NewTxApprover(erc20, &mockTransactor{waitErr: waitErr}, reporter.Nop{})

	err = approver.Approve(context.Background(), dai, router, big.NewInt(100))
	assert.ErrorIs(t, err, ErrApprovalFailed)
	assert.ErrorIs(t, err, waitErr)
}
