package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockBackend struct {
	mu       sync.Mutex
	nonce    uint64
	gas      uint64
	gasErr   error
	sent     []*gethtypes.Transaction
	status   uint64
	receipts map[common.Hash]*gethtypes.Receipt
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		gas:      120000,
		status:   gethtypes.ReceiptStatusSuccessful,
		receipts: make(map[common.Hash]*gethtypes.Receipt),
	}
}

func (m *mockBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (m *mockBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (m *mockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonce, nil
}

func (m *mockBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return m.gas, m.gasErr
}

func (m *mockBackend) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, tx)
	m.nonce++
	m.receipts[tx.Hash()] = &gethtypes.Receipt{
		TxHash:      tx.Hash(),
		Status:      m.status,
		BlockNumber: big.NewInt(int64(len(m.sent))),
		GasUsed:     tx.Gas() / 2,
	}
	return nil
}

type fixedFees struct{}

func (fixedFees) SuggestFees(ctx context.Context) (*big.Int, *big.Int, error) {
	return big.NewInt(2), big.NewInt(100), nil
}

func newTestWallet(t *testing.T, backend *mockBackend) *Wallet {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	w, err := New(backend, fixedFees{}, "0x"+hex.EncodeToString(crypto.FromECDSA(key)), big.NewInt(1337), 300000, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), w.Address())
	return w
}

func TestSubmit(t *testing.T) {
	backend := newMockBackend()
	w := newTestWallet(t, backend)
	to := common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")

	tx, err := w.Submit(context.Background(), to, big.NewInt(5), []byte{0xde, 0xad})
	require.NoError(t, err)

	assert.Equal(t, uint8(gethtypes.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(0), tx.Nonce())
	assert.Equal(t, uint64(120000), tx.Gas())
	assert.Equal(t, big.NewInt(100), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(2), tx.GasTipCap())
	assert.Equal(t, big.NewInt(1337), tx.ChainId())

	sender, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(1337)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)

	// Next submission picks up the pending nonce
	tx, err = w.Submit(context.Background(), to, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tx.Nonce())
	assert.Equal(t, int64(0), tx.Value().Int64())
}

func TestSubmitFallsBackToDefaultGasLimit(t *testing.T) {
	backend := newMockBackend()
	backend.gasErr = errors.New("execution reverted")
	w := newTestWallet(t, backend)

	tx, err := w.Submit(context.Background(), common.Address{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(300000), tx.Gas())
}

func TestWaitMined(t *testing.T) {
	backend := newMockBackend()
	w := newTestWallet(t, backend)

	tx, err := w.Submit(context.Background(), common.Address{}, nil, nil)
	require.NoError(t, err)

	receipt, err := w.WaitMined(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), receipt.TxHash)

	backend.status = gethtypes.ReceiptStatusFailed
	tx, err = w.Submit(context.Background(), common.Address{}, nil, nil)
	require.NoError(t, err)

	_, err = w.WaitMined(context.Background(), tx)
	assert.ErrorIs(t, err, ErrTransactionReverted)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(newMockBackend(), fixedFees{}, "not-a-key", big.NewInt(1), 300000, zaptest.NewLogger(t))
	assert.Error(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = New(newMockBackend(), fixedFees{}, hex.EncodeToString(crypto.FromECDSA(key)), big.NewInt(0), 300000, zaptest.NewLogger(t))
	assert.Error(t, err)
}
