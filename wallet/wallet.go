// Package wallet signs and submits transactions for the bot's single account.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrTransactionReverted is returned when a mined transaction has a failed status
var ErrTransactionReverted = errors.New("transaction reverted")

// Backend is the node API needed to sign, send and track transactions
type Backend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
}

// FeeSuggester provides EIP-1559 fee parameters
type FeeSuggester interface {
	SuggestFees(ctx context.Context) (tip *big.Int, feeCap *big.Int, err error)
}

// Wallet submits transactions one at a time so that nonces never collide
type Wallet struct {
	backend  Backend
	fees     FeeSuggester
	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	signer   gethtypes.Signer
	gasLimit uint64
	logger   *zap.Logger

	mu sync.Mutex
}

// New creates a wallet from a hex encoded private key. gasLimit is used when
// gas estimation fails.
func New(backend Backend, fees FeeSuggester, privateKeyHex string, chainID *big.Int, gasLimit uint64, logger *zap.Logger) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id: %v", chainID)
	}

	return &Wallet{
		backend:  backend,
		fees:     fees,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		signer:   gethtypes.LatestSignerForChainID(chainID),
		gasLimit: gasLimit,
		logger:   logger,
	}, nil
}

// Address returns the account address
func (w *Wallet) Address() common.Address {
	return w.address
}

// Submit signs and broadcasts a call to `to`. The nonce is read from the
// pending state on every call.
func (w *Wallet) Submit(ctx context.Context, to common.Address, value *big.Int, data []byte) (*gethtypes.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	tip, feeCap, err := w.fees.SuggestFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest fees: %w", err)
	}

	gasLimit, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil || gasLimit == 0 {
		w.logger.Debug("Gas estimation failed, using default limit",
			zap.Uint64("gas_limit", w.gasLimit),
			zap.Error(err))
		gasLimit = w.gasLimit
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := gethtypes.SignTx(tx, w.signer, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	w.logger.Debug("Transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gasLimit))

	return signed, nil
}

// WaitMined blocks until tx is mined and fails if it reverted
func (w *Wallet) WaitMined(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, w.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, tx.Hash().Hex())
	}
	return receipt, nil
}
