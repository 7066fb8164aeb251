package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ssgreg/repeat"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a transaction or receipt is unknown to the node
	ErrNotFound = errors.New("not found")

	// ErrReceiptTimeout is returned when a receipt did not appear in time
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")

	// ErrNoSigner is returned when a write is attempted on a read-only provider
	ErrNoSigner = errors.New("provider has no signing key")
)

// Backend is the subset of the ethclient API the provider needs
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Receipt is the mined outcome of a transaction
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber *big.Int
	GasUsed     uint64
}

// Successful reports whether the transaction executed without reverting
func (r *Receipt) Successful() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// Transaction holds the fields of a transaction relevant to payment checks
type Transaction struct {
	Hash    common.Hash
	From    *common.Address
	To      *common.Address
	Value   *big.Int
	Pending bool
}

// Provider reads payment transactions from an EVM chain and signs writes
// with the internal wallet
type Provider struct {
	backend       Backend
	close         func()
	chainID       *big.Int
	signer        *ecdsa.PrivateKey
	signerAddress common.Address
	pollInterval  time.Duration
	retryDelay    time.Duration
	maxTries      int
	log           *zap.SugaredLogger

	// sendMu serialises nonce allocation for the signer
	sendMu sync.Mutex
}

// Option configures a Provider
type Option func(*Provider)

// WithPollInterval sets how often receipts are polled
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) {
		p.pollInterval = d
	}
}

// WithRetry sets the backoff base delay and the total number of attempts
// for RPC reads. Values below one mean a single attempt.
func WithRetry(delay time.Duration, maxTries int) Option {
	return func(p *Provider) {
		p.retryDelay = delay
		p.maxTries = max(maxTries, 1)
	}
}

// WithLogger sets the provider logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Provider) {
		p.log = log
	}
}

// NewProvider dials the RPC endpoint. signer may be nil for a read-only provider.
func NewProvider(rpcURL string, chainID *big.Int, signer *ecdsa.PrivateKey, opts ...Option) (*Provider, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	p := NewProviderWithBackend(client, chainID, signer, opts...)
	p.close = client.Close

	return p, nil
}

// NewProviderWithBackend builds a provider over an existing backend
func NewProviderWithBackend(backend Backend, chainID *big.Int, signer *ecdsa.PrivateKey, opts ...Option) *Provider {
	p := &Provider{
		backend:      backend,
		close:        func() {},
		chainID:      chainID,
		signer:       signer,
		pollInterval: time.Second,
		retryDelay:   250 * time.Millisecond,
		maxTries:     3,
		log:          zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if signer != nil {
		p.signerAddress = crypto.PubkeyToAddress(signer.PublicKey)
	}

	return p
}

// Close releases the RPC connection
func (p *Provider) Close() {
	p.close()
}

// CheckChainID compares the node's chain id with the configured one
func (p *Provider) CheckChainID(ctx context.Context) error {
	remote, err := p.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}
	if remote.Cmp(p.chainID) != 0 {
		return fmt.Errorf("chain id mismatch: configured %s, node reports %s", p.chainID, remote)
	}
	return nil
}

// TransactionReceipt fetches the receipt of a mined transaction
func (p *Provider) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	receipt, err := p.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, hash.Hex())
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	return &Receipt{
		TxHash:      receipt.TxHash,
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}, nil
}

// WaitForReceipt polls until the transaction is mined or timeout elapses.
// Errors other than not-found are logged and polling continues.
func (p *Provider) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ErrNotFound) && ctx.Err() == nil {
			p.log.Debugw("receipt poll failed", "hash", hash.Hex(), "ERROR", err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s after %s", ErrReceiptTimeout, hash.Hex(), timeout)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TransactionByHash fetches a transaction, retrying transient RPC failures
func (p *Provider) TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var (
		tx      *types.Transaction
		pending bool
		lastErr error
	)

	err := repeat.Repeat(
		repeat.Fn(func() error {
			var err error
			tx, pending, err = p.backend.TransactionByHash(ctx, hash)
			if err == nil {
				return nil
			}
			lastErr = err
			if errors.Is(err, ethereum.NotFound) || ctx.Err() != nil {
				return err
			}
			return repeat.HintTemporary(err)
		}),
		repeat.WithDelay(repeat.FullJitterBackoff(p.retryDelay).Set()),
		repeat.StopOnSuccess(),
		// The counter starts at zero, so the limit counts retries.
		repeat.LimitMaxTries(p.maxTries-1),
	)
	if err != nil {
		if errors.Is(lastErr, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, hash.Hex())
		}
		return nil, fmt.Errorf("failed to get transaction: %w", lastErr)
	}

	out := &Transaction{
		Hash:    tx.Hash(),
		To:      tx.To(),
		Value:   new(big.Int).Set(tx.Value()),
		Pending: pending,
	}

	// Unsigned or unknown tx types leave From empty
	if from, err := types.Sender(types.LatestSignerForChainID(p.chainID), tx); err == nil {
		out.From = &from
	}

	return out, nil
}

// SendContractCall encodes a call to the function described by signature,
// for example "releaseBounty(string,address)", and submits it signed by the
// provider's key.
func (p *Provider) SendContractCall(ctx context.Context, contract common.Address, signature string, args ...any) (common.Hash, error) {
	data, err := EncodeCall(signature, args...)
	if err != nil {
		return common.Hash{}, err
	}
	return p.send(ctx, contract, big.NewInt(0), data)
}

// SendValue transfers wei to an address
func (p *Provider) SendValue(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error) {
	return p.send(ctx, to, value, nil)
}

// SignerAddress returns the address writes are sent from
func (p *Provider) SignerAddress() common.Address {
	return p.signerAddress
}

func (p *Provider) send(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if p.signer == nil {
		return common.Hash{}, ErrNoSigner
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	// Get nonce
	nonce, err := p.backend.PendingNonceAt(ctx, p.signerAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	// Get gas price
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	// Estimate gas
	gasLimit, err := p.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  p.signerAddress,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	// Create and sign transaction
	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(p.chainID), p.signer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign tx: %w", err)
	}

	// Send transaction
	if err := p.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send tx: %w", err)
	}

	p.log.Infow("transaction submitted", "hash", signedTx.Hash().Hex(), "to", to.Hex(), "value", value.String(), "nonce", nonce)

	return signedTx.Hash(), nil
}
