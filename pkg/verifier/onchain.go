package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/langell/chainOverflow/pkg/chain/evm"
	"github.com/langell/chainOverflow/pkg/types"
)

// DefaultTimeout bounds the wait for a payment receipt
const DefaultTimeout = 45 * time.Second

// Reasons returned by the on-chain strategy
const (
	ReasonMalformedHash = "Invalid payment proof: malformed transaction hash"
	ReasonTimedOut      = "Verification timed out, try again later"
	ReasonChainError    = "Unable to verify payment on-chain, try again later"
	ReasonFailedOnChain = "Transaction failed on-chain"
	ReasonUnknownTx     = "Invalid payment proof: transaction not found"
)

// ChainReader is the read side of the chain the on-chain strategy needs
type ChainReader interface {
	WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*evm.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*evm.Transaction, error)
}

// OnChain treats the proof as the hash of an ETH transfer and checks it
// against the chain.
type OnChain struct {
	chain   ChainReader
	timeout time.Duration
}

// NewOnChain creates the on-chain strategy
func NewOnChain(chain ChainReader, timeout time.Duration) *OnChain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OnChain{
		chain:   chain,
		timeout: timeout,
	}
}

// Mode implements Verifier
func (v *OnChain) Mode() string {
	return ModeOnChain
}

// Verify implements Verifier
func (v *OnChain) Verify(ctx context.Context, proof string, exp Expectation) types.VerificationResult {
	// Parse transaction hash
	hash, err := evm.ParseTxHash(strings.TrimSpace(proof))
	if err != nil {
		return types.NewInvalidResult(ReasonMalformedHash)
	}

	// Wait for the payment to be mined
	receipt, err := v.chain.WaitForReceipt(ctx, hash, v.timeout)
	if err != nil {
		if errors.Is(err, evm.ErrReceiptTimeout) {
			return types.NewIndeterminateResult(ReasonTimedOut)
		}
		return types.NewIndeterminateResult(ReasonChainError)
	}

	if !receipt.Successful() {
		return types.NewInvalidResult(ReasonFailedOnChain)
	}

	// Load the transfer itself for recipient and value
	tx, err := v.chain.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, evm.ErrNotFound) {
			return types.NewInvalidResult(ReasonUnknownTx)
		}
		return types.NewIndeterminateResult(ReasonChainError)
	}

	// Validate receiver address
	if tx.To == nil {
		return types.NewInvalidResult("Invalid recipient: contract creation")
	}
	if !matchesAny(*tx.To, exp.Recipients) {
		return types.NewInvalidResult(fmt.Sprintf("Invalid recipient: %s", tx.To.Hex()))
	}

	// Check amount sufficiency
	if tx.Value.Cmp(exp.Price) < 0 {
		return types.NewInvalidResult(fmt.Sprintf("Insufficient payment: expected %s wei, got %s wei", exp.Price, tx.Value))
	}

	return types.NewValidResult(tx.From)
}

func matchesAny(addr common.Address, candidates []common.Address) bool {
	for _, c := range candidates {
		if strings.EqualFold(addr.Hex(), c.Hex()) {
			return true
		}
	}
	return false
}
