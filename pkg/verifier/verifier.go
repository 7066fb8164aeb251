package verifier

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/langell/chainOverflow/pkg/types"
)

const (
	ModeLegacy  = "legacy"
	ModeOnChain = "onchain"
)

// Expectation is what a proof must satisfy for a given route
type Expectation struct {
	Price      *big.Int
	Recipients []common.Address
}

// Verifier is the core interface for payment proof verification.
//
// A Verifier decides whether the proof a client presented pays for the
// route it called. It never returns an error: every failure, including
// chain outages, is expressed as an invalid or indeterminate result so the
// gate can answer with a 402.
//
// Verifying the same proof twice against the same chain state returns the
// same result.
type Verifier interface {
	// Verify checks a proof against the expectation
	Verify(ctx context.Context, proof string, exp Expectation) types.VerificationResult

	// Mode names the strategy for logs and metrics
	Mode() string
}

// New selects the verification strategy. It is called once at startup.
func New(mode string, chain ChainReader, timeout time.Duration) (Verifier, error) {
	switch mode {
	case ModeLegacy:
		return Legacy{}, nil
	case ModeOnChain:
		if chain == nil {
			return nil, types.NewConfigurationError("on-chain verification needs a chain reader", nil)
		}
		return NewOnChain(chain, timeout), nil
	default:
		return nil, types.NewConfigurationError(fmt.Sprintf("unknown verification mode %q", mode), nil)
	}
}
