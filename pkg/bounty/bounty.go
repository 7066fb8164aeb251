// Package bounty pays out question bounties held by the vault contract.
package bounty

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/langell/chainOverflow/pkg/chain/evm"
	"go.uber.org/zap"
)

// ReleaseSignature is the vault function that pays a bounty to its winner
const ReleaseSignature = "releaseBounty(string,address)"

var (
	// ErrVaultNotConfigured is returned when no vault address is known
	ErrVaultNotConfigured = errors.New("vault address not configured")

	// ErrInvalidWinner is returned for the zero address
	ErrInvalidWinner = errors.New("invalid winner address")
)

// Contract is the part of the chain provider the releaser needs
type Contract interface {
	SendContractCall(ctx context.Context, contract common.Address, signature string, args ...any) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*evm.Receipt, error)
}

// Releaser releases bounties from the vault using the internal wallet
type Releaser struct {
	contract Contract
	vault    *common.Address
	timeout  time.Duration
	log      *zap.SugaredLogger
}

// NewReleaser creates a releaser. vault may be nil, in which case every
// release fails with ErrVaultNotConfigured.
func NewReleaser(contract Contract, vault *common.Address, timeout time.Duration, log *zap.SugaredLogger) *Releaser {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Releaser{
		contract: contract,
		vault:    vault,
		timeout:  timeout,
		log:      log,
	}
}

// Release pays the bounty of questionID to winner and waits for the call
// to be mined.
func (r *Releaser) Release(ctx context.Context, questionID int64, winner common.Address) (common.Hash, error) {
	if r.vault == nil {
		return common.Hash{}, ErrVaultNotConfigured
	}
	if winner == (common.Address{}) {
		return common.Hash{}, ErrInvalidWinner
	}

	id := strconv.FormatInt(questionID, 10)

	hash, err := r.contract.SendContractCall(ctx, *r.vault, ReleaseSignature, id, winner)
	if err != nil {
		return common.Hash{}, fmt.Errorf("releasing bounty for question %s: %w", id, err)
	}

	r.log.Infow("bounty release sent", "question", id, "winner", winner.Hex(), "tx", hash.Hex())

	receipt, err := r.contract.WaitForReceipt(ctx, hash, r.timeout)
	if err != nil {
		return hash, fmt.Errorf("waiting for bounty release %s: %w", hash.Hex(), err)
	}
	if !receipt.Successful() {
		return hash, fmt.Errorf("bounty release %s reverted", hash.Hex())
	}

	r.log.Infow("bounty released", "question", id, "winner", winner.Hex(), "block", receipt.BlockNumber)

	return hash, nil
}
