package verifier

import (
	"context"
	"unicode/utf8"

	"github.com/langell/chainOverflow/pkg/types"
)

// minPreimageLength is the shortest proof, in characters, the legacy check
// accepts
const minPreimageLength = 6

// ReasonInvalidProof is returned for any proof the legacy check rejects
const ReasonInvalidProof = "Invalid payment proof"

// Legacy accepts any proof longer than five characters. It does no I/O and
// exists for local development without a chain.
type Legacy struct{}

// Verify implements Verifier
func (Legacy) Verify(ctx context.Context, proof string, exp Expectation) types.VerificationResult {
	if utf8.RuneCountInString(proof) < minPreimageLength {
		return types.NewInvalidResult(ReasonInvalidProof)
	}
	return types.NewValidResult(nil)
}

// Mode implements Verifier
func (Legacy) Mode() string {
	return ModeLegacy
}
