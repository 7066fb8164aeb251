package types

import (
	"math/big"
	"path"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Scheme is the Authorization scheme used by paying clients
const Scheme = "L402"

// InvoiceDescriptor is advertised in the WWW-Authenticate header. Payment
// happens on-chain so there is no lightning invoice to hand out.
const InvoiceDescriptor = "eth_payment_needed"

// Outcome represents the tri-state result of a payment verification
type Outcome string

const (
	OutcomeValid         Outcome = "valid"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// ProtectedRoute describes a method and path pattern that requires payment
type ProtectedRoute struct {
	Method    string
	Path      string
	Price     *big.Int
	Recipient common.Address
	Label     string
}

// Matches reports whether the route covers the given request method and path.
// Patterns may be exact, end in "/*" for a subtree, or use path.Match globs.
func (r ProtectedRoute) Matches(method, requestPath string) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return false
	}

	// Exact match
	if r.Path == requestPath {
		return true
	}

	// Subtree wildcard
	if prefix, ok := strings.CutSuffix(r.Path, "/*"); ok {
		return requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/")
	}

	matched, err := path.Match(r.Path, requestPath)
	return err == nil && matched
}

// PaymentChallenge is issued to a client that hit a protected route without
// a usable credential. It is never persisted.
type PaymentChallenge struct {
	Macaroon     string
	Price        *big.Int
	PayTo        common.Address
	VaultAddress *common.Address
	Method       string
	Detail       string
}

// ChallengeBody is the JSON body sent with a 402 challenge
type ChallengeBody struct {
	Message      string `json:"message"`
	Detail       string `json:"detail"`
	PayTo        string `json:"payTo"`
	VaultAddress string `json:"vaultAddress,omitempty"`
	Method       string `json:"method"`
	Price        string `json:"price"`
	Macaroon     string `json:"macaroon"`
}

// Body renders the challenge as its JSON body
func (c PaymentChallenge) Body() ChallengeBody {
	body := ChallengeBody{
		Message:  "Payment Required (Smart Contract)",
		Detail:   c.Detail,
		PayTo:    c.PayTo.Hex(),
		Method:   c.Method,
		Price:    c.Price.String(),
		Macaroon: c.Macaroon,
	}
	if c.VaultAddress != nil {
		body.VaultAddress = c.VaultAddress.Hex()
	}
	return body
}

// PaymentCredential is the macaroon/proof pair a client presents on retry
type PaymentCredential struct {
	Macaroon string
	Proof    string
}

// VerificationResult is the outcome of checking a payment proof. It is never cached.
type VerificationResult struct {
	Outcome Outcome         `json:"outcome"`
	Reason  string          `json:"reason,omitempty"`
	Payer   *common.Address `json:"payer,omitempty"`
}

// Valid reports whether the proof was accepted
func (r VerificationResult) Valid() bool {
	return r.Outcome == OutcomeValid
}

// NewValidResult creates a successful verification result
func NewValidResult(payer *common.Address) VerificationResult {
	return VerificationResult{
		Outcome: OutcomeValid,
		Payer:   payer,
	}
}

// NewInvalidResult creates a result for a proof that is definitively wrong
func NewInvalidResult(reason string) VerificationResult {
	return VerificationResult{
		Outcome: OutcomeInvalid,
		Reason:  reason,
	}
}

// NewIndeterminateResult creates a result for a proof that could not be
// checked right now. The client should retry with the same proof.
func NewIndeterminateResult(reason string) VerificationResult {
	return VerificationResult{
		Outcome: OutcomeIndeterminate,
		Reason:  reason,
	}
}

// Failure describes a rejected result as a PaymentError. It is nil for a
// valid result.
func (r VerificationResult) Failure() *PaymentError {
	switch r.Outcome {
	case OutcomeValid:
		return nil
	case OutcomeIndeterminate:
		return NewIndeterminateError(r.Reason, nil)
	default:
		return NewInvalidProofError(r.Reason)
	}
}
