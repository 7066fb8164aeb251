package gate

import (
	"strings"

	"github.com/langell/chainOverflow/pkg/types"
)

// ParseAuthorization parses "L402 <macaroon>:<proof>". Anything else is a
// missing credential and earns a fresh challenge. Only the first colon
// separates macaroon from proof.
func ParseAuthorization(header string) (types.PaymentCredential, error) {
	scheme, credentials, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || scheme != types.Scheme {
		return types.PaymentCredential{}, types.NewMissingCredentialError("authorization scheme must be " + types.Scheme)
	}

	macaroon, proof, ok := strings.Cut(strings.TrimSpace(credentials), ":")
	if !ok || macaroon == "" || proof == "" {
		return types.PaymentCredential{}, types.NewMissingCredentialError("credentials must be <macaroon>:<proof>")
	}

	return types.PaymentCredential{
		Macaroon: macaroon,
		Proof:    proof,
	}, nil
}

// FormatAuthorization renders a credential as an Authorization header value
func FormatAuthorization(c types.PaymentCredential) string {
	return types.Scheme + " " + c.Macaroon + ":" + c.Proof
}
