package gate

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/langell/chainOverflow/pkg/network"
	"github.com/langell/chainOverflow/pkg/types"
	"github.com/shopspring/decimal"
)

// Contract method names shown to paying clients
const (
	MethodPayForQuestion = "payForQuestion"
	MethodPayFee         = "payFee"
)

// Issuer builds 402 challenges
type Issuer struct {
	vault    *common.Address
	network  network.NetworkInfo
	newToken func() (string, error)
}

// NewIssuer creates a challenge issuer. vault may be nil.
func NewIssuer(vault *common.Address, net network.NetworkInfo) *Issuer {
	return &Issuer{
		vault:    vault,
		network:  net,
		newToken: newMacaroon,
	}
}

// Issue creates a fresh challenge for route. The macaroon is random and is
// not remembered.
func (i *Issuer) Issue(route types.ProtectedRoute) (types.PaymentChallenge, error) {
	token, err := i.newToken()
	if err != nil {
		return types.PaymentChallenge{}, fmt.Errorf("failed to generate macaroon: %w", err)
	}

	method := MethodLabel(route)

	return types.PaymentChallenge{
		Macaroon:     token,
		Price:        route.Price,
		PayTo:        route.Recipient,
		VaultAddress: i.vault,
		Method:       method,
		Detail: fmt.Sprintf("This endpoint requires a contract call to %s on %s (%s %s).",
			method, i.network.Name, FormatUnits(route.Price, i.network.Decimals), i.network.NativeSymbol),
	}, nil
}

// Header renders the WWW-Authenticate value for a challenge
func Header(c types.PaymentChallenge) string {
	return fmt.Sprintf(`%s macaroon="%s", invoice="%s"`, types.Scheme, c.Macaroon, types.InvoiceDescriptor)
}

// MethodLabel returns the contract method a route asks clients to call
func MethodLabel(route types.ProtectedRoute) string {
	if route.Label != "" {
		return route.Label
	}
	if strings.Contains(route.Path, "questions") {
		return MethodPayForQuestion
	}
	return MethodPayFee
}

// FormatUnits renders an integer amount of the smallest unit as a decimal
func FormatUnits(amount *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount, -decimals).String()
}

func newMacaroon() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return "mac_" + strings.ReplaceAll(id.String(), "-", ""), nil
}
