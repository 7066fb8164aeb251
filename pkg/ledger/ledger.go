// Package ledger records payment proofs that have already admitted a request.
//
// The payment protocol on its own accepts the same proof any number of
// times. A ledger is only consulted when replay protection is switched on.
package ledger

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned when the backing store cannot be reached
var ErrUnavailable = errors.New("ledger unavailable")

// Ledger claims proofs. Claim reports true the first time a proof is seen and
// false for every later claim until the entry expires.
type Ledger interface {
	Claim(ctx context.Context, proof string) (bool, error)
	Close() error
}

// Stats summarises ledger contents
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// Reporter is implemented by ledgers that can summarise their contents
type Reporter interface {
	Stats() Stats
}

// Transaction hashes are case-insensitive hex.
func normalize(proof string) string {
	return strings.ToLower(strings.TrimSpace(proof))
}
