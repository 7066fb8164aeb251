// Package wallet provides the service's own signing identity. The address is
// the fallback payee for paid routes and the key signs vault transactions.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/langell/chainOverflow/pkg/types"
	"go.uber.org/zap"
)

// GeneratePlaceholder asks for a fresh key to be generated at startup
const GeneratePlaceholder = "GENERATE_NEW"

// Identity is the internal wallet. It is created once and never mutated.
type Identity struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	ephemeral  bool
}

// Load parses the configured key or, when allowed, generates a new one. A
// generated key lives only as long as the process.
func Load(privateKeyHex string, allowGenerate bool, log *zap.SugaredLogger) (*Identity, error) {
	privateKeyHex = strings.TrimSpace(privateKeyHex)

	if privateKeyHex == "" || privateKeyHex == GeneratePlaceholder {
		if !allowGenerate {
			return nil, types.NewConfigurationError("internal wallet private key is not configured", nil)
		}
		return generate(log)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, types.NewConfigurationError("invalid internal wallet private key", err)
	}

	id := newIdentity(privateKey, false)
	log.Infow("startup", "status", "internal wallet loaded", "address", id.address.Hex())

	return id, nil
}

// FromKey wraps an existing key
func FromKey(privateKey *ecdsa.PrivateKey) *Identity {
	return newIdentity(privateKey, false)
}

func generate(log *zap.SugaredLogger) (*Identity, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet key: %w", err)
	}

	id := newIdentity(privateKey, true)

	log.Warnw("internal wallet generated for this process only",
		"address", id.address.Hex(),
		"warning", "funds sent to this address are lost when the process restarts",
		"fix", "set CHAINOVERFLOW_WALLET_PRIVATE_KEY (or INTERNAL_WALLET_PRIVATE_KEY) in .env to a persistent key",
	)

	return id, nil
}

func newIdentity(privateKey *ecdsa.PrivateKey, ephemeral bool) *Identity {
	return &Identity{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		ephemeral:  ephemeral,
	}
}

// Address returns the wallet address
func (id *Identity) Address() common.Address {
	return id.address
}

// PrivateKey returns the signing key
func (id *Identity) PrivateKey() *ecdsa.PrivateKey {
	return id.privateKey
}

// Ephemeral reports whether the key was generated at startup
func (id *Identity) Ephemeral() bool {
	return id.ephemeral
}

// Save writes the key to path in hex form
func (id *Identity) Save(path string) error {
	if err := crypto.SaveECDSA(path, id.privateKey); err != nil {
		return fmt.Errorf("failed to save wallet key: %w", err)
	}
	return nil
}
