package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Method is a parsed function signature
type Method struct {
	Name      string
	Arguments abi.Arguments
	Selector  []byte
}

// ParseSignature parses a canonical function signature such as
// "releaseBounty(string,address)". Tuple arguments are not supported.
func ParseSignature(signature string) (Method, error) {
	signature = strings.ReplaceAll(signature, " ", "")

	open := strings.IndexByte(signature, '(')
	if open <= 0 || !strings.HasSuffix(signature, ")") {
		return Method{}, fmt.Errorf("invalid function signature %q", signature)
	}

	name := signature[:open]
	inner := signature[open+1 : len(signature)-1]

	var args abi.Arguments
	if inner != "" {
		for _, typeName := range strings.Split(inner, ",") {
			typ, err := abi.NewType(typeName, "", nil)
			if err != nil {
				return Method{}, fmt.Errorf("invalid argument type %q: %w", typeName, err)
			}
			args = append(args, abi.Argument{Type: typ})
		}
	}

	return Method{
		Name:      name,
		Arguments: args,
		Selector:  crypto.Keccak256([]byte(signature))[:4],
	}, nil
}

// EncodeCall returns the calldata for signature applied to args
func EncodeCall(signature string, args ...any) ([]byte, error) {
	method, err := ParseSignature(signature)
	if err != nil {
		return nil, err
	}

	packed, err := method.Arguments.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s arguments: %w", method.Name, err)
	}

	return append(append([]byte{}, method.Selector...), packed...), nil
}

// ParseTxHash parses a 0x prefixed 32 byte transaction hash
func ParseTxHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid transaction hash: %w", err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash length %d", len(b))
	}
	return common.BytesToHash(b), nil
}
