package network

import (
	"fmt"
	"math/big"
	"sort"
)

// Network represents a supported EVM chain
type Network string

const (
	NetworkHardhat     Network = "hardhat"
	NetworkBaseSepolia Network = "base-sepolia"
	NetworkBase        Network = "base"
)

// ChainID represents an EVM chain ID
type ChainID uint64

const (
	ChainIDHardhat     ChainID = 31337
	ChainIDBaseSepolia ChainID = 84532
	ChainIDBase        ChainID = 8453
)

// NetworkInfo contains metadata about a network
type NetworkInfo struct {
	Network       Network
	ChainID       ChainID
	Name          string
	DefaultRPCURL string
	NativeSymbol  string
	Decimals      int32
}

// BigChainID returns the chain id as a big.Int for signers
func (n NetworkInfo) BigChainID() *big.Int {
	return new(big.Int).SetUint64(uint64(n.ChainID))
}

// NetworkInfoMap maps network names to their information
var NetworkInfoMap = map[Network]NetworkInfo{
	NetworkHardhat: {
		Network:       NetworkHardhat,
		ChainID:       ChainIDHardhat,
		Name:          "Hardhat",
		DefaultRPCURL: "http://127.0.0.1:8545",
		NativeSymbol:  "ETH",
		Decimals:      18,
	},
	NetworkBaseSepolia: {
		Network:       NetworkBaseSepolia,
		ChainID:       ChainIDBaseSepolia,
		Name:          "Base Sepolia",
		DefaultRPCURL: "https://sepolia.base.org",
		NativeSymbol:  "ETH",
		Decimals:      18,
	},
	NetworkBase: {
		Network:       NetworkBase,
		ChainID:       ChainIDBase,
		Name:          "Base",
		DefaultRPCURL: "https://mainnet.base.org",
		NativeSymbol:  "ETH",
		Decimals:      18,
	},
}

// GetNetworkInfo returns information about a network
func GetNetworkInfo(network Network) (NetworkInfo, error) {
	info, ok := NetworkInfoMap[network]
	if !ok {
		return NetworkInfo{}, fmt.Errorf("unknown network: %s", network)
	}
	return info, nil
}

// ForEnvironment picks the local hardhat chain in development and Base
// Sepolia everywhere else.
func ForEnvironment(env string) Network {
	if env == "development" {
		return NetworkHardhat
	}
	return NetworkBaseSepolia
}

// Names lists the supported network names in sorted order
func Names() []string {
	names := make([]string, 0, len(NetworkInfoMap))
	for n := range NetworkInfoMap {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}
