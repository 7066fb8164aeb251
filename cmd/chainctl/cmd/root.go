// Package cmd contains the chainctl commands
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/langell/chainOverflow/middleware/client"
	"github.com/langell/chainOverflow/pkg/chain/evm"
	"github.com/langell/chainOverflow/pkg/logger"
	"github.com/langell/chainOverflow/pkg/network"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Payment modes of the paying client
const (
	payPreimage = "preimage"
	payChain    = "chain"
)

var (
	keyPath     string
	apiURL      string
	networkName string
	rpcURL      string
	payMode     string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "chainctl",
	Short:         "Ask, answer and manage bounties on a ChainOverflow API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&keyPath, "wallet", "w", "chainctl.ecdsa", "Path to the private key.")
	rootCmd.PersistentFlags().StringVarP(&apiURL, "url", "u", "http://localhost:3001", "Base URL of the API.")
	rootCmd.PersistentFlags().StringVarP(&networkName, "network", "n", string(network.NetworkHardhat), "Network: "+strings.Join(network.Names(), ", ")+".")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "RPC endpoint, defaults to the network's public endpoint.")
	rootCmd.PersistentFlags().StringVar(&payMode, "pay", payChain, "How to settle payment challenges: chain or preimage.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log payment steps.")
}

func newLogger() *zap.SugaredLogger {
	if !verbose {
		return zap.NewNop().Sugar()
	}
	log, err := logger.New("CHAINCTL", "debug", "development")
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log
}

// newProvider dials the configured network with the wallet key as signer
func newProvider(log *zap.SugaredLogger) (*evm.Provider, error) {
	info, err := network.GetNetworkInfo(network.Network(networkName))
	if err != nil {
		return nil, err
	}

	privateKey, err := crypto.LoadECDSA(keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading wallet %s: %w", keyPath, err)
	}

	url := rpcURL
	if url == "" {
		url = info.DefaultRPCURL
	}

	return evm.NewProvider(url, info.BigChainID(), privateKey, evm.WithLogger(log))
}

// newPayingClient returns a client that settles challenges according to
// --pay. The returned func releases the chain connection.
func newPayingClient(log *zap.SugaredLogger) (*client.PayingClient, func(), error) {
	switch payMode {
	case payPreimage:
		return client.NewPayingClient(client.PreimagePayer{}, log), func() {}, nil

	case payChain:
		provider, err := newProvider(log)
		if err != nil {
			return nil, nil, err
		}
		payer := client.NewChainPayer(provider, evmReceiptTimeout)
		return client.NewPayingClient(payer, log), provider.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown payment mode %q", payMode)
	}
}

func endpoint(path string) string {
	return strings.TrimSuffix(apiURL, "/") + path
}
