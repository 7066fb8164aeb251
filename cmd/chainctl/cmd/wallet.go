package cmd

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/langell/chainOverflow/pkg/wallet"
	"github.com/spf13/cobra"
)

var overwrite bool

// walletCmd groups the key management commands
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the local wallet key",
}

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(keyPath); err == nil && !overwrite {
			return fmt.Errorf("%s already exists, pass --force to replace it", keyPath)
		}

		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return err
		}

		id := wallet.FromKey(privateKey)
		if err := id.Save(keyPath); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), id.Address().Hex())
		return nil
	},
}

// addressCmd represents the address command
var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print address for the specific wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := crypto.LoadECDSA(keyPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), wallet.FromKey(privateKey).Address().Hex())
		return nil
	},
}

func init() {
	generateCmd.Flags().BoolVarP(&overwrite, "force", "f", false, "Replace an existing key file.")

	walletCmd.AddCommand(generateCmd, addressCmd)
	rootCmd.AddCommand(walletCmd)
}
