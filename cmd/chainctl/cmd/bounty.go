package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/langell/chainOverflow/pkg/bounty"
	"github.com/spf13/cobra"
)

var (
	bountyQuestion int64
	bountyWinner   string
	bountyVault    string
)

// bountyCmd groups the bounty commands
var bountyCmd = &cobra.Command{
	Use:   "bounty",
	Short: "Manage question bounties held by the vault",
}

// releaseCmd represents the bounty release command
var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release a question's bounty to the winning answerer",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(bountyWinner) {
			return fmt.Errorf("invalid winner address %q", bountyWinner)
		}

		var vault *common.Address
		if bountyVault != "" {
			if !common.IsHexAddress(bountyVault) {
				return fmt.Errorf("invalid vault address %q", bountyVault)
			}
			addr := common.HexToAddress(bountyVault)
			vault = &addr
		}

		log := newLogger()
		defer log.Sync()

		provider, err := newProvider(log)
		if err != nil {
			return err
		}
		defer provider.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), evmReceiptTimeout)
		defer cancel()

		r := bounty.NewReleaser(provider, vault, evmReceiptTimeout, log)
		hash, err := r.Release(ctx, bountyQuestion, common.HexToAddress(bountyWinner))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "bounty for question %d released in %s\n", bountyQuestion, hash.Hex())
		return nil
	},
}

func init() {
	releaseCmd.Flags().Int64VarP(&bountyQuestion, "question", "q", 0, "Id of the question.")
	releaseCmd.Flags().StringVar(&bountyWinner, "winner", "", "Address receiving the bounty.")
	releaseCmd.Flags().StringVar(&bountyVault, "vault", "", "Vault contract address.")
	releaseCmd.MarkFlagRequired("question")
	releaseCmd.MarkFlagRequired("winner")

	bountyCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(bountyCmd)
}
