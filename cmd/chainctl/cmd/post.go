package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/langell/chainOverflow/pkg/types"
	"github.com/spf13/cobra"
)

// evmReceiptTimeout bounds the wait for a payment to be mined
const evmReceiptTimeout = 2 * time.Minute

var (
	question types.NewQuestion
	answer   types.NewAnswer
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Post a question, paying for it if required",
	RunE: func(cmd *cobra.Command, args []string) error {
		return post(cmd, "/api/questions", question)
	},
}

// answerCmd represents the answer command
var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Post an answer, paying for it if required",
	RunE: func(cmd *cobra.Command, args []string) error {
		return post(cmd, "/api/answers", answer)
	},
}

func post(cmd *cobra.Command, path string, body any) error {
	log := newLogger()
	defer log.Sync()

	pc, closeFn, err := newPayingClient(log)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), evmReceiptTimeout+time.Minute)
	defer cancel()

	resp, err := pc.PostJSON(ctx, endpoint(path), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s: %s", resp.Status, data)
	}

	var created struct {
		ID       int64  `json:"id"`
		Message  string `json:"message"`
		IPFSHash string `json:"ipfsHash"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d, ipfs %s)\n", created.Message, created.ID, created.IPFSHash)
	return nil
}

func init() {
	askCmd.Flags().StringVarP(&question.Title, "title", "t", "", "Question title.")
	askCmd.Flags().StringVarP(&question.Content, "content", "c", "", "Question body.")
	askCmd.Flags().StringVar(&question.Tags, "tags", "", "Comma separated tags.")
	askCmd.Flags().StringVarP(&question.Author, "author", "a", "", "Author name.")
	askCmd.Flags().StringVarP(&question.Bounty, "bounty", "b", "", "Bounty offered.")
	askCmd.MarkFlagRequired("title")
	askCmd.MarkFlagRequired("content")

	answerCmd.Flags().Int64VarP(&answer.QuestionID, "question", "q", 0, "Id of the question answered.")
	answerCmd.Flags().StringVarP(&answer.Content, "content", "c", "", "Answer body.")
	answerCmd.Flags().StringVarP(&answer.Author, "author", "a", "", "Author name.")
	answerCmd.MarkFlagRequired("question")
	answerCmd.MarkFlagRequired("content")

	rootCmd.AddCommand(askCmd, answerCmd)
}
