package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/assistant"
)

var askCmd = &cobra.Command{
	Use:     "ask <question>...",
	GroupID: "tasks",
	Short:   "Ask a question about the board",
	Long: `Ask Claude about the current board. The task list, with user and
workspace names resolved, is sent along with the question.

Requires ANTHROPIC_API_KEY. The model is set by assistant.model.

Example usage:
  tb ask what is overdue and who owns it
  tb ask "summarize this week's progress for Grace"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			fmt.Fprintf(os.Stderr, "Error: ANTHROPIC_API_KEY is not set\n")
			os.Exit(1)
		}

		ctx, cancel := requestContext()
		defer cancel()
		db := openBackend(ctx)
		defer db.Close()
		snap := readStore(ctx, db).Snapshot()

		a := assistant.New(nil, &assistant.Config{
			Model:     cfg.Assistant.Model,
			MaxTokens: cfg.Assistant.MaxTokens,
			Logger:    newLogger("assistant"),
		})
		answer, err := a.Ask(ctx, strings.Join(args, " "), snap)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(answer)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
