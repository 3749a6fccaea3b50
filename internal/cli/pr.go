package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m0nk111/agent-forge-sub002/internal/logging"
	"github.com/m0nk111/agent-forge-sub002/internal/review"
	"github.com/m0nk111/agent-forge-sub002/internal/sandbox"
)

var prWorkdir string

var prCmd = &cobra.Command{
	Use:   "pr <owner/repo#number>",
	Short: "Run the review and merge workflow on one pull request",
	Long: `Drive a pull request through the full workflow: conflict check,
static (and optionally LLM) review, labeling, reviewer assignment, and the
conditional merge. Skipped outcomes (lock contention, self-review) exit 0.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, number, err := parseIssueRef(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := newForgeClient(cfg, logging.New("forge"))

		var tests review.TestRunner
		if prWorkdir != "" {
			tests = sandbox.NewRunner(cfg.Sandbox, logging.New("sandbox"))
		}
		engine := review.NewEngine(cfg.Review, newLLMClient(cfg, logging.New("llm")), tests, prWorkdir, logging.New("review"))
		workflow := review.NewWorkflow(cfg.Forge, cfg.Review, client, engine, review.NewLockSet(), logging.New("review"))

		out, err := workflow.Run(context.Background(), repo, number)
		if err != nil {
			return err
		}

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		if out.Skipped {
			fmt.Printf("skipped: %s\n", out.Reason)
			return nil
		}
		fmt.Printf("state:          %s\n", out.State)
		fmt.Printf("recommendation: %s (%s)\n", out.Decision.Recommendation, out.Decision.Reason)
		fmt.Printf("issues:         %d critical, %d warning\n",
			out.Decision.CriticalCount, out.Decision.WarningCount)
		return nil
	},
}

func init() {
	prCmd.Flags().StringVar(&prWorkdir, "workdir", "", "Local checkout to run the test suite in")
	rootCmd.AddCommand(prCmd)
}
