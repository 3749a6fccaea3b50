package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m0nk111/agent-forge-sub002/internal/logging"
	"github.com/m0nk111/agent-forge-sub002/internal/triage"
)

var (
	triageTitle  string
	triageBody   string
	triageLabels []string
)

var triageCmd = &cobra.Command{
	Use:   "triage [owner/repo#number]",
	Short: "Score an issue's complexity and show the coordination route",
	Long: `Run complexity triage on an issue, either fetched from the forge by
reference or supplied inline with --title/--body. Prints the score, the
bucket, and the route the coordinator would take.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New("triage")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		title, body, labels := triageTitle, triageBody, triageLabels
		if len(args) == 1 {
			repo, number, err := parseIssueRef(args[0])
			if err != nil {
				return err
			}
			client := newForgeClient(cfg, logging.New("forge"))
			issue, err := client.GetIssue(context.Background(), repo, number)
			if err != nil {
				return err
			}
			title, body, labels = issue.Title, issue.Body, issue.Labels
		} else if title == "" {
			return fmt.Errorf("provide an issue reference or --title")
		}

		rules := triage.NewAnalyzer(cfg.Complexity)
		var analysis triage.Analysis
		if client := newLLMClient(cfg, logging.New("llm")); client != nil {
			analysis = triage.NewLLMAnalyzer(rules, client, logger).
				Analyze(context.Background(), title, body, labels)
		} else {
			analysis = rules.Analyze(title, body, labels)
		}

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		}

		fmt.Printf("complexity: %s (score %d/%d, confidence %.2f)\n",
			analysis.Level, analysis.Score, triage.MaxScore, analysis.Confidence)
		fmt.Printf("route:      %s\n", routeFor(analysis.Level))
		fmt.Printf("reasoning:  %s\n", analysis.Reasoning)
		return nil
	},
}

// routeFor mirrors the gateway's level-to-route mapping for display.
func routeFor(level triage.Level) string {
	switch level {
	case triage.LevelSimple:
		return "DELEGATE_SIMPLE"
	case triage.LevelUncertain:
		return "DELEGATE_WITH_ESCALATION"
	default:
		return "ORCHESTRATE"
	}
}

func init() {
	triageCmd.Flags().StringVar(&triageTitle, "title", "", "Issue title for offline triage")
	triageCmd.Flags().StringVar(&triageBody, "body", "", "Issue body for offline triage")
	triageCmd.Flags().StringSliceVar(&triageLabels, "label", nil, "Issue label for offline triage (repeatable)")
	rootCmd.AddCommand(triageCmd)
}
