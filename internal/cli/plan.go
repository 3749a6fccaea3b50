package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m0nk111/agent-forge-sub002/internal/forge"
	"github.com/m0nk111/agent-forge-sub002/internal/logging"
	"github.com/m0nk111/agent-forge-sub002/internal/plan"
)

var (
	planTitle  string
	planBody   string
	planLabels []string
	planOut    string
)

var planCmd = &cobra.Command{
	Use:   "plan [owner/repo#number]",
	Short: "Decompose an issue into an execution plan",
	Long: `Build an execution plan for an issue: sub-tasks with priorities,
effort estimates, and dependencies. With an LLM configured the decomposition
is model-assisted; otherwise the standard skeleton is produced. --out saves
the plan as JSON for later scheduling.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		issue := &forge.Issue{Title: planTitle, Body: planBody, Labels: planLabels}
		if len(args) == 1 {
			repo, number, err := parseIssueRef(args[0])
			if err != nil {
				return err
			}
			client := newForgeClient(cfg, logging.New("forge"))
			issue, err = client.GetIssue(context.Background(), repo, number)
			if err != nil {
				return err
			}
		} else if planTitle == "" {
			return fmt.Errorf("provide an issue reference or --title")
		}

		planner := plan.NewPlanner(cfg.Planner, newLLMClient(cfg, logging.New("llm")), logging.New("planner"))
		p, err := planner.Plan(context.Background(), issue)
		if err != nil {
			return err
		}

		if planOut != "" {
			if err := plan.NewStore(planOut).Save(p); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "plan %s saved to %s\n", p.PlanID, planOut)
		}

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		}

		fmt.Printf("plan %s (priority %d, roles %v)\n", p.PlanID, p.PlanPriority, p.RequiredRoles)
		for _, t := range p.Tasks {
			deps := ""
			if len(t.DependsOn) > 0 {
				deps = fmt.Sprintf(" after %v", t.DependsOn)
			}
			fmt.Printf("  %s  p%d  %3dm  %s%s\n", t.ID, t.Priority, t.EstimatedEffort, t.Title, deps)
		}
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planTitle, "title", "", "Issue title for offline planning")
	planCmd.Flags().StringVar(&planBody, "body", "", "Issue body for offline planning")
	planCmd.Flags().StringSliceVar(&planLabels, "label", nil, "Issue label for offline planning (repeatable)")
	planCmd.Flags().StringVar(&planOut, "out", "", "Directory to save the plan JSON into")
	rootCmd.AddCommand(planCmd)
}
