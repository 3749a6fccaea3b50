package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/m0nk111/agent-forge-sub002/internal/coordinator"
	"github.com/m0nk111/agent-forge-sub002/internal/logging"
	"github.com/m0nk111/agent-forge-sub002/internal/plan"
	"github.com/m0nk111/agent-forge-sub002/internal/sandbox"
	"github.com/m0nk111/agent-forge-sub002/internal/schedule"
	"github.com/m0nk111/agent-forge-sub002/internal/triage"
	"github.com/m0nk111/agent-forge-sub002/internal/worker"
)

var (
	runPlanDir  string
	runInterval int
	runExec     string
	runWorkdir  string
)

var runCmd = &cobra.Command{
	Use:   "run <owner/repo>",
	Short: "Run the coordinator poll loop until interrupted",
	Long: `Poll the repository for issues assigned to the bot identity, triage
and route each one, and dispatch any scheduled task assignments. Runs until
SIGINT or SIGTERM.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := parseRepoRef(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := logging.New("coordinator")
		client := newForgeClient(cfg, logging.New("forge"))
		llmClient := newLLMClient(cfg, logging.New("llm"))

		rules := triage.NewAnalyzer(cfg.Complexity)
		var triager coordinator.Triager = coordinator.RuleTriager{Rules: rules}
		if llmClient != nil {
			triager = triage.NewLLMAnalyzer(rules, llmClient, logging.New("triage"))
		}

		scheduler := schedule.NewScheduler(logging.New("scheduler"))
		planner := plan.NewPlanner(cfg.Planner, llmClient, logging.New("planner"))

		var store *plan.Store
		if runPlanDir != "" {
			store = plan.NewStore(runPlanDir)
		}
		gateway := coordinator.NewGateway(client, triager, planner, scheduler, store, logger)

		interval := time.Duration(cfg.Monitor.CheckIntervalSeconds) * time.Second
		if runInterval > 0 {
			interval = time.Duration(runInterval) * time.Second
		}
		var runner coordinator.TaskRunner
		if runExec != "" {
			sb := sandbox.NewRunner(cfg.Sandbox, logging.New("sandbox"))
			runner = worker.NewCommandRunner(sb, runExec, runWorkdir, logging.New("worker"))

			// The exec worker handles any task verb, so register it under
			// every implementing role it can serve.
			for _, c := range []schedule.Capability{
				{AgentID: "exec-developer", Role: schedule.RoleDeveloper, MaxConcurrent: cfg.Planner.MaxConcurrentTasks, Available: true},
				{AgentID: "exec-tester", Role: schedule.RoleTester, MaxConcurrent: 1, Available: true},
				{AgentID: "exec-documenter", Role: schedule.RoleDocumenter, MaxConcurrent: 1, Available: true},
			} {
				if err := scheduler.RegisterAgent(c); err != nil {
					return err
				}
			}
		}

		loop := coordinator.NewLoop(coordinator.LoopConfig{
			Repo:          repo,
			BotUser:       cfg.Forge.BotUser,
			Interval:      interval,
			MaxConcurrent: cfg.Planner.MaxConcurrentTasks,
		}, client, gateway, scheduler, runner, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("poll loop starting", "repo", repo.String(), "interval", interval)
		return loop.Run(ctx)
	},
}

func init() {
	runCmd.Flags().StringVar(&runPlanDir, "plan-dir", "", "Directory to persist execution plans in")
	runCmd.Flags().IntVar(&runInterval, "interval", 0, "Poll interval in seconds (overrides config)")
	runCmd.Flags().StringVar(&runExec, "exec", "", "Agent command to run per task assignment (assignment passed via AGENT_FORGE_* env)")
	runCmd.Flags().StringVar(&runWorkdir, "workdir", "", "Working directory for --exec commands (must be sandbox-allowed)")
	rootCmd.AddCommand(runCmd)
}
