// Package cli implements the agent-forge command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m0nk111/agent-forge-sub002/internal/logging"
)

// Global flag values accessible to all subcommands.
var (
	flagVerbose bool
	flagQuiet   bool
	flagConfig  string
	flagDir     string
	flagJSON    bool
)

// rootCmd is the base command for agent-forge.
var rootCmd = &cobra.Command{
	Use:   "agent-forge",
	Short: "Multi-agent coordination fabric for code-hosting platforms",
	Long: `agent-forge routes repository issues through an intelligence hub:
complexity triage, plan decomposition, dependency-aware task scheduling,
and a review-gated merge workflow for the resulting pull requests.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Env vars back flags not set on the command line.
		if !cmd.Flags().Changed("verbose") && os.Getenv("AGENT_FORGE_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Flags().Changed("quiet") && os.Getenv("AGENT_FORGE_QUIET") != "" {
			flagQuiet = true
		}

		jsonFormat := os.Getenv("AGENT_FORGE_LOG_FORMAT") == "json"
		logging.Setup(flagVerbose, flagQuiet, jsonFormat)

		if flagDir != "" {
			if err := os.Chdir(flagDir); err != nil {
				return fmt.Errorf("changing directory to %s: %w", flagDir, err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (debug) output (env: AGENT_FORGE_VERBOSE)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress all output except errors (env: AGENT_FORGE_QUIET)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to agent-forge.toml config file")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "Override working directory")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Emit structured JSON on stdout")
}

// Execute runs the root command and returns the exit code. Skipped and
// policy-denied outcomes are success; only uncaught errors exit nonzero.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// NewRootCmd returns a fresh instance of the root command for external
// generators (shell completions, man pages). It carries the same persistent
// flags and subcommands as the global tree but binds them to local values so
// generators cannot disturb a running CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           rootCmd.Use,
		Short:         rootCmd.Short,
		Long:          rootCmd.Long,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose (debug) output (env: AGENT_FORGE_VERBOSE)")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors (env: AGENT_FORGE_QUIET)")
	cmd.PersistentFlags().String("config", "", "Path to agent-forge.toml config file")
	cmd.PersistentFlags().String("dir", "", "Override working directory")
	cmd.PersistentFlags().Bool("json", false, "Emit structured JSON on stdout")

	for _, child := range rootCmd.Commands() {
		cmd.AddCommand(child)
	}
	return cmd
}
