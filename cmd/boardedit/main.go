package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"boardedit/internal/config"
	"boardedit/internal/journal"
	"boardedit/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	workspace  string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "boardedit",
	Short: "Loss-less editing of KiCad board files",
	Long: `boardedit edits KiCad S-expression files without disturbing anything it
was not asked to change: comments, spacing and unknown forms survive.

Edits run inside a session: operations apply to a working copy, can be
undone, and reach disk only on commit, which replaces the file atomically.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [file...]",
	Short: "Verify that files parse and print back byte for byte",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

var summaryCmd = &cobra.Command{
	Use:   "summary [file]",
	Short: "Show a board overview and its unrouted nets",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

var opsCmd = &cobra.Command{
	Use:   "ops [operation]",
	Short: "List the operation catalog or describe one operation",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOps,
}

var applyCmd = &cobra.Command{
	Use:   "apply [file] [script.yaml]",
	Short: "Apply an operation script to a file in one session",
	Long: `Runs every step of a yaml script in a single session and commits it.
Any failing step rolls the whole session back; the file is left untouched.

Example script:
  description: move the sense resistor
  steps:
    - op: move_component
      args: {reference: R1, x: 12.5, y: 20}
    - op: create_net
      args: {name: SENSE}`,
	Args: cobra.ExactArgs(2),
	RunE: runApply,
}

var historyCmd = &cobra.Command{
	Use:   "history [file]",
	Short: "Show committed sessions from the journal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var watchCmd = &cobra.Command{
	Use:   "watch [file]",
	Short: "Print a summary every time the file changes on disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var (
	dryRun       bool
	historyLimit int
	checkJobs    int
	debounce     time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: .boardedit/config.yaml in the workspace)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the diff without writing")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of commits to show")
	checkCmd.Flags().IntVarP(&checkJobs, "jobs", "j", 0, "Files checked in parallel (default: number of CPUs)")
	watchCmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "Quiet period before re-reading the file")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(opsCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

// setup loads the config and installs the process logger.
func setup() error {
	path := configPath
	if path == "" {
		path = filepath.Join(workspaceDir(), config.DefaultDir, "config.yaml")
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if verbose {
		loaded.Logging.Level = "debug"
	}
	if err := logging.Configure(loaded.Logging.Options()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	cfg = loaded
	logging.BootDebug("config loaded from %s", path)
	return nil
}

func workspaceDir() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// currentConfig returns the loaded config, or defaults when a command runs
// without the root's pre-run hook.
func currentConfig() *config.Config {
	if cfg == nil {
		return config.DefaultConfig()
	}
	return cfg
}

// openJournal opens the configured journal, or returns nil when it is
// disabled. Relative paths are taken from the workspace.
func openJournal() (*journal.Journal, error) {
	c := currentConfig()
	if !c.Journal.Enabled {
		return nil, nil
	}
	path := c.Journal.Path
	if path != ":memory:" && !filepath.IsAbs(path) {
		path = filepath.Join(workspaceDir(), path)
	}
	return journal.Open(path)
}
