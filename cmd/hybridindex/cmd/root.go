// Package cmd provides the CLI commands for hybridindex.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
	"github.com/Aman-CERP/hybridindex/internal/logging"
	"github.com/Aman-CERP/hybridindex/internal/profiling"
	"github.com/Aman-CERP/hybridindex/pkg/version"
)

// Global flags
var (
	debugMode   bool
	configPath  string
	projectPath string

	loggingCleanup func()
)

// Profiling flags
var (
	profileOpts profiling.Options
	profiler    *profiling.Session
)

// NewRootCmd creates the root command for the hybridindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hybridindex",
		Short: "Hybrid lexical and semantic code search",
		Long: `hybridindex indexes a project's source files and markdown documents and
answers queries by fusing BM25 keyword scores with vector similarity.

Index once with 'hybridindex index', then search from the command line,
keep the index current with 'hybridindex watch', or expose it to AI
assistants over MCP with 'hybridindex serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("hybridindex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.hybridindex/logs/")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Additional config file applied after the project config")
	cmd.PersistentFlags().StringVarP(&projectPath, "project", "C", "", "Project directory (default: current directory)")

	cmd.PersistentFlags().StringVar(&profileOpts.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.HeapPath, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startRun
	cmd.PersistentPostRunE = stopRun

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startRun starts profiling and debug logging if flags are set.
func startRun(cmd *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profiler = s
	}
	return startLogging(cmd)
}

// startLogging routes slog to the rotating log file when --debug is set.
// The serve command configures its own file logging.
func startLogging(cmd *cobra.Command) error {
	if !debugMode || cmd.Name() == "serve" {
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("Debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

// stopRun writes pending profiles and stops debug logging.
func stopRun(_ *cobra.Command, _ []string) error {
	var err error
	if profiler != nil {
		if stopErr := profiler.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to write profiles: %w", stopErr)
		}
		profiler = nil
	}

	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints a failure on stderr.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, herrors.FormatForCLI(err))
	}
	return err
}
