package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridindex/internal/index"
	"github.com/Aman-CERP/hybridindex/internal/logging"
	"github.com/Aman-CERP/hybridindex/internal/mcp"
)

type serveOptions struct {
	transport string
	watch     bool
	noWatch   bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to AI assistants over MCP",
		Long: `Start an MCP server for the project on stdin/stdout.

Tools: search, index_project, index_status and queue_status. Every
indexed file is also exposed as a file:// resource.

Stdout carries only protocol messages; logs go to
~/.hybridindex/logs/hybridindex.log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport (stdio)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Watch files and keep the index current (default: watcher.enabled)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch files")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	ctx := cmd.Context()

	p, err := resolveProject("")
	if err != nil {
		return err
	}

	level := p.Config.Logging.Level
	if debugMode {
		level = "debug"
	}
	logCfg := logging.ServeConfig(level)
	if p.Config.Logging.MaxSizeMB > 0 {
		logCfg.MaxSizeMB = p.Config.Logging.MaxSizeMB
	}
	if p.Config.Logging.MaxFiles > 0 {
		logCfg.MaxFiles = p.Config.Logging.MaxFiles
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	e, err := openEngine(p, logger)
	if err != nil {
		logger.Error("failed to open index", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = e.Close() }()

	watch := p.Config.Watcher.Enabled
	if opts.watch {
		watch = true
	}
	if opts.noWatch {
		watch = false
	}

	deps := mcp.Dependencies{
		Searcher: e.fusion,
		Embedder: e.embedder,
		Indexer:  e.indexer,
	}
	var session *watchSession
	if watch {
		session, err = startWatchSession(ctx, e)
		if err != nil {
			return err
		}
		defer session.Stop()
		deps.Queue = session.queue
	}

	server, err := mcp.NewServer(deps, mcp.Config{
		ProjectID:      p.ID,
		RootPath:       p.Root,
		DataDir:        p.DataDir,
		ProjectOptions: p.projectOptions(),
		OnIndexed: func(*index.ProjectIndexResult) error {
			return e.SaveVectors()
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = server.Close() }()
	e.Subscribe(server.Observe)

	n, err := server.RegisterResources(ctx)
	if err != nil {
		logger.Warn("failed to register file resources", slog.String("error", err.Error()))
	}
	logger.Info("serving project",
		slog.String("project_id", p.ID),
		slog.String("root", p.Root),
		slog.Int("resources", n),
		slog.Bool("watch", watch))

	return server.Serve(ctx, opts.transport)
}
