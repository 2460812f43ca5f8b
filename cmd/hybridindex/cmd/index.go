package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridindex/internal/async"
	"github.com/Aman-CERP/hybridindex/internal/index"
	"github.com/Aman-CERP/hybridindex/internal/output"
	"github.com/Aman-CERP/hybridindex/internal/ui"
)

type indexOptions struct {
	plain     bool
	noColor   bool
	force     bool
	jsonOut   bool
	workers   int
	excludes  []string
	languages []string
}

func newIndexCmd() *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a project for searching",
		Long: `Index a project so it can be searched.

Every supported source file is parsed into symbols and every markdown
file into sections. Each becomes a document in the BM25 index and the
vector store. Files that disappeared since the last run are removed.

Use --force to drop the project's existing documents first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Disable the interactive progress view")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Clear the project's index before indexing")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the result as JSON")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Parallel workers per file (default: from config)")
	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Additional gitignore-style exclude patterns")
	cmd.Flags().StringSliceVarP(&opts.languages, "language", "l", nil, "Only index these languages")

	return cmd
}

func runIndex(cmd *cobra.Command, path string, opts *indexOptions) error {
	ctx := cmd.Context()

	p, err := resolveProject(path)
	if err != nil {
		return err
	}
	if m, err := async.ReadIncompleteLock(p.DataDir); err == nil && m != nil {
		slog.Warn("previous index run was interrupted",
			slog.String("data_dir", p.DataDir),
			slog.Time("started_at", m.StartedAt),
			slog.Int("pid", m.PID))
	}

	e, err := openEngine(p, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	projectOpts := p.projectOptions()
	projectOpts.ExcludePatterns = append(append([]string(nil), projectOpts.ExcludePatterns...), opts.excludes...)
	if len(opts.languages) > 0 {
		projectOpts.Languages = opts.languages
	}
	if opts.workers > 0 {
		projectOpts.MaxWorkers = &opts.workers
	}

	if opts.force {
		if err := e.indexer.ClearIndex(ctx, p.ID); err != nil {
			return err
		}
	}

	var renderer ui.Renderer
	if !opts.jsonOut {
		renderer = ui.NewRenderer(ui.Config{
			Output:     cmd.OutOrStdout(),
			ProjectDir: p.Root,
			Plain:      opts.plain,
			NoColor:    opts.noColor || ui.DetectNoColor(),
		})
		if err := renderer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start progress display: %w", err)
		}
		e.Subscribe(ui.NewEventSink(renderer).Observe)
	}

	var result *index.ProjectIndexResult
	bg := async.NewBackgroundIndexer(async.IndexerConfig{
		DataDir:   p.DataDir,
		ProjectID: p.ID,
	}, func(ctx context.Context, _ *async.IndexProgress) error {
		res, err := e.indexer.IndexProject(ctx, p.ID, p.Root, projectOpts)
		if err != nil {
			return err
		}
		result = res
		return e.SaveVectors()
	})
	e.Subscribe(bg.Progress().Observe)

	bg.Start(ctx)
	runErr := bg.Wait()

	if renderer != nil {
		if result != nil {
			renderer.Finish(ui.SummaryFromResult(result))
		}
		if err := renderer.Stop(); err != nil {
			slog.Warn("progress display stopped with error", slog.String("error", err.Error()))
		}
	}
	if runErr != nil {
		return runErr
	}

	if opts.jsonOut {
		return output.New(cmd.OutOrStdout()).JSON(result)
	}
	return nil
}
