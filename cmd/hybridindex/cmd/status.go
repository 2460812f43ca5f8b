package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridindex/internal/async"
	"github.com/Aman-CERP/hybridindex/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var (
		jsonOut bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the project's index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveProject("")
			if err != nil {
				return err
			}
			if err := p.requireIndex(); err != nil {
				return err
			}

			info, err := loadStatus(p)
			if err != nil {
				return err
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
			if jsonOut {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")
	return cmd
}

// loadStatus opens the engine briefly to read persisted stats.
func loadStatus(p *project) (ui.StatusInfo, error) {
	interrupted := async.HasIncompleteLock(p.DataDir)

	e, err := openEngine(p, slog.Default())
	if err != nil {
		return ui.StatusInfo{}, err
	}
	stats := e.indexer.IndexStats(p.ID)
	embedder, dims := e.embedder.ModelName(), e.embedder.Dimensions()
	if err := e.Close(); err != nil {
		return ui.StatusInfo{}, err
	}

	if stats.ProjectID == "" {
		stats.ProjectID = p.ID
		stats.RootPath = p.Root
	}
	lexical, vectors, fileMap := p.dataSizes()
	return ui.StatusInfo{
		Stats:       stats,
		LexicalSize: lexical,
		VectorSize:  vectors,
		FileMapSize: fileMap,
		Backend:     strings.ToLower(p.Config.BM25.Backend),
		Embedder:    embedder,
		Dimensions:  dims,
		Interrupted: interrupted,
	}, nil
}
