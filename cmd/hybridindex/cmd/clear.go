package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridindex/internal/output"
)

func newClearCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the project's documents from the index",
		Long: `Remove every document of the current project from the index.

With --all the lexical index, the vector collection and the file map are
emptied for every project sharing the data directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			p, err := resolveProject("")
			if err != nil {
				return err
			}
			if !p.hasIndex() {
				out.Status("", "Nothing to clear")
				return nil
			}

			e, err := openEngine(p, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			if all {
				err = e.indexer.ClearAllIndexes(ctx)
			} else {
				err = e.indexer.ClearIndex(ctx, p.ID)
			}
			if err != nil {
				return err
			}
			if err := e.SaveVectors(); err != nil {
				return err
			}

			if all {
				out.Success("Cleared all indexes")
			} else {
				out.Successf("Cleared index for %s", p.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Clear every project in the data directory")
	return cmd
}
