package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridindex/internal/embed"
	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
	"github.com/Aman-CERP/hybridindex/internal/output"
	"github.com/Aman-CERP/hybridindex/internal/search"
)

type searchOptions struct {
	limit       int
	alpha       float64
	languages   []string
	fileTypes   []string
	symbolTypes []string
	path        string
	format      string
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the project index",
		Long: `Search the project index with hybrid ranking.

Each result's score is alpha times its normalized BM25 score plus
(1 - alpha) times its normalized vector similarity. Use --alpha 1 for
keyword-only ranking and --alpha 0 for semantic-only ranking.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default: search.top_k)")
	cmd.Flags().Float64VarP(&opts.alpha, "alpha", "a", -1, "Lexical weight in [0,1] (default: search.alpha)")
	cmd.Flags().StringSliceVarP(&opts.languages, "language", "l", nil, "Only these languages")
	cmd.Flags().StringSliceVarP(&opts.fileTypes, "type", "t", nil, "Only these file extensions without the dot (e.g. go, md)")
	cmd.Flags().StringSliceVarP(&opts.symbolTypes, "symbol", "s", nil, "Only these symbol types (function, class, ...)")
	cmd.Flags().StringVarP(&opts.path, "path", "p", "", "Only file paths containing this text")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts *searchOptions) error {
	ctx := cmd.Context()

	if opts.format != "text" && opts.format != "json" {
		return herrors.ValidationError(fmt.Sprintf("unknown format %q", opts.format), nil).
			WithSuggestion("Use --format text or --format json")
	}

	p, err := resolveProject("")
	if err != nil {
		return err
	}
	if err := p.requireIndex(); err != nil {
		return err
	}

	e, err := openEngine(p, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if opts.alpha >= 0 {
		if err := e.fusion.SetAlpha(opts.alpha); err != nil {
			return err
		}
	}
	limit := opts.limit
	if limit <= 0 {
		limit = p.Config.Search.TopK
	}

	vec, err := embed.EmbedQuery(ctx, e.embedder, query)
	if err != nil {
		return herrors.New(herrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	results, err := e.fusion.Search(ctx, e.indexer.Collection(), query, vec, limit, &search.Filter{
		Languages:   opts.languages,
		FileTypes:   opts.fileTypes,
		SymbolTypes: opts.symbolTypes,
		PathPattern: opts.path,
		ProjectID:   p.ID,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(results)
	}
	out.SearchResults(query, results)
	return nil
}
