package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/hybridindex/internal/async"
	"github.com/Aman-CERP/hybridindex/internal/embed"
	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
	"github.com/Aman-CERP/hybridindex/internal/index"
	"github.com/Aman-CERP/hybridindex/internal/logging"
	"github.com/Aman-CERP/hybridindex/internal/search"
	"github.com/Aman-CERP/hybridindex/pkg/version"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Searcher ranks documents for a query. *search.RankFusion implements it.
type Searcher interface {
	Search(ctx context.Context, collection, query string, queryVector []float32, topK int, filter *search.Filter) ([]*search.HybridResult, error)
}

// ProjectIndexer is the part of *index.Indexer the server drives.
type ProjectIndexer interface {
	IndexProject(ctx context.Context, projectID, rootPath string, opts index.ProjectOptions) (*index.ProjectIndexResult, error)
	IndexStats(projectID string) index.IndexStats
	IndexedFiles(projectID string) ([]string, error)
	Collection() string
}

// QueueReporter exposes update queue counters. *async.UpdateQueue
// implements it.
type QueueReporter interface {
	Stats() async.QueueStats
}

// Dependencies wires a Server. Queue may be nil when no watcher runs.
type Dependencies struct {
	Searcher Searcher
	Embedder embed.Embedder
	Indexer  ProjectIndexer
	Queue    QueueReporter
}

// Config identifies the served project.
type Config struct {
	ProjectID string
	RootPath  string

	// DataDir receives the incomplete-run marker of background indexing.
	DataDir string

	ProjectOptions index.ProjectOptions

	// OnIndexed runs after each successful background index, typically
	// to persist the vector store.
	OnIndexed func(*index.ProjectIndexResult) error

	Logger *slog.Logger
}

// Server is the MCP server. It answers tool calls for one project.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	embedder embed.Embedder
	indexer  ProjectIndexer
	queue    QueueReporter
	cfg      Config
	logger   *slog.Logger

	mu         sync.RWMutex
	background *async.BackgroundIndexer
}

// NewServer creates a server and registers its tools.
func NewServer(deps Dependencies, cfg Config) (*Server, error) {
	if deps.Searcher == nil || deps.Embedder == nil || deps.Indexer == nil {
		return nil, herrors.New(herrors.ErrCodeInvalidInput,
			"mcp server requires a searcher, embedder and indexer", nil)
	}
	if cfg.ProjectID == "" || cfg.RootPath == "" {
		return nil, herrors.ValidationError("project id and root path are required", nil)
	}

	s := &Server{
		searcher: deps.Searcher,
		embedder: deps.Embedder,
		indexer:  deps.Indexer,
		queue:    deps.Queue,
		cfg:      cfg,
		logger:   logging.OrDefault(cfg.Logger),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "hybridindex",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Observe forwards indexer events to the running background index, if
// any. Wire it as the indexer's event hook.
func (s *Server) Observe(e index.Event) {
	s.mu.RLock()
	bg := s.background
	s.mu.RUnlock()

	if bg != nil {
		bg.Progress().Observe(e)
	}
}

// progress returns the latest background run's progress, or nil.
func (s *Server) progress() *async.IndexProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.background == nil {
		return nil
	}
	return s.background.Progress()
}

// Search runs a hybrid search restricted to the served project.
func (s *Server) Search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	start := time.Now()
	requestID := generateRequestID()
	limit := clampLimit(in.Limit, defaultLimit, 1, maxLimit)

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.Int("limit", limit))

	queryVector, err := embed.EmbedQuery(ctx, s.embedder, in.Query)
	if err != nil {
		s.logger.Error("query embedding failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(herrors.New(herrors.ErrCodeEmbeddingFailed, "failed to embed query", err))
	}

	filter := &search.Filter{
		Languages:   in.Languages,
		FileTypes:   in.FileTypes,
		SymbolTypes: in.SymbolTypes,
		PathPattern: in.Path,
		ProjectID:   s.cfg.ProjectID,
	}
	results, err := s.searcher.Search(ctx, s.indexer.Collection(), in.Query, queryVector, limit, filter)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	out := &SearchOutput{
		Query:   in.Query,
		Results: make([]SearchResultOutput, 0, len(results)),
	}
	for _, r := range results {
		res := ToSearchResultOutput(r)
		res.Snippet = readSnippet(res.FilePath, res.LineStart, res.LineEnd)
		out.Results = append(out.Results, res)
	}
	if p := s.progress(); p != nil && p.IsIndexing() {
		out.Indexing = true
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(out.Results)))
	return out, nil
}

// IndexProject starts a background index of the project. A run already in
// progress is reported instead of starting another. With Wait set it
// returns after the run finishes or ctx ends.
func (s *Server) IndexProject(ctx context.Context, in IndexProjectInput) (*IndexProjectOutput, error) {
	s.mu.Lock()
	if s.background != nil && s.background.IsRunning() {
		bg := s.background
		s.mu.Unlock()
		return &IndexProjectOutput{
			Started:  false,
			Message:  "indexing already in progress",
			Progress: bg.Progress().Snapshot(),
		}, nil
	}

	bg := async.NewBackgroundIndexer(async.IndexerConfig{
		DataDir:   s.cfg.DataDir,
		ProjectID: s.cfg.ProjectID,
	}, s.runIndex)
	s.background = bg
	s.mu.Unlock()

	// The run outlives the tool call.
	bg.Start(context.WithoutCancel(ctx))

	out := &IndexProjectOutput{Started: true, Message: "indexing started"}
	if in.Wait {
		done := make(chan error, 1)
		go func() { done <- bg.Wait() }()

		select {
		case err := <-done:
			if err != nil {
				return nil, MapError(err)
			}
			out.Message = "indexing complete"
		case <-ctx.Done():
			return nil, MapError(ctx.Err())
		}
	}
	out.Progress = bg.Progress().Snapshot()
	return out, nil
}

func (s *Server) runIndex(ctx context.Context, _ *async.IndexProgress) error {
	res, err := s.indexer.IndexProject(ctx, s.cfg.ProjectID, s.cfg.RootPath, s.cfg.ProjectOptions)
	if err != nil {
		return err
	}
	s.logger.Info("background index complete",
		slog.String("project_id", s.cfg.ProjectID),
		slog.Int("indexed_files", res.IndexedFiles),
		slog.Int("failed_files", res.FailedFiles),
		slog.Int("removed_files", res.RemovedFiles),
		slog.Duration("duration", res.Duration))
	if s.cfg.OnIndexed != nil {
		return s.cfg.OnIndexed(res)
	}
	return nil
}

// IndexStatus reports the project's index, the embedder, and the
// background run if one was started.
func (s *Server) IndexStatus(_ context.Context) (*IndexStatusOutput, error) {
	stats := s.indexer.IndexStats(s.cfg.ProjectID)

	out := &IndexStatusOutput{
		Project: DetectProject(s.cfg.ProjectID, s.cfg.RootPath),
		Stats: IndexStats{
			Status:       string(stats.Status),
			FileCount:    stats.TotalFiles,
			SymbolCount:  stats.TotalSymbols,
			VectorCount:  stats.TotalVectors,
			ErrorMessage: stats.Error,
		},
		Embeddings: EmbeddingInfo{
			Model:      s.embedder.ModelName(),
			Dimensions: s.embedder.Dimensions(),
		},
	}
	if out.Stats.Status == "" {
		out.Stats.Status = "not_indexed"
	}
	if !stats.LastIndexed.IsZero() {
		out.Stats.LastIndexed = stats.LastIndexed.Format(time.RFC3339)
	}
	if p := s.progress(); p != nil {
		snap := p.Snapshot()
		out.Indexing = &snap
	}
	return out, nil
}

// QueueStatus reports the update queue counters.
func (s *Server) QueueStatus() *QueueStatusOutput {
	if s.queue == nil {
		return &QueueStatusOutput{}
	}
	return &QueueStatusOutput{Enabled: true, Stats: s.queue.Stats()}
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearch:
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.Search(ctx, in)
	case ToolIndexProject:
		var in IndexProjectInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.IndexProject(ctx, in)
	case ToolIndexStatus:
		return s.IndexStatus(ctx)
	case ToolQueueStatus:
		return s.QueueStatus(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, v any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolSearch,
		Description: "Hybrid search over the project index. Combines BM25 keyword ranking with vector " +
			"similarity. Filter by language, file type, symbol type or path.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexProject,
		Description: "Index or re-index the project in the background. Files removed since the last run are dropped from the index.",
	}, s.mcpIndexProjectHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStatus,
		Description: "Report index statistics, the active embedder and background indexing progress.",
	}, s.mcpIndexStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolQueueStatus,
		Description: "Report the incremental update queue: pending files, processed and failed counts.",
	}, s.mcpQueueStatusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 4))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (
	*mcp.CallToolResult,
	*SearchOutput,
	error,
) {
	out, err := s.Search(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	text := FormatSearchResults(in.Query, out.Results)
	if out.Indexing {
		text = "_Indexing in progress; results may be incomplete._\n\n" + text
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

func (s *Server) mcpIndexProjectHandler(ctx context.Context, _ *mcp.CallToolRequest, in IndexProjectInput) (
	*mcp.CallToolResult,
	*IndexProjectOutput,
	error,
) {
	out, err := s.IndexProject(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.IndexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpQueueStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ QueueStatusInput) (
	*mcp.CallToolResult,
	*QueueStatusOutput,
	error,
) {
	return nil, s.QueueStatus(), nil
}

// Serve runs the server on the given transport until ctx ends.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch strings.ToLower(transport) {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && ctx.Err() == nil {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return herrors.ValidationError(fmt.Sprintf("unknown transport: %s", transport), nil).
			WithSuggestion("supported transports: stdio")
	}
}

// Close stops a running background index.
func (s *Server) Close() error {
	s.mu.RLock()
	bg := s.background
	s.mu.RUnlock()

	if bg != nil {
		bg.Stop()
	}
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
