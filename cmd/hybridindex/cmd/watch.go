package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridindex/internal/async"
	"github.com/Aman-CERP/hybridindex/internal/config"
	"github.com/Aman-CERP/hybridindex/internal/output"
	"github.com/Aman-CERP/hybridindex/internal/watcher"
)

// vectorSaveInterval is how often a watch session persists the vector
// store while updates arrive.
const vectorSaveInterval = 30 * time.Second

func newWatchCmd() *cobra.Command {
	var noInitial bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index current as files change",
		Long: `Watch the project and keep its index current.

Added, changed and deleted files are queued and handled one at a time;
a queued file that no longer exists is removed from the index. A change to .gitignore or the project
config re-runs a full index so newly excluded files disappear.

Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, noInitial)
		},
	}

	cmd.Flags().BoolVar(&noInitial, "no-initial", false, "Skip the initial full index")
	return cmd
}

func runWatch(cmd *cobra.Command, noInitial bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	p, err := resolveProject("")
	if err != nil {
		return err
	}
	e, err := openEngine(p, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if !noInitial {
		out.Status("", "Indexing "+p.Root)
		res, err := e.indexer.IndexProject(ctx, p.ID, p.Root, p.projectOptions())
		if err != nil {
			return err
		}
		if err := e.SaveVectors(); err != nil {
			return err
		}
		out.Successf("Indexed %d files (%d failed, %d removed)", res.IndexedFiles, res.FailedFiles, res.RemovedFiles)
	}

	session, err := startWatchSession(ctx, e)
	if err != nil {
		return err
	}
	out.Statusf("👀", "Watching %s (%s). Press Ctrl+C to stop.", p.Root, session.watcher.WatcherType())

	<-ctx.Done()
	session.Stop()

	stats := session.queue.Stats()
	out.Newline()
	out.Successf("Stopped. %d updates processed, %d failed", stats.ProcessedCount, stats.FailedCount)
	return nil
}

// watchSession connects a file watcher to the update queue and the
// indexer of one engine.
type watchSession struct {
	engine  *engine
	watcher *watcher.FSWatcher
	queue   *async.UpdateQueue
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// startWatchSession starts watching e's project root. Stop ends it and
// saves the vector store.
func startWatchSession(parent context.Context, e *engine) (*watchSession, error) {
	cfg := e.Config

	w, err := watcher.NewFSWatcher(watcher.Options{
		DebounceWindow: cfg.Watcher.DebounceWindow,
		IgnorePatterns: watchIgnorePatterns(e.project),
		ConfigFiles:    []string{config.ProjectConfigFile, config.ProjectConfigFileAlt},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	s := &watchSession{
		engine:  e,
		watcher: w,
		queue: async.NewUpdateQueue(e.indexer, async.QueueOptions{
			ProcessingInterval: cfg.Queue.ProcessingInterval,
			Logger:             e.logger,
		}),
		cancel: cancel,
	}

	bridge := watcher.NewBridge(s.queue, e.indexer, e.scanner.NewFilter(e.Root, e.scanOptions()),
		watcher.BridgeConfig{
			ProjectID:   e.ID,
			RootPath:    e.Root,
			OnReconcile: s.reconcile,
			Logger:      e.logger,
		})

	s.queue.Start(ctx)

	s.wg.Add(4)
	go func() {
		defer s.wg.Done()
		if err := w.Start(ctx, e.Root); err != nil && ctx.Err() == nil {
			e.logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		defer s.wg.Done()
		bridge.Run(ctx, w.Events())
	}()
	go func() {
		defer s.wg.Done()
		for err := range w.Errors() {
			e.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}()
	go func() {
		defer s.wg.Done()
		s.saveLoop(ctx)
	}()

	return s, nil
}

// reconcile re-indexes the whole project after an ignore rule or config
// change.
func (s *watchSession) reconcile(ctx context.Context) error {
	e := s.engine
	e.scanner.InvalidateGitignoreCache()
	res, err := e.indexer.IndexProject(ctx, e.ID, e.Root, e.projectOptions())
	if err != nil {
		return err
	}
	e.logger.Info("reconciled index",
		slog.Int("indexed_files", res.IndexedFiles),
		slog.Int("removed_files", res.RemovedFiles))
	return e.SaveVectors()
}

func (s *watchSession) saveLoop(ctx context.Context) {
	ticker := time.NewTicker(vectorSaveInterval)
	defer ticker.Stop()

	last := s.queue.Stats().ProcessedCount
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.queue.Stats().ProcessedCount
			if n == last {
				continue
			}
			last = n
			if err := s.engine.SaveVectors(); err != nil {
				s.engine.logger.Warn("periodic vector save failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop ends the session, drains its goroutines and saves the vector store.
func (s *watchSession) Stop() {
	s.cancel()
	s.queue.Stop()
	_ = s.watcher.Stop()
	s.wg.Wait()

	if err := s.engine.SaveVectors(); err != nil {
		s.engine.logger.Warn("vector save on stop failed", slog.String("error", err.Error()))
	}
}

// watchIgnorePatterns adds a data dir inside the root to the configured
// excludes.
func watchIgnorePatterns(p *project) []string {
	patterns := append([]string(nil), p.Config.Indexer.ExcludePatterns...)
	rel, err := filepath.Rel(p.Root, p.DataDir)
	if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		patterns = append(patterns, filepath.ToSlash(rel)+"/")
	}
	return patterns
}
