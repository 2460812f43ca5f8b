// Package watcher reports file changes under a project root as debounced
// batches of add, change and unlink events.
//
// FSWatcher uses fsnotify and falls back to polling where fsnotify cannot be
// created (network mounts, some container volumes). Bridge turns batches into
// index updates:
//
//	w, err := watcher.NewFSWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx, root)
//	bridge := watcher.NewBridge(queue, indexer, filter, watcher.BridgeConfig{ProjectID: id, RootPath: root})
//	bridge.Run(ctx, w.Events())
package watcher
