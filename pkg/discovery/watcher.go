package discovery

import (
	"context"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentdeck/pkg/logger"
	"github.com/jingkaihe/agentdeck/pkg/metacache"
)

// pathState is one monitored path's observation within a snapshot.
type pathState struct {
	mtime   time.Time
	scanner *Scanner
}

// snapshot maps every monitored path to its state at one poll instant. It is
// immutable once captured and superseded entirely by the next poll's snapshot.
type snapshot map[string]pathState

// Watcher polls the category roots on a fixed interval, diffs consecutive
// snapshots of their definition files, keeps the metadata cache consistent,
// and emits change events through the event bus. Construct it with
// Registry.Watcher.
type Watcher struct {
	scanners []*Scanner
	cache    *metacache.Cache
	bus      *EventBus
	interval time.Duration
	notify   bool

	running atomic.Bool
}

// Watch runs the poll loop until ctx is cancelled. Cancellation is observed at
// the top of each cycle and during the inter-cycle wait; an in-progress
// cycle's diff and event emission always complete before Watch returns.
func (w *Watcher) Watch(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("watcher is already running")
	}
	defer w.running.Store(false)

	logger.G(ctx).WithFields(map[string]interface{}{
		"interval": w.interval,
		"notify":   w.notify,
	}).Info("Starting definition watcher")

	wake := make(chan struct{}, 1)
	if w.notify {
		stop := w.startNotify(ctx, wake)
		defer stop()
	}

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	previous := snapshot{}
	for {
		select {
		case <-ctx.Done():
			logger.G(ctx).Info("Definition watcher stopped")
			return nil
		default:
		}

		current := w.snapshot(ctx)
		w.diff(ctx, previous, current)
		previous = current

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.interval)

		select {
		case <-ctx.Done():
			logger.G(ctx).Info("Definition watcher stopped")
			return nil
		case <-timer.C:
		case <-wake:
		}
	}
}

// Running reports whether the watcher's poll loop is active.
func (w *Watcher) Running() bool {
	return w.running.Load()
}

// snapshot captures the modification time of every monitored path across all
// categories, applying the same layout rules as the scanners.
func (w *Watcher) snapshot(ctx context.Context) snapshot {
	snap := make(snapshot)
	for _, scanner := range w.scanners {
		paths, err := scanner.Candidates(ctx)
		if err != nil {
			logger.G(ctx).WithField("category", scanner.category).WithError(err).Warn("Failed to enumerate category during poll")
			continue
		}
		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil {
				// Vanished between enumeration and stat; the next cycle
				// reports it as removed if it stays gone.
				continue
			}
			snap[path] = pathState{mtime: info.ModTime(), scanner: scanner}
		}
	}
	return snap
}

// diff compares two consecutive snapshots in deterministic path order,
// reconciles the cache, and emits one event per detected transition.
func (w *Watcher) diff(ctx context.Context, previous, current snapshot) {
	for _, path := range sortedPaths(current) {
		state := current[path]
		old, existed := previous[path]

		switch {
		case !existed:
			descriptor, err := state.scanner.load(ctx, path)
			if err != nil {
				logger.G(ctx).WithField("path", path).WithError(err).Warn("Failed to load added definition")
				continue
			}
			w.bus.Emit(ctx, ChangeEvent{Kind: ChangeAdded, ID: descriptor.ID, Category: state.scanner.category, Path: path})

		case state.mtime.After(old.mtime):
			w.cache.Invalidate(path)
			descriptor, err := state.scanner.load(ctx, path)
			if err != nil {
				logger.G(ctx).WithField("path", path).WithError(err).Warn("Failed to reload modified definition")
				continue
			}
			w.bus.Emit(ctx, ChangeEvent{Kind: ChangeModified, ID: descriptor.ID, Category: state.scanner.category, Path: path})
		}
	}

	for _, path := range sortedPaths(previous) {
		if _, ok := current[path]; ok {
			continue
		}
		state := previous[path]

		id := stem(path)
		if metadata, ok := w.cache.Peek(path); ok {
			if cached, ok := metadata["id"].(string); ok && cached != "" {
				id = cached
			}
		}
		w.cache.Invalidate(path)
		w.bus.Emit(ctx, ChangeEvent{Kind: ChangeRemoved, ID: id, Category: state.scanner.category, Path: path})
	}
}

// startNotify attaches an fsnotify watcher to the category roots. Filesystem
// notifications only wake the poll loop early; change detection still comes
// from snapshot diffing, so semantics are identical with or without it.
func (w *Watcher) startNotify(ctx context.Context, wake chan<- struct{}) func() {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.G(ctx).WithError(err).Debug("Filesystem notifications unavailable, polling on interval only")
		return func() {}
	}

	for _, scanner := range w.scanners {
		if err := fsw.Add(scanner.root); err != nil {
			logger.G(ctx).WithField("dir", scanner.root).WithError(err).Debug("Not watching category root")
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-fsw.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.G(ctx).WithError(err).Debug("Filesystem notification error")
			}
		}
	}()

	return func() { fsw.Close() }
}

func sortedPaths(snap snapshot) []string {
	paths := make([]string, 0, len(snap))
	for path := range snap {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
