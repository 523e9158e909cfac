// Package watcher re-verifies an extracted package whenever something inside it
// changes on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	packagetypes "github.com/libreseed/pkgverify/pkg/package"
	"github.com/libreseed/pkgverify/pkg/validation"
)

// DefaultDebounce is the time to wait after the last file event before re-verifying.
const DefaultDebounce = 500 * time.Millisecond

// Result is the outcome of one re-verification.
type Result struct {
	PackageDir string

	// Trigger is the last filesystem event seen before the check.
	Trigger string

	CheckedAt time.Time

	// Err is nil when the package still matches its manifest.
	Err error
}

// Handler receives every Result. It runs on the watcher's event loop, so a slow
// handler delays the next check.
type Handler func(Result)

// Watcher holds a resolved manifest in memory and checks the package against it
// after filesystem events. The manifest is never re-read from the package, so
// tampering with info/paths.json itself does not hide other changes.
type Watcher struct {
	packageDir string
	paths      *packagetypes.PathsJSON
	handler    Handler
	logger     *zap.Logger
	debounce   time.Duration
	opts       []validation.Option
	fsWatch    *fsnotify.Watcher

	// watchDirs holds every directory of the package that should be watched.
	watchDirs map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	trigger chan struct{}

	timerMu     sync.Mutex
	timer       *time.Timer
	lastTrigger string
}

// New creates a watcher for packageDir. A debounce of zero selects DefaultDebounce.
func New(packageDir string, paths *packagetypes.PathsJSON, handler Handler, logger *zap.Logger, debounce time.Duration, opts ...validation.Option) (*Watcher, error) {
	if packageDir == "" {
		return nil, errors.New("package directory not configured")
	}
	if paths == nil {
		return nil, errors.New("manifest cannot be nil")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		packageDir: packageDir,
		paths:      paths,
		handler:    handler,
		logger:     logger.With(zap.String("package_dir", packageDir)),
		debounce:   debounce,
		opts:       append([]validation.Option{validation.WithLogger(logger)}, opts...),
		fsWatch:    fsWatch,
		watchDirs:  declaredDirectories(packageDir, paths),
		trigger:    make(chan struct{}, 1),
	}, nil
}

// Start adds watches on the package root and every declared directory and
// begins the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.packageDir)
	if err != nil {
		return fmt.Errorf("failed to stat package directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("package path %s is not a directory", w.packageDir)
	}

	watched := 0
	for _, dir := range w.sortedDirs() {
		if err := w.fsWatch.Add(dir); err != nil {
			// A missing directory is itself a corruption the first check reports
			w.logger.Debug("directory not watched", zap.String("dir", dir), zap.Error(err))
			continue
		}
		watched++
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.eventLoop()

	w.logger.Info("package watcher started",
		zap.Int("watched_dirs", watched),
		zap.Int("entries", len(w.paths.Paths)),
		zap.Duration("debounce", w.debounce),
	)

	return nil
}

// Stop stops the watcher and waits for a running check to complete.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	var closeErr error
	if w.fsWatch != nil {
		if closeErr = w.fsWatch.Close(); closeErr != nil {
			w.logger.Error("failed to close fsnotify watcher", zap.Error(closeErr))
		}
	}

	w.wg.Wait()

	w.logger.Info("package watcher stopped")
	return closeErr
}

// Check verifies the package immediately and returns the result without
// invoking the handler.
func (w *Watcher) Check(ctx context.Context, trigger string) Result {
	err := validation.ValidatePackageDirectoryFromPaths(ctx, w.packageDir, w.paths, w.opts...)
	return Result{
		PackageDir: w.packageDir,
		Trigger:    trigger,
		CheckedAt:  time.Now(),
		Err:        err,
	}
}

// eventLoop is the main event processing loop. Checks run on this goroutine so
// that at most one is in flight.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatch.Events:
			if !ok {
				return
			}
			w.handleFileEvent(event)

		case err, ok := <-w.fsWatch.Errors:
			if !ok {
				return
			}
			w.logger.Error("fsnotify error", zap.Error(err))

		case <-w.trigger:
			w.timerMu.Lock()
			trigger := w.lastTrigger
			w.timerMu.Unlock()

			result := w.Check(w.ctx, trigger)
			if w.ctx.Err() != nil {
				return
			}
			if result.Err != nil {
				w.logger.Warn("package no longer matches its manifest",
					zap.String("trigger", trigger),
					zap.Int("corrupted", len(validation.Entries(result.Err))),
				)
			} else {
				w.logger.Debug("package verified", zap.String("trigger", trigger))
			}
			w.handler(result)
		}
	}
}

// handleFileEvent re-establishes watches on recreated directories and schedules a check.
func (w *Watcher) handleFileEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if _, ok := w.watchDirs[filepath.Clean(event.Name)]; ok {
			if err := w.fsWatch.Add(event.Name); err != nil {
				w.logger.Debug("failed to watch recreated directory", zap.String("dir", event.Name), zap.Error(err))
			}
		}
	}

	w.logger.Debug("file event detected",
		zap.String("file", event.Name),
		zap.String("operation", event.Op.String()),
	)

	w.scheduleCheck(event.Name)
}

// scheduleCheck (re)starts the debounce timer. When it fires the event loop is
// asked to run a check.
func (w *Watcher) scheduleCheck(name string) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	w.lastTrigger = name
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.trigger <- struct{}{}:
		default:
			// a check is already pending
		}
	})
}

func (w *Watcher) sortedDirs() []string {
	dirs := make([]string, 0, len(w.watchDirs))
	for dir := range w.watchDirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// declaredDirectories returns the package root, every directory entry and every
// parent directory of an entry.
func declaredDirectories(packageDir string, paths *packagetypes.PathsJSON) map[string]struct{} {
	root := filepath.Clean(packageDir)
	dirs := map[string]struct{}{root: {}}

	add := func(rel string) {
		for rel != "." && rel != "/" && rel != "" {
			full := filepath.Join(root, filepath.FromSlash(rel))
			if _, ok := dirs[full]; ok {
				return
			}
			dirs[full] = struct{}{}
			rel = path.Dir(rel)
		}
	}

	for _, entry := range paths.Paths {
		if entry.PathType == packagetypes.PathTypeDirectory {
			add(entry.RelativePath)
		}
		add(path.Dir(entry.RelativePath))
	}
	return dirs
}
