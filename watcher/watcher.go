package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lexandro/embedsearch-mcp/ignore"
	"github.com/lexandro/embedsearch-mcp/scan"
	"github.com/lexandro/embedsearch-mcp/tools"
)

// DefaultInterval is the quiet period after the last change before a project
// is re-indexed.
const DefaultInterval = 2 * time.Second

// ReindexFunc re-uploads a project. It is normally IndexHandler.Run.
type ReindexFunc func(ctx context.Context, target tools.IndexTarget) (*tools.IndexOutput, error)

// Options configures a Watcher.
type Options struct {
	Interval time.Duration // debounce window; DefaultInterval when zero
	Exclude  []string      // extra doublestar globs, same as the scanner's
	Reindex  ReindexFunc
	Logger   *slog.Logger
}

type project struct {
	target  tools.IndexTarget
	matcher *ignore.Matcher
}

// Watcher keeps indexed projects fresh: it watches every non-ignored
// directory of each project and re-indexes a project once its files stop
// changing.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	options   Options
	logger    *slog.Logger

	mu       sync.Mutex
	projects map[string]*project // by project name
	running  map[string]bool     // projects with a re-index in flight
	pending  map[string]bool     // changed again while running

	workers sync.WaitGroup
}

// New creates a watcher with no projects. Call Run to start processing events.
func New(options Options) (*Watcher, error) {
	if options.Reindex == nil {
		return nil, errors.New("watcher: Reindex is required")
	}
	if options.Interval <= 0 {
		options.Interval = DefaultInterval
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		debouncer: NewDebouncer(options.Interval),
		options:   options,
		logger:    logger,
		projects:  make(map[string]*project),
		running:   make(map[string]bool),
		pending:   make(map[string]bool),
	}, nil
}

// Watch starts watching target's directory. Watching a project again with
// the same directory only updates its filters.
func (w *Watcher) Watch(target tools.IndexTarget) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.projects[target.Project]; ok {
		if existing.target.Directory == target.Directory {
			existing.target = target
			return nil
		}
		w.unwatchLocked(existing)
	}

	p := &project{
		target: target,
		matcher: ignore.NewMatcher(ignore.MatcherOptions{
			RootDir:        target.Directory,
			CustomPatterns: w.options.Exclude,
		}),
	}

	dirs := 0
	err := filepath.WalkDir(target.Directory, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != target.Directory && p.matcher.ShouldIgnoreDir(path) {
			return filepath.SkipDir
		}
		if watchErr := w.fsWatcher.Add(path); watchErr != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", watchErr)
			return nil
		}
		dirs++
		return nil
	})
	if err != nil {
		return err
	}

	w.projects[target.Project] = p
	w.logger.Info("watching project", "project", target.Project, "dir", target.Directory, "directories", dirs)
	return nil
}

// unwatchLocked removes the watched directories under p's root that no
// other project also covers.
func (w *Watcher) unwatchLocked(p *project) {
	delete(w.projects, p.target.Project)
	for _, path := range w.fsWatcher.WatchList() {
		if !within(p.target.Directory, path) || w.coveredLocked(path) {
			continue
		}
		_ = w.fsWatcher.Remove(path)
	}
}

// coveredLocked reports whether path lies under any watched project's root.
func (w *Watcher) coveredLocked(path string) bool {
	for _, q := range w.projects {
		if within(q.target.Directory, path) {
			return true
		}
	}
	return false
}

// Projects returns the sorted names of the watched projects.
func (w *Watcher) Projects() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.projects))
	for name := range w.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run processes file system events and re-indexes changed projects until
// ctx is cancelled or the watcher is closed. Each project re-indexes on its
// own goroutine, so a slow upload never delays events for other projects.
// Run returns once in-flight re-indexes finish. Re-index failures are logged.
func (w *Watcher) Run(ctx context.Context) {
	defer w.workers.Wait()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)

		case names := <-w.debouncer.Output():
			for _, name := range names {
				w.schedule(ctx, name)
			}
		}
	}
}

// handleEvent maps a file system event to the owning project and schedules
// a re-index when the change is relevant.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	path := event.Name

	w.mu.Lock()
	defer w.mu.Unlock()

	p := w.ownerLocked(path)
	if p == nil {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !p.matcher.ShouldIgnoreDir(path) {
				if err := w.fsWatcher.Add(path); err != nil {
					w.logger.Warn("failed to watch new directory", "path", path, "error", err)
				}
				// Files may have landed before the watch was added.
				w.debouncer.Add(p.target.Project)
			}
			return
		}
	}

	if ignore.IsIgnoreFile(filepath.Base(path)) {
		p.matcher.Reload()
		w.debouncer.Add(p.target.Project)
		return
	}

	if p.matcher.ShouldIgnore(path) {
		return
	}
	relPath, err := filepath.Rel(p.target.Directory, path)
	if err != nil {
		return
	}
	// Removed or renamed directories cannot be told apart from files here,
	// so only filter paths that still exist.
	if _, err := os.Stat(path); err == nil && !scan.MatchesFilters(filepath.ToSlash(relPath), p.target.Filters) {
		return
	}

	w.debouncer.Add(p.target.Project)
}

// ownerLocked returns the project with the deepest root containing path.
func (w *Watcher) ownerLocked(path string) *project {
	var owner *project
	for _, p := range w.projects {
		if !within(p.target.Directory, path) {
			continue
		}
		if owner == nil || len(p.target.Directory) > len(owner.target.Directory) {
			owner = p
		}
	}
	return owner
}

// schedule starts a re-index of name. If one is already running the project
// is marked pending and re-indexed once more when it finishes.
func (w *Watcher) schedule(ctx context.Context, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.projects[name]; !ok {
		return
	}
	if w.running[name] {
		w.pending[name] = true
		return
	}
	w.running[name] = true
	w.workers.Add(1)
	go w.reindexLoop(ctx, name)
}

func (w *Watcher) reindexLoop(ctx context.Context, name string) {
	defer w.workers.Done()

	for {
		w.reindex(ctx, name)

		w.mu.Lock()
		again := w.pending[name] && ctx.Err() == nil
		delete(w.pending, name)
		if !again {
			delete(w.running, name)
		}
		w.mu.Unlock()

		if !again {
			return
		}
	}
}

func (w *Watcher) reindex(ctx context.Context, name string) {
	w.mu.Lock()
	p, ok := w.projects[name]
	var target tools.IndexTarget
	if ok {
		target = p.target
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	start := time.Now()
	out, err := w.options.Reindex(ctx, target)
	if err != nil {
		w.logger.Error("re-index failed", "project", name, "dir", target.Directory, "error", err)
		return
	}
	w.logger.Info("re-indexed project",
		"project", name,
		"files", out.FilesIndexed,
		"chunks", out.Chunks,
		"elapsed", time.Since(start),
	)
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.debouncer.Stop()
	return w.fsWatcher.Close()
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

var _ tools.ProjectWatcher = (*Watcher)(nil)
