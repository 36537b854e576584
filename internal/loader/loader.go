// Package loader keeps a directory of content entries synchronized into a
// queryable store. It runs full reconciliation passes, watches for
// filesystem changes and garbage collects records whose files are gone.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slatehq/slatebox/internal/content"
	"github.com/slatehq/slatebox/internal/render"
	"github.com/slatehq/slatebox/internal/schema"
	"github.com/slatehq/slatebox/internal/store"
	"github.com/slatehq/slatebox/internal/utils"
)

// Loader keeps one collection in sync. Safe for concurrent use; full
// passes are serialized against each other.
type Loader struct {
	cfg         Config
	log         *slog.Logger
	root        string // absolute project root
	dir         string // absolute content dir
	baseURL     string
	concurrency int

	matcher  *content.Matcher
	digester *content.Digester
	schema   *schema.Validator
	splitter content.Splitter
	renderer content.Renderer
	ident    content.IdentFunc
	store    store.Store
	ownStore bool
	events   Sink

	mu       sync.RWMutex
	ignore   *content.IgnoreList
	index    map[string]string // absolute path -> identifier
	lastPass *PassStats
	lastAt   time.Time

	watching atomic.Bool
	passMu   sync.Mutex
}

func New(cfg Config) (*Loader, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = DefaultWatchDebounce
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Name
	}

	rootDir := cfg.RootDir
	if rootDir == "" {
		rootDir = "."
	}
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root dir: %w", err)
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	dir, err = utils.ResolvePath(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve content dir: %w", err)
	}
	if !utils.DirExists(dir) {
		return nil, fmt.Errorf("content directory does not exist: %s", dir)
	}

	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = content.DefaultPatterns
	}
	matcher, err := content.NewMatcher(patterns, ConfigFileName, content.IgnoreFileName)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loader{
		cfg:         cfg,
		log:         logger.With("collection", cfg.Name),
		root:        root,
		dir:         dir,
		baseURL:     strings.Trim(cfg.BaseURL, "/"),
		concurrency: cfg.Concurrency,
		matcher:     matcher,
		digester:    content.NewDigester(),
		schema:      schema.New(cfg.Rules),
		splitter:    cfg.Splitter,
		renderer:    cfg.Renderer,
		ident:       cfg.Ident,
		store:       cfg.Store,
		events:      cfg.Events,
		index:       make(map[string]string),
	}

	if l.splitter == nil {
		l.splitter = content.FrontMatterSplitter{}
	}
	if l.renderer == nil {
		l.renderer = render.NewMarkdown(l.baseURL)
	}
	if l.ident == nil {
		l.ident = content.Ident
	}

	l.ignore = content.NewIgnoreList(dir)

	if l.store == nil {
		storePath := cfg.StorePath
		if storePath == "" {
			storePath = filepath.Join(root, ".slatebox", cfg.Name+".db")
		}
		s, err := store.NewSQLite(storePath)
		if err != nil {
			return nil, err
		}
		l.store = s
		l.ownStore = true
	}

	return l, nil
}

// Sync runs one full reconciliation pass.
func (l *Loader) Sync(ctx context.Context) error {
	l.passMu.Lock()
	defer l.passMu.Unlock()
	return l.runPass(ctx, "full")
}

// Run performs an initial pass and then watches until ctx is done. Entry
// errors from the initial pass are logged, not fatal; watching proceeds
// regardless so later edits can repair them.
func (l *Loader) Run(ctx context.Context) error {
	if err := l.Sync(ctx); err != nil {
		l.log.Error("initial sync completed with errors", "error", err)
	}
	return l.Watch(ctx)
}

// Watch reacts to filesystem changes until ctx is done.
func (l *Loader) Watch(ctx context.Context) error {
	w := newWatcher(l.dir, l.cfg.WatchDebounce)
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	l.watching.Store(true)
	defer l.watching.Store(false)

	var resync <-chan time.Time
	if l.cfg.Resync > 0 {
		ticker := time.NewTicker(l.cfg.Resync)
		defer ticker.Stop()
		resync = ticker.C
	}

	l.log.Info("watching", "dir", l.dir, "debounce", l.cfg.WatchDebounce)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resync:
			if err := l.Sync(ctx); err != nil {
				l.log.Error("resync completed with errors", "error", err)
			}
		case ev := <-w.Events():
			l.handleWatchEvent(ctx, ev)
		}
	}
}

// handleWatchEvent maps one debounced filesystem event onto the store.
func (l *Loader) handleWatchEvent(ctx context.Context, ev WatchEvent) {
	rel, ok := l.baseRel(ev.Path)
	if !ok {
		return
	}

	// A changed ignore file reshapes the candidate set; reload it and
	// reconcile with a full pass.
	if filepath.Base(ev.Path) == content.IgnoreFileName && filepath.Dir(ev.Path) == l.dir {
		l.reloadIgnore()
		if err := l.Sync(ctx); err != nil {
			l.log.Error("resync after ignore change completed with errors", "error", err)
		}
		return
	}

	matches := l.matcher.Matches(rel) && !l.ignoreList().ShouldIgnore(rel)

	switch ev.Op {
	case OpRemove, OpRename:
		if !matches {
			l.invalidateDependents(ev.Path)
			return
		}
		id, known := l.lookupIndex(ev.Path)
		if !known {
			l.log.Debug("unlink for unknown path", "path", rel)
			return
		}
		if err := l.store.Delete(id); err != nil {
			l.log.Error("failed to delete entry", "id", id, "path", rel, "error", err)
			return
		}
		l.dropIndexID(id)
		l.emit(Event{Type: EventEntryDeleted, ID: id, Path: l.rootRel(ev.Path), At: time.Now()})
		l.log.Info("entry deleted", "trigger", ev.Op.String(), "id", id, "path", rel)

	default:
		if !matches {
			l.invalidateDependents(ev.Path)
			return
		}
		prev, hadPrev := l.lookupIndex(ev.Path)
		oc := l.syncEntry(ctx, "watch", rel, []string{rel}, nil)
		switch {
		case oc.err != nil:
			l.log.Error("watch sync failed", "path", rel, "error", oc.err)
		case oc.synced:
			l.log.Info("entry synced", "trigger", ev.Op.String(), "id", oc.id, "path", rel)
		case oc.skipped:
			l.log.Debug("entry unchanged", "trigger", ev.Op.String(), "id", oc.id, "path", rel)
		}

		// A front matter edit can move the entry to a new identifier;
		// drop the superseded record so both ids do not linger.
		if hadPrev && oc.synced && oc.id != "" && prev != oc.id {
			if err := l.store.Delete(prev); err != nil {
				l.log.Error("failed to delete superseded entry", "id", prev, "error", err)
				return
			}
			l.emit(Event{Type: EventEntryDeleted, ID: prev, At: time.Now()})
			l.log.Info("entry superseded", "old", prev, "new", oc.id, "path", rel)
		}
	}
}

// invalidateDependents marks entries importing the changed file as
// needing a re-render.
func (l *Loader) invalidateDependents(absPath string) {
	rootRel := l.rootRel(absPath)
	n, err := l.store.InvalidateRenderDependents(rootRel)
	if err != nil {
		l.log.Error("failed to invalidate render dependents", "path", rootRel, "error", err)
		return
	}
	if n > 0 {
		l.log.Info("marked render dependents stale", "path", rootRel, "entries", n)
	}
}

// Store exposes the underlying store for read-side consumers.
func (l *Loader) Store() store.Store {
	return l.store
}

// Status reports the loader's current state.
func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Status{Name: l.cfg.Name, Dir: l.dir, Watching: l.watching.Load()}
	if l.lastPass != nil {
		lp := *l.lastPass
		st.LastPass = &lp
		st.LastPassAt = l.lastAt
	}
	return st
}

// Close releases the store when the loader owns it.
func (l *Loader) Close() error {
	if !l.ownStore {
		return nil
	}
	if c, ok := l.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *Loader) emit(ev Event) {
	if l.events != nil {
		l.events.Publish(ev)
	}
}

func (l *Loader) setLastPass(stats PassStats) {
	l.mu.Lock()
	l.lastPass = &stats
	l.lastAt = time.Now()
	l.mu.Unlock()
}

func (l *Loader) ignoreList() *content.IgnoreList {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ignore
}

func (l *Loader) reloadIgnore() {
	ignore := content.NewIgnoreList(l.dir)

	l.mu.Lock()
	l.ignore = ignore
	l.mu.Unlock()
	l.log.Info("ignore rules reloaded")
}

func (l *Loader) setIndex(absPath, id string) {
	l.mu.Lock()
	l.index[absPath] = id
	l.mu.Unlock()
}

func (l *Loader) lookupIndex(absPath string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.index[absPath]
	return id, ok
}

func (l *Loader) dropIndexID(id string) {
	l.mu.Lock()
	for path, indexed := range l.index {
		if indexed == id {
			delete(l.index, path)
		}
	}
	l.mu.Unlock()
}

// baseRel converts an absolute path into a slash path relative to the
// content dir. ok is false for paths outside it.
func (l *Loader) baseRel(absPath string) (string, bool) {
	rel, err := filepath.Rel(l.dir, absPath)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// rootRel converts an absolute path into the project-root-relative slash
// path recorded in the store.
func (l *Loader) rootRel(absPath string) string {
	rel, err := filepath.Rel(l.root, absPath)
	if err != nil {
		return filepath.ToSlash(absPath)
	}
	return filepath.ToSlash(rel)
}
