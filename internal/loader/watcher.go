package loader

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

// WatchOp classifies a filesystem notification.
type WatchOp int

const (
	OpCreate WatchOp = iota
	OpWrite
	OpRemove
	OpRename
)

func (op WatchOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// WatchEvent is a debounced change below the watched directory. Path is
// absolute.
type WatchEvent struct {
	Op   WatchOp
	Path string
}

// watcher turns raw notify events into debounced WatchEvents. Create and
// write bursts are coalesced per path; removes and renames flush
// immediately so a deletion is never absorbed by a pending write.
type watcher struct {
	dir      string
	debounce time.Duration

	events  chan WatchEvent
	raw     chan notify.EventInfo
	pending map[string]WatchEvent
	timers  map[string]*time.Timer
	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

func newWatcher(dir string, debounce time.Duration) *watcher {
	return &watcher{
		dir:      dir,
		debounce: debounce,
		events:   make(chan WatchEvent, 256),
		raw:      make(chan notify.EventInfo, 256),
		pending:  make(map[string]WatchEvent),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
}

// Events is the debounced change stream. It is never closed; readers must
// select on their own shutdown signal as well.
func (w *watcher) Events() <-chan WatchEvent {
	return w.events
}

func (w *watcher) Start() error {
	if err := notify.Watch(w.dir+"/...", w.raw, notify.Create|notify.Write|notify.Remove|notify.Rename); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.wg.Add(1)
	go w.loop()
	slog.Debug("watcher started", "dir", w.dir, "debounce", w.debounce)
	return nil
}

func (w *watcher) Stop() {
	close(w.done)
	notify.Stop(w.raw)
	w.wg.Wait()

	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
		delete(w.pending, path)
	}
	w.mu.Unlock()
	slog.Debug("watcher stopped", "dir", w.dir)
}

func (w *watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ei := <-w.raw:
			w.dispatch(WatchEvent{Op: mapOp(ei.Event()), Path: ei.Path()})
		}
	}
}

func (w *watcher) dispatch(ev WatchEvent) {
	w.mu.Lock()
	if timer, ok := w.timers[ev.Path]; ok {
		timer.Stop()
		delete(w.timers, ev.Path)
		delete(w.pending, ev.Path)
	}

	if ev.Op == OpRemove || ev.Op == OpRename {
		w.mu.Unlock()
		w.send(ev)
		return
	}

	w.pending[ev.Path] = ev
	w.timers[ev.Path] = time.AfterFunc(w.debounce, func() { w.flush(ev.Path) })
	w.mu.Unlock()
}

func (w *watcher) flush(path string) {
	w.mu.Lock()
	ev, ok := w.pending[path]
	delete(w.pending, path)
	delete(w.timers, path)
	w.mu.Unlock()

	if ok {
		w.send(ev)
	}
}

func (w *watcher) send(ev WatchEvent) {
	select {
	case <-w.done:
		return
	default:
	}

	select {
	case w.events <- ev:
	default:
		slog.Warn("watch events channel full, dropping event", "op", ev.Op, "path", ev.Path)
	}
}

func mapOp(e notify.Event) WatchOp {
	switch e {
	case notify.Create:
		return OpCreate
	case notify.Write:
		return OpWrite
	case notify.Remove:
		return OpRemove
	case notify.Rename:
		return OpRename
	default:
		return OpWrite
	}
}
