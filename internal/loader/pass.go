package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/slatehq/slatebox/internal/content"
	"github.com/slatehq/slatebox/internal/store"
)

// runPass performs one full sync: enumerate candidates, fan out entry
// syncs, then garbage collect records whose files disappeared. Entry
// failures are collected and joined; they never stop the pass.
func (l *Loader) runPass(ctx context.Context, trigger string) error {
	pass := uuid.NewString()[:8]
	start := time.Now()

	keys, err := l.store.Keys()
	if err != nil {
		return fmt.Errorf("failed to list known entries: %w", err)
	}
	untouched := mapset.NewSet[string](keys...)

	candidates, err := l.candidates()
	if err != nil {
		return fmt.Errorf("failed to enumerate candidates: %w", err)
	}

	l.log.Info("sync started", "pass", pass, "trigger", trigger, "candidates", len(candidates), "known", len(keys))

	outcomes := l.fanOut(ctx, pass, candidates, untouched)

	stats := PassStats{Pass: pass, Candidates: len(candidates)}
	var errs []error
	for _, oc := range outcomes {
		switch {
		case oc.err != nil:
			stats.Failed++
			errs = append(errs, oc.err)
			l.log.Error("entry sync failed", "pass", pass, "path", oc.path, "error", oc.err)
		case oc.synced:
			stats.Synced++
			stats.Bytes += oc.bytes
		case oc.skipped:
			stats.Skipped++
		}
	}

	// An aborted pass has not visited every candidate, so the untouched
	// set cannot be trusted for deletion.
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
		stats.Duration = time.Since(start)
		l.setLastPass(stats)
		l.log.Warn("sync aborted, skipping garbage collection", "pass", pass, "error", err)
		return errors.Join(errs...)
	}

	stale := untouched.ToSlice()
	slices.Sort(stale)
	for _, id := range stale {
		if err := l.store.Delete(id); err != nil {
			stats.Failed++
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", id, err))
			continue
		}
		stats.Deleted++
		l.dropIndexID(id)
		l.emit(Event{Type: EventEntryDeleted, ID: id, At: time.Now()})
		l.log.Info("entry deleted", "pass", pass, "id", id)
	}

	stats.Duration = time.Since(start)
	l.setLastPass(stats)
	l.emit(Event{Type: EventSyncCompleted, At: time.Now(), Stats: &stats})
	l.log.Info("sync completed", "pass", pass,
		"synced", stats.Synced, "skipped", stats.Skipped, "failed", stats.Failed, "deleted", stats.Deleted,
		"read", humanize.Bytes(uint64(stats.Bytes)), "took", stats.Duration.Round(time.Millisecond))

	return errors.Join(errs...)
}

// candidates enumerates matching files under the content dir, minus
// anything the ignore list excludes. Paths are slash-separated and
// relative to the content dir.
func (l *Loader) candidates() ([]string, error) {
	matched, err := l.matcher.Enumerate(l.dir)
	if err != nil {
		return nil, err
	}

	ignore := l.ignoreList()
	candidates := matched[:0]
	for _, rel := range matched {
		if ignore.ShouldIgnore(rel) {
			continue
		}
		candidates = append(candidates, rel)
	}
	return candidates, nil
}

// syncEntry runs the per-entry pipeline: read, split, identify, digest
// compare, validate, render, store. rel is relative to the content dir;
// passCandidates is the candidate list of the surrounding pass. untouched
// may be nil for single-entry (watch) syncs.
func (l *Loader) syncEntry(ctx context.Context, pass, rel string, passCandidates []string, untouched mapset.Set[string]) entryOutcome {
	oc := entryOutcome{path: rel}
	abs := filepath.Join(l.dir, filepath.FromSlash(rel))

	raw, err := content.ReadEntry(abs)
	if err != nil {
		var readErr *content.ReadError
		if errors.As(err, &readErr) {
			l.log.Warn("skipping unreadable entry", "pass", pass, "path", rel, "error", readErr.Err)
			return oc
		}
		oc.err = fmt.Errorf("%s: %w", rel, err)
		return oc
	}

	data, body, err := l.splitter.Split(raw.Raw, content.SplitContext{
		Path:          abs,
		RelPath:       rel,
		ModTime:       raw.Info.ModTime(),
		Author:        l.cfg.DefaultAuthor,
		BaseURL:       l.baseURL,
		Candidates:    passCandidates,
		I18nEnabled:   l.cfg.I18n,
		DefaultLocale: l.cfg.DefaultLocale,
	})
	if err != nil {
		oc.err = fmt.Errorf("%s: %w", rel, err)
		return oc
	}

	id := l.ident(rel, data)
	oc.id = id
	if untouched != nil {
		untouched.Remove(id)
	}

	digest := l.digester.Digest(abs, raw.Raw, raw.Info)

	old, err := l.store.Get(id)
	if err != nil {
		oc.err = err
		return oc
	}

	// Unchanged content with a known file path needs no work. Deferred
	// entries still refresh their render dependency so downstream
	// invalidation keeps working.
	if old != nil && old.Digest == digest && old.FilePath != "" {
		if old.DeferredRender {
			if err := l.store.AddRenderDependency(id, old.FilePath); err != nil {
				oc.err = err
				return oc
			}
		}
		l.setIndex(abs, id)
		oc.skipped = true
		return oc
	}

	rootRel := l.rootRel(abs)
	if old != nil && old.FilePath != "" && old.FilePath != rootRel {
		l.log.Warn("identifier collision, last writer wins", "pass", pass, "id", id, "path", rootRel, "previous", old.FilePath)
	}

	data, err = l.schema.Validate(id, data, rootRel)
	if err != nil {
		oc.err = err
		return oc
	}

	rec := &store.EntryRecord{
		ID:       id,
		Digest:   digest,
		Data:     data,
		Body:     body,
		FilePath: rootRel,
	}

	if l.renderer == nil || !l.renderer.CanRender(rel) {
		rec.DeferredRender = true
		rec.AssetImports = []string{rootRel}
	} else {
		rendered, assets, rerr := l.renderer.Render(ctx, content.RenderInput{
			ID:       id,
			Data:     data,
			Body:     body,
			FilePath: rootRel,
			Digest:   digest,
		})
		switch {
		case rerr == nil:
			rec.Rendered = rendered
			rec.AssetImports = assets
		case errors.Is(rerr, context.Canceled) || errors.Is(rerr, context.DeadlineExceeded):
			oc.err = rerr
			return oc
		default:
			l.log.Warn("render failed, storing entry without artifact", "pass", pass, "id", id, "path", rel, "error", rerr)
		}
	}

	if err := l.store.Set(rec); err != nil {
		oc.err = fmt.Errorf("failed to store %s: %w", id, err)
		return oc
	}
	l.setIndex(abs, id)

	oc.synced = true
	oc.bytes = int64(len(raw.Raw))

	l.emit(Event{Type: EventEntrySynced, ID: id, Path: rootRel, At: time.Now()})
	l.log.Debug("entry synced", "pass", pass, "id", id, "path", rel, "digest", digest)
	return oc
}
