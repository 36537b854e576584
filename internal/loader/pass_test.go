package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatehq/slatebox/internal/content"
	"github.com/slatehq/slatebox/internal/schema"
	"github.com/slatehq/slatebox/internal/store"
)

// sinkRecorder captures emitted events for assertions.
type sinkRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *sinkRecorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *sinkRecorder) byType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// newTestLoader builds a loader over a fresh temp project with an
// in-memory store. The content dir is <root>/content.
func newTestLoader(t *testing.T, cfg Config) (*Loader, string, *store.SQLite) {
	t.Helper()

	root := t.TempDir()
	contentDir := filepath.Join(root, "content")
	require.NoError(t, os.MkdirAll(contentDir, 0o755))

	cfg.RootDir = root
	cfg.Dir = "content"

	var st *store.SQLite
	if cfg.Store == nil {
		s, err := store.NewSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		cfg.Store = s
		st = s
	}

	l, err := New(cfg)
	require.NoError(t, err)
	return l, contentDir, st
}

func writeEntry(t *testing.T, dir, rel, body string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSyncCompleteness(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{})

	writeEntry(t, dir, "intro.md", "# Intro\n")
	writeEntry(t, dir, "guides/setup.md", "---\ntitle: Setup\n---\n# Setup\n")
	writeEntry(t, dir, "guides/deep/dive.md", "# Dive\n")
	writeEntry(t, dir, "notes.txt", "not an entry\n")

	require.NoError(t, l.Sync(context.Background()))

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"guides/deep/dive", "guides/setup", "intro"}, keys)

	rec, err := st.Get("guides/setup")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Setup", rec.Data["title"])
	assert.Equal(t, "content/guides/setup.md", rec.FilePath)
	assert.Equal(t, "# Setup\n", rec.Body)
	require.NotNil(t, rec.Rendered)
	assert.Contains(t, rec.Rendered.HTML, "<h1")
}

func TestSyncIdempotence(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{})

	writeEntry(t, dir, "a.md", "# A\n")
	writeEntry(t, dir, "b.md", "# B\n")

	require.NoError(t, l.Sync(context.Background()))
	first, err := st.Get("a")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, l.Sync(context.Background()))

	status := l.Status()
	require.NotNil(t, status.LastPass)
	assert.Equal(t, 0, status.LastPass.Synced)
	assert.Equal(t, 2, status.LastPass.Skipped)
	assert.Equal(t, 0, status.LastPass.Failed)

	second, err := st.Get("a")
	require.NoError(t, err)
	assert.True(t, first.SyncedAt.Equal(second.SyncedAt), "unchanged entry must not be rewritten")
}

func TestSyncDigestSensitivity(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{})

	pathA := writeEntry(t, dir, "a.md", "# A\n")
	writeEntry(t, dir, "b.md", "# B\n")
	require.NoError(t, l.Sync(context.Background()))

	// touching mtime without changing bytes must not force a rewrite
	touched := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(pathA, touched, touched))
	require.NoError(t, l.Sync(context.Background()))
	assert.Equal(t, 0, l.Status().LastPass.Synced)
	assert.Equal(t, 2, l.Status().LastPass.Skipped)

	// a byte change syncs only the changed entry
	writeEntry(t, dir, "a.md", "# A\n\nedited body\n")
	require.NoError(t, l.Sync(context.Background()))
	assert.Equal(t, 1, l.Status().LastPass.Synced)
	assert.Equal(t, 1, l.Status().LastPass.Skipped)

	rec, err := st.Get("a")
	require.NoError(t, err)
	assert.Contains(t, rec.Body, "edited body")
}

func TestSyncGarbageCollection(t *testing.T) {
	events := &sinkRecorder{}
	l, dir, st := newTestLoader(t, Config{Events: events})

	pathA := writeEntry(t, dir, "a.md", "# A\n")
	writeEntry(t, dir, "b.md", "# B\n")
	require.NoError(t, l.Sync(context.Background()))

	require.NoError(t, os.Remove(pathA))
	require.NoError(t, l.Sync(context.Background()))

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
	assert.Equal(t, 1, l.Status().LastPass.Deleted)

	deleted := events.byType(EventEntryDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, "a", deleted[0].ID)
}

func TestSyncValidationIsolation(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{
		Rules: schema.Rules{"title": "required"},
	})

	writeEntry(t, dir, "good.md", "---\ntitle: Good\n---\nbody\n")
	writeEntry(t, dir, "bad.md", "---\ndraft: true\n---\nbody\n")

	err := l.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Contains(t, err.Error(), "title")

	// the valid sibling synced despite the failure
	rec, err := st.Get("good")
	require.NoError(t, err)
	require.NotNil(t, rec)

	missing, err := st.Get("bad")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSyncInvalidEditKeepsPreviousRecord(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{
		Rules: schema.Rules{"title": "required"},
	})

	writeEntry(t, dir, "a.md", "---\ntitle: First\n---\noriginal body\n")
	require.NoError(t, l.Sync(context.Background()))

	// the entry turns invalid; its sync fails but the stored record and
	// its identifier survive garbage collection
	writeEntry(t, dir, "a.md", "---\ndraft: true\n---\nbroken body\n")
	err := l.Sync(context.Background())
	require.Error(t, err)

	rec, err := st.Get("a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Body, "original body")
	assert.Equal(t, "First", rec.Data["title"])
	assert.Equal(t, 1, l.Status().LastPass.Failed)
}

type flakyRenderer struct {
	failFor string
}

func (r *flakyRenderer) CanRender(rel string) bool {
	return strings.HasSuffix(rel, ".md")
}

func (r *flakyRenderer) Render(_ context.Context, in content.RenderInput) (*content.Rendered, []string, error) {
	if strings.Contains(in.FilePath, r.failFor) {
		return nil, nil, errors.New("template exploded")
	}
	return &content.Rendered{HTML: "<p>ok</p>"}, nil, nil
}

func TestSyncRenderFailureIsolation(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{
		Renderer: &flakyRenderer{failFor: "bad"},
	})

	writeEntry(t, dir, "good.md", "fine\n")
	writeEntry(t, dir, "bad.md", "doomed\n")

	// render failures are not sync failures
	require.NoError(t, l.Sync(context.Background()))
	assert.Equal(t, 2, l.Status().LastPass.Synced)

	bad, err := st.Get("bad")
	require.NoError(t, err)
	require.NotNil(t, bad)
	assert.Nil(t, bad.Rendered)
	assert.Equal(t, "doomed\n", bad.Body)

	good, err := st.Get("good")
	require.NoError(t, err)
	require.NotNil(t, good.Rendered)
}

func TestSyncSkipsUnreadableEntries(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{})

	writeEntry(t, dir, "ok.md", "# OK\n")
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone-target.md"), filepath.Join(dir, "broken.md")))

	require.NoError(t, l.Sync(context.Background()))

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, keys)
	assert.Equal(t, 0, l.Status().LastPass.Failed)
}

func TestSyncDefersUnrenderableKinds(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{})

	writeEntry(t, dir, "page.mdx", "---\ntitle: Page\n---\nexport const x = 1\n")
	require.NoError(t, l.Sync(context.Background()))

	rec, err := st.Get("page")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.DeferredRender)
	assert.Nil(t, rec.Rendered)
	assert.Equal(t, []string{"content/page.mdx"}, rec.AssetImports)

	// the fast path keeps the render dependency registered
	require.NoError(t, l.Sync(context.Background()))
	assert.Equal(t, 1, l.Status().LastPass.Skipped)

	n, err := st.InvalidateRenderDependents("content/page.mdx")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSyncSlugCollisionLastWriterWins(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{})

	pathA := writeEntry(t, dir, "a.md", "---\nslug: same\n---\nbody of a\n")
	writeEntry(t, dir, "b.md", "---\nslug: same\n---\nbody of b, different bytes\n")

	require.NoError(t, l.Sync(context.Background()))
	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"same"}, keys)

	// once the other claimant disappears the survivor owns the id
	require.NoError(t, os.Remove(pathA))
	require.NoError(t, l.Sync(context.Background()))

	keys, err = st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"same"}, keys)

	rec, err := st.Get("same")
	require.NoError(t, err)
	assert.Equal(t, "content/b.md", rec.FilePath)
	assert.Contains(t, rec.Body, "body of b")
}

func TestSyncEmptyFileIsValid(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{})

	writeEntry(t, dir, "empty.md", "")
	require.NoError(t, l.Sync(context.Background()))

	rec, err := st.Get("empty")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, rec.Body)
	assert.NotNil(t, rec.Data)
}

func TestSyncInjectsAuthorAndLocale(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{
		DefaultAuthor: "docs-team",
		I18n:          true,
		DefaultLocale: "en",
	})

	writeEntry(t, dir, "en/intro.md", "# Intro\n")
	writeEntry(t, dir, "fr/intro.md", "---\nauthor: marie\n---\n# Intro\n")
	writeEntry(t, dir, "about.md", "# About\n")

	require.NoError(t, l.Sync(context.Background()))

	en, err := st.Get("en/intro")
	require.NoError(t, err)
	require.NotNil(t, en)
	assert.Equal(t, "en", en.Data["locale"])
	assert.Equal(t, "docs-team", en.Data["author"])

	fr, err := st.Get("fr/intro")
	require.NoError(t, err)
	require.NotNil(t, fr)
	assert.Equal(t, "fr", fr.Data["locale"])
	assert.Equal(t, "marie", fr.Data["author"])

	about, err := st.Get("about")
	require.NoError(t, err)
	require.NotNil(t, about)
	assert.Equal(t, "en", about.Data["locale"])
}

func TestSyncRespectsIgnoreFile(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{})

	writeEntry(t, dir, content.IgnoreFileName, "drafts/\n")
	l.reloadIgnore()

	writeEntry(t, dir, "published.md", "# Live\n")
	writeEntry(t, dir, "drafts/wip.md", "# WIP\n")

	require.NoError(t, l.Sync(context.Background()))

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"published"}, keys)
}

func TestSyncCancelledSkipsGC(t *testing.T) {
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// a record whose file never existed; a live pass would collect it
	require.NoError(t, s.Set(&store.EntryRecord{ID: "ghost", Digest: "d", FilePath: "content/ghost.md"}))

	l, dir, _ := newTestLoader(t, Config{Store: s})
	writeEntry(t, dir, "real.md", "# Real\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = l.Sync(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	rec, err := s.Get("ghost")
	require.NoError(t, err)
	assert.NotNil(t, rec, "aborted pass must not garbage collect")
}

func TestSyncEmitsEvents(t *testing.T) {
	events := &sinkRecorder{}
	l, dir, _ := newTestLoader(t, Config{Events: events})

	writeEntry(t, dir, "a.md", "# A\n")
	writeEntry(t, dir, "b.md", "# B\n")
	require.NoError(t, l.Sync(context.Background()))

	synced := events.byType(EventEntrySynced)
	require.Len(t, synced, 2)
	assert.NotEmpty(t, synced[0].ID)
	assert.NotEmpty(t, synced[0].Path)

	completed := events.byType(EventSyncCompleted)
	require.Len(t, completed, 1)
	require.NotNil(t, completed[0].Stats)
	assert.Equal(t, 2, completed[0].Stats.Synced)
	assert.Equal(t, 2, completed[0].Stats.Candidates)
}

func TestSyncAssetsTracked(t *testing.T) {
	l, dir, st := newTestLoader(t, Config{BaseURL: "docs"})

	writeEntry(t, dir, "guide.md", "![diagram](img/flow.png)\n")
	require.NoError(t, l.Sync(context.Background()))

	rec, err := st.Get("guide")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"content/img/flow.png"}, rec.AssetImports)
	require.NotNil(t, rec.Rendered)
	assert.Contains(t, rec.Rendered.HTML, `src="/docs/content/img/flow.png"`)
}
