package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"

	"github.com/slatehq/slatebox/internal/codec"
	"github.com/slatehq/slatebox/internal/content"
	"github.com/slatehq/slatebox/internal/db"
)

const memoryPath = ":memory:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    digest TEXT NOT NULL,
    data TEXT NOT NULL,
    body TEXT NOT NULL,
    file_path TEXT NOT NULL,
    rendered TEXT,
    deferred_render INTEGER NOT NULL DEFAULT 0,
    asset_imports TEXT,
    render_stale INTEGER NOT NULL DEFAULT 0,
    synced_at TEXT NOT NULL -- RFC3339Nano string
);

CREATE INDEX IF NOT EXISTS idx_entries_file_path ON entries(file_path);

CREATE TABLE IF NOT EXISTS entry_assets (
    entry_id TEXT NOT NULL,
    path TEXT NOT NULL,
    PRIMARY KEY (entry_id, path)
);

CREATE INDEX IF NOT EXISTS idx_entry_assets_path ON entry_assets(path);
`

// entryRow is the scan target; json columns and the timestamp are stored
// as TEXT.
type entryRow struct {
	ID             string         `db:"id"`
	Digest         string         `db:"digest"`
	Data           string         `db:"data"`
	Body           string         `db:"body"`
	FilePath       string         `db:"file_path"`
	Rendered       sql.NullString `db:"rendered"`
	DeferredRender bool           `db:"deferred_render"`
	AssetImports   sql.NullString `db:"asset_imports"`
	RenderStale    bool           `db:"render_stale"`
	SyncedAt       string         `db:"synced_at"`
}

type summaryRow struct {
	ID       string `db:"id"`
	FilePath string `db:"file_path"`
	Digest   string `db:"digest"`
	SyncedAt string `db:"synced_at"`
}

// SQLite is the default Store backed by a single SQLite database. File
// backed stores take an advisory lock so only one writer process runs
// against a given database at a time.
type SQLite struct {
	db     *sqlx.DB
	dbPath string
	lock   *flock.Flock
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the store at dbPath. Pass
// ":memory:" for an ephemeral store.
func NewSQLite(dbPath string) (*SQLite, error) {
	var lock *flock.Flock
	if dbPath != memoryPath {
		lock = flock.New(dbPath + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire store lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("%s: %w", dbPath, ErrStoreLocked)
		}
	}

	sdb, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		if lock != nil {
			lock.Unlock()
		}
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if _, err := sdb.Exec(sqliteSchema); err != nil {
		sdb.Close()
		if lock != nil {
			lock.Unlock()
		}
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	return &SQLite{db: sdb, dbPath: dbPath, lock: lock}, nil
}

// Close closes the database and releases the writer lock.
func (s *SQLite) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if lerr := s.lock.Unlock(); lerr != nil && err == nil {
			err = lerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	slog.Debug("store closed", "path", s.dbPath)
	return nil
}

func (s *SQLite) Get(id string) (*EntryRecord, error) {
	var row entryRow
	err := s.db.Get(&row, `SELECT id, digest, data, body, file_path, rendered, deferred_render, asset_imports, render_stale, synced_at
		FROM entries WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query entry %s: %w", id, err)
	}
	return row.toRecord()
}

func (s *SQLite) Set(rec *EntryRecord) error {
	if rec == nil {
		return fmt.Errorf("cannot set nil record")
	}
	if rec.ID == "" {
		return fmt.Errorf("cannot set record without an id")
	}

	row, err := toRow(rec)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", rec.ID, err)
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin store transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT OR REPLACE INTO entries
		(id, digest, data, body, file_path, rendered, deferred_render, asset_imports, render_stale, synced_at)
		VALUES (:id, :digest, :data, :body, :file_path, :rendered, :deferred_render, :asset_imports, :render_stale, :synced_at)`
	if _, err := tx.NamedExec(query, row); err != nil {
		return fmt.Errorf("failed to set entry %s: %w", rec.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM entry_assets WHERE entry_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("failed to reset assets for %s: %w", rec.ID, err)
	}
	for _, asset := range rec.AssetImports {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO entry_assets (entry_id, path) VALUES (?, ?)`, rec.ID, asset); err != nil {
			return fmt.Errorf("failed to record asset %s for %s: %w", asset, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry %s: %w", rec.ID, err)
	}
	slog.Debug("store set", "id", rec.ID, "digest", rec.Digest)
	return nil
}

func (s *SQLite) Delete(id string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin store transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entry_assets WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete assets for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) Keys() ([]string, error) {
	var keys []string
	if err := s.db.Select(&keys, `SELECT id FROM entries ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	return keys, nil
}

func (s *SQLite) AddRenderDependency(id string, filePath string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO entry_assets (entry_id, path) VALUES (?, ?)`, id, filePath)
	if err != nil {
		return fmt.Errorf("failed to add render dependency %s -> %s: %w", id, filePath, err)
	}
	return nil
}

func (s *SQLite) InvalidateRenderDependents(filePath string) (int64, error) {
	res, err := s.db.Exec(`UPDATE entries SET render_stale = 1
		WHERE id IN (SELECT entry_id FROM entry_assets WHERE path = ?)`, filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate dependents of %s: %w", filePath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count invalidated dependents: %w", err)
	}
	return n, nil
}

// Count returns the number of stored entries.
func (s *SQLite) Count() (int, error) {
	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM entries`); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Summaries returns a listing row for every stored entry, ordered by id.
func (s *SQLite) Summaries() ([]EntrySummary, error) {
	var rows []summaryRow
	if err := s.db.Select(&rows, `SELECT id, file_path, digest, synced_at FROM entries ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}

	out := make([]EntrySummary, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339Nano, row.SyncedAt)
		if err != nil {
			slog.Error("skipping summary with bad timestamp", "id", row.ID, "value", row.SyncedAt, "error", err)
			continue
		}
		out = append(out, EntrySummary{ID: row.ID, FilePath: row.FilePath, Digest: row.Digest, SyncedAt: ts})
	}
	return out, nil
}

func toRow(rec *EntryRecord) (*entryRow, error) {
	data := rec.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := codec.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	row := &entryRow{
		ID:             rec.ID,
		Digest:         rec.Digest,
		Data:           string(dataJSON),
		Body:           rec.Body,
		FilePath:       rec.FilePath,
		DeferredRender: rec.DeferredRender,
		RenderStale:    rec.RenderStale,
	}

	if rec.Rendered != nil {
		b, err := codec.Marshal(rec.Rendered)
		if err != nil {
			return nil, fmt.Errorf("marshal rendered: %w", err)
		}
		row.Rendered = sql.NullString{String: string(b), Valid: true}
	}
	if len(rec.AssetImports) > 0 {
		b, err := codec.Marshal(rec.AssetImports)
		if err != nil {
			return nil, fmt.Errorf("marshal asset imports: %w", err)
		}
		row.AssetImports = sql.NullString{String: string(b), Valid: true}
	}

	syncedAt := rec.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = time.Now().UTC()
	}
	row.SyncedAt = syncedAt.Format(time.RFC3339Nano)
	return row, nil
}

func (r *entryRow) toRecord() (*EntryRecord, error) {
	rec := &EntryRecord{
		ID:             r.ID,
		Digest:         r.Digest,
		Body:           r.Body,
		FilePath:       r.FilePath,
		DeferredRender: r.DeferredRender,
		RenderStale:    r.RenderStale,
	}

	if err := codec.Unmarshal([]byte(r.Data), &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshal data for %s: %w", r.ID, err)
	}
	if r.Rendered.Valid {
		var rendered content.Rendered
		if err := codec.Unmarshal([]byte(r.Rendered.String), &rendered); err != nil {
			return nil, fmt.Errorf("unmarshal rendered for %s: %w", r.ID, err)
		}
		rec.Rendered = &rendered
	}
	if r.AssetImports.Valid {
		if err := codec.Unmarshal([]byte(r.AssetImports.String), &rec.AssetImports); err != nil {
			return nil, fmt.Errorf("unmarshal asset imports for %s: %w", r.ID, err)
		}
	}

	ts, err := time.Parse(time.RFC3339Nano, r.SyncedAt)
	if err != nil {
		return nil, fmt.Errorf("parse synced_at for %s: %w", r.ID, err)
	}
	rec.SyncedAt = ts
	return rec, nil
}
