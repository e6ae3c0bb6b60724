package search

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// keywordDiscount scales keyword scores for documents missing from the index,
// so they rank below indexed matches of similar strength.
const keywordDiscount = 0.5

// IndexFile is the index location relative to the twining directory.
const IndexFile = "embeddings/search.index"

// Index is a persistent FTS5 relevance index.
type Index struct {
	db *sql.DB
}

// Open opens (creating if needed) the index under twiningDir.
func Open(twiningDir string) (*Index, error) {
	path := filepath.Join(twiningDir, IndexFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("search: create index dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("search: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("search: pragma %q: %w", p, err)
		}
	}

	ix := &Index{db: db}
	if err := ix.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("search: migration: %w", err)
	}
	return ix, nil
}

// Close closes the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) migrate() error {
	_, err := ix.db.Exec(`
		CREATE TABLE IF NOT EXISTS docs (
			seq  INTEGER PRIMARY KEY AUTOINCREMENT,
			id   TEXT    NOT NULL UNIQUE,
			kind TEXT    NOT NULL,
			text TEXT    NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS docs_fts USING fts5(
			text,
			content='docs',
			content_rowid='seq'
		);

		CREATE TRIGGER IF NOT EXISTS docs_ai AFTER INSERT ON docs BEGIN
			INSERT INTO docs_fts(rowid, text) VALUES (new.seq, new.text);
		END;

		CREATE TRIGGER IF NOT EXISTS docs_ad AFTER DELETE ON docs BEGIN
			INSERT INTO docs_fts(docs_fts, rowid, text) VALUES ('delete', old.seq, old.text);
		END;
	`)
	return err
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// Upsert replaces the indexed text of doc.
func (ix *Index) Upsert(ctx context.Context, doc Document) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("search: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM docs WHERE id = ?`, doc.ID); err != nil {
		return fmt.Errorf("search: delete %s: %w", doc.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO docs (id, kind, text) VALUES (?, ?, ?)`,
		doc.ID, doc.Kind, doc.Text,
	); err != nil {
		return fmt.Errorf("search: insert %s: %w", doc.ID, err)
	}
	return tx.Commit()
}

// Remove drops the given ids from the index.
func (ix *Index) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM docs WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("search: remove: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs`).Scan(&n)
	return n, err
}

// ─── Ranking ─────────────────────────────────────────────────────────────────

// Rank implements Ranker. Indexed documents are scored by bm25, mapped into
// (0,1); documents the index has never seen are scored by keyword overlap,
// discounted.
func (ix *Index) Rank(ctx context.Context, query string, docs []Document) ([]Result, error) {
	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" || len(docs) == 0 {
		return nil, nil
	}

	wanted := make(map[string]Document, len(docs))
	for _, d := range docs {
		wanted[d.ID] = d
	}

	indexed, err := ix.indexedIDs(ctx, docs)
	if err != nil {
		return nil, err
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT d.id, bm25(docs_fts)
		FROM docs_fts
		JOIN docs d ON d.seq = docs_fts.rowid
		WHERE docs_fts MATCH ?
	`, ftsQuery)
	if err != nil {
		return nil, fmt.Errorf("search: match: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Result
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, err
		}
		if _, ok := wanted[id]; !ok {
			continue
		}
		// bm25 is negative; more negative is better.
		s := -rank
		if s <= 0 {
			s = 1e-6
		}
		out = append(out, Result{ID: id, Score: s / (1 + s)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	terms := Terms(query)
	for _, d := range docs {
		if indexed[d.ID] {
			continue
		}
		if s := KeywordScore(terms, d.Text); s > 0 {
			out = append(out, Result{ID: d.ID, Score: s * keywordDiscount})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (ix *Index) indexedIDs(ctx context.Context, docs []Document) (map[string]bool, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT id FROM docs`)
	if err != nil {
		return nil, fmt.Errorf("search: list ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	all := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		all[id] = true
	}
	out := make(map[string]bool, len(docs))
	for _, d := range docs {
		if all[d.ID] {
			out[d.ID] = true
		}
	}
	return out, rows.Err()
}

// sanitizeFTS quotes each word and ORs them together so any term can match.
// "fix auth bug" → `"fix" OR "auth" OR "bug"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	out := words[:0]
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		out = append(out, `"`+w+`"`)
	}
	return strings.Join(out, " OR ")
}
