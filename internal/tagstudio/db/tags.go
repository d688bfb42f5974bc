package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

// ResolveTagID returns the id of the tag called name, or ErrTagNotFound.
// If several tags share the name the lowest id wins.
func (db *DB) ResolveTagID(ctx context.Context, name string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.resolveTagIDLocked(ctx, name)
}

func (db *DB) resolveTagIDLocked(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.readerLocked().QueryRowContext(ctx,
		`SELECT id FROM tags WHERE name = ? ORDER BY id LIMIT 1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTagNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up tag %q: %w", name, err)
	}
	return id, nil
}

// InsertTag creates a tag and returns its id. It does not check for an
// existing tag with the same name.
func (db *DB) InsertTag(ctx context.Context, name string, color schema.Color, isCategory bool) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.insertTagLocked(ctx, name, color, isCategory)
}

func (db *DB) insertTagLocked(ctx context.Context, name string, color schema.Color, isCategory bool) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("tag name cannot be empty")
	}

	w, err := db.writerLocked(ctx)
	if err != nil {
		return 0, err
	}

	res, err := w.ExecContext(ctx,
		`INSERT INTO tags (name, color_namespace, color_slug, is_category) VALUES (?, ?, ?, ?)`,
		name, nullString(color.Namespace), nullString(color.Slug), isCategory)
	if err != nil {
		return 0, fmt.Errorf("failed to insert tag %q: %w", name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read id of tag %q: %w", name, err)
	}
	return id, nil
}

// TagHasEdge reports whether the tag_parents row (parent, child) exists.
func (db *DB) TagHasEdge(ctx context.Context, parent, child int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var one int
	err := db.readerLocked().QueryRowContext(ctx,
		`SELECT 1 FROM tag_parents WHERE parent_id = ? AND child_id = ?`, parent, child).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check edge %d -> %d: %w", parent, child, err)
	}
	return true, nil
}

// InsertEdge writes the tag_parents row (parent, child). An existing row is
// left untouched.
func (db *DB) InsertEdge(ctx context.Context, parent, child int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.insertEdgeLocked(ctx, parent, child)
}

func (db *DB) insertEdgeLocked(ctx context.Context, parent, child int64) error {
	w, err := db.writerLocked(ctx)
	if err != nil {
		return err
	}

	if _, err := w.ExecContext(ctx,
		`INSERT OR IGNORE INTO tag_parents (parent_id, child_id) VALUES (?, ?)`, parent, child); err != nil {
		return fmt.Errorf("failed to insert edge %d -> %d: %w", parent, child, err)
	}
	return nil
}

// Edges returns every tag_parents row involving tagID on either side.
func (db *DB) Edges(ctx context.Context, tagID int64) ([]schema.TagEdge, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.readerLocked().QueryContext(ctx,
		`SELECT parent_id, child_id FROM tag_parents
		 WHERE parent_id = ? OR child_id = ?
		 ORDER BY parent_id, child_id`, tagID, tagID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges for tag %d: %w", tagID, err)
	}
	defer rows.Close()

	var edges []schema.TagEdge
	for rows.Next() {
		var e schema.TagEdge
		if err := rows.Scan(&e.Parent, &e.Child); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate edges: %w", err)
	}
	return edges, nil
}

// FileID returns the entry id for a file name.
// Returns ErrFileNotFound or ErrAmbiguousFile when there isn't exactly one.
func (db *DB) FileID(ctx context.Context, filename string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.readerLocked().QueryContext(ctx,
		`SELECT id FROM entries WHERE filename = ? LIMIT 2`, filename)
	if err != nil {
		return 0, fmt.Errorf("failed to look up file %q: %w", filename, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan entry id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate entries: %w", err)
	}

	switch len(ids) {
	case 0:
		return 0, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
	case 1:
		return ids[0], nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrAmbiguousFile, filename)
	}
}

// InsertEntry adds a file entry. TagStudio normally owns entries; this
// exists for seeding empty libraries.
func (db *DB) InsertEntry(ctx context.Context, filename string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	w, err := db.writerLocked(ctx)
	if err != nil {
		return 0, err
	}
	res, err := w.ExecContext(ctx, `INSERT INTO entries (filename) VALUES (?)`, filename)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entry %q: %w", filename, err)
	}
	return res.LastInsertId()
}

// FileHasTag reports whether the entry carries the tag.
func (db *DB) FileHasTag(ctx context.Context, tagID, entryID int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var one int
	err := db.readerLocked().QueryRowContext(ctx,
		`SELECT 1 FROM tag_entries WHERE tag_id = ? AND entry_id = ?`, tagID, entryID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check tag %d on entry %d: %w", tagID, entryID, err)
	}
	return true, nil
}

// AddTagToFile attaches the tag to the entry. Attaching twice is a no-op.
func (db *DB) AddTagToFile(ctx context.Context, tagID, entryID int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	w, err := db.writerLocked(ctx)
	if err != nil {
		return err
	}
	if _, err := w.ExecContext(ctx,
		`INSERT OR IGNORE INTO tag_entries (tag_id, entry_id) VALUES (?, ?)`, tagID, entryID); err != nil {
		return fmt.Errorf("failed to attach tag %d to entry %d: %w", tagID, entryID, err)
	}
	return nil
}

// EnsureCategories creates any missing category tag, commits, and returns
// the id of every category.
func (db *DB) EnsureCategories(ctx context.Context) (map[schema.Category]int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ids := make(map[schema.Category]int64, len(schema.Categories))
	created := false
	for _, cat := range schema.Categories {
		id, err := db.resolveTagIDLocked(ctx, string(cat))
		if err == nil {
			ids[cat] = id
			continue
		}
		if !errors.Is(err, ErrTagNotFound) {
			return nil, err
		}

		id, err = db.insertTagLocked(ctx, string(cat), schema.CategoryColors[cat], true)
		if err != nil {
			return nil, err
		}
		ids[cat] = id
		created = true
		db.logger.Info("created category tag", "category", cat, "tag_id", id)
	}

	if created {
		tx := db.tx
		db.tx = nil
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit category tags: %w", err)
		}
	}

	return ids, nil
}

// Categories returns the ids of the category tags that exist.
func (db *DB) Categories(ctx context.Context) (map[schema.Category]int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ids := make(map[schema.Category]int64, len(schema.Categories))
	for _, cat := range schema.Categories {
		id, err := db.resolveTagIDLocked(ctx, string(cat))
		if errors.Is(err, ErrTagNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ids[cat] = id
	}
	return ids, nil
}

// Stats summarizes the library contents.
type Stats struct {
	Tags       int `json:"tags" yaml:"tags"`
	Categories int `json:"categories" yaml:"categories"`
	Edges      int `json:"edges" yaml:"edges"`
	Entries    int `json:"entries" yaml:"entries"`
	Tagged     int `json:"tagged_entries" yaml:"tagged_entries"`
}

// GetStats returns row counts for the tables tagsync touches.
func (db *DB) GetStats() (*Stats, error) {
	return db.GetStatsContext(context.Background())
}

// GetStatsContext returns row counts with context support.
func (db *DB) GetStatsContext(ctx context.Context) (*Stats, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	q := db.readerLocked()
	stats := &Stats{}
	counts := []struct {
		dst   *int
		query string
	}{
		{&stats.Tags, `SELECT COUNT(*) FROM tags`},
		{&stats.Categories, `SELECT COUNT(*) FROM tags WHERE is_category = 1`},
		{&stats.Edges, `SELECT COUNT(*) FROM tag_parents`},
		{&stats.Entries, `SELECT COUNT(*) FROM entries`},
		{&stats.Tagged, `SELECT COUNT(DISTINCT entry_id) FROM tag_entries`},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count (%s): %w", c.query, err)
		}
	}
	return stats, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
