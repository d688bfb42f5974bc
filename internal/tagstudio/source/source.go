// Package source reads posts from a Danbooru downloader database.
//
// The downloader keeps one row per post in a posts table with one
// whitespace separated tag string per category. Reader scans that table in
// post id order, a chunk at a time, and turns each row into a
// schema.PostData with the file name TagStudio knows the download by.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

// DefaultChunkSize is the number of posts fetched per query.
const DefaultChunkSize = 200

// ErrSourceNotFound is returned by Open when the database file is missing.
var ErrSourceNotFound = errors.New("danbooru downloader database not found")

// Options configures a Reader.
type Options struct {
	// ChunkSize is the number of posts per query (default: 200).
	ChunkSize int

	// UgoiraAsWebp maps zip downloads (ugoira animations) to the .webp file
	// the downloader converted them to.
	UgoiraAsWebp bool

	// Logger (default: slog.Default()).
	Logger *slog.Logger
}

// Reader scans the posts table of a downloader database.
type Reader struct {
	conn   *sql.DB
	path   string
	opts   Options
	logger *slog.Logger
}

// Open opens the downloader database read-only.
//
// The caller MUST call Close() when done.
func Open(path string, opts Options) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if opts.ChunkSize < 1 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to source database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Reader{
		conn:   conn,
		path:   path,
		opts:   opts,
		logger: opts.Logger.With("component", "source"),
	}, nil
}

// Close closes the connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// Path returns the database file path.
func (r *Reader) Path() string {
	return r.path
}

// Chunk returns up to ChunkSize posts with an id greater than afterID, in
// ascending id order. An empty result means the scan is finished.
func (r *Reader) Chunk(ctx context.Context, afterID int64) ([]schema.PostData, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT post_id, tag_string_general, tag_string_character, tag_string_copyright,
		       tag_string_meta, tag_string_artist, rating, file_ext
		FROM posts
		WHERE post_id > ?
		ORDER BY post_id ASC
		LIMIT ?
	`, afterID, r.opts.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts after %d: %w", afterID, err)
	}
	defer rows.Close()

	var posts []schema.PostData
	for rows.Next() {
		var (
			id                                          int64
			general, character, copyright, meta, artist sql.NullString
			rating, ext                                 sql.NullString
		)
		if err := rows.Scan(&id, &general, &character, &copyright, &meta, &artist, &rating, &ext); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		posts = append(posts, schema.PostData{
			PostID:   id,
			FileName: r.FileName(id, ext.String),
			Tags: map[schema.Category][]string{
				schema.CategoryArtist:    schema.SplitTagString(artist.String),
				schema.CategoryCopyright: schema.SplitTagString(copyright.String),
				schema.CategoryCharacter: schema.SplitTagString(character.String),
				schema.CategoryGeneral:   schema.SplitTagString(general.String),
				schema.CategoryMeta:      schema.SplitTagString(meta.String),
			},
			Rating: rating.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// Scan calls fn for every post in id order. It stops at the first error
// from fn or when ctx is done.
func (r *Reader) Scan(ctx context.Context, fn func(schema.PostData) error) error {
	var last int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		posts, err := r.Chunk(ctx, last)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			return nil
		}

		r.logger.Debug("read chunk", "after", last, "posts", len(posts))
		for _, p := range posts {
			if err := fn(p); err != nil {
				return err
			}
		}
		last = posts[len(posts)-1].PostID
	}
}

// Count returns the number of posts in the database.
func (r *Reader) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// FileName returns the name the downloader saved a post under.
func (r *Reader) FileName(postID int64, ext string) string {
	if r.opts.UgoiraAsWebp && strings.EqualFold(ext, "zip") {
		ext = "webp"
	}
	return fmt.Sprintf("Danbooru_%d.%s", postID, ext)
}
