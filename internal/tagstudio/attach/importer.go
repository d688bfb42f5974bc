// Package attach copies downloader tags onto TagStudio entries.
//
// For every post the Importer attaches the post's tags, one category group at
// a time, to the library entry with the same file name. Tags missing from the
// library are created with the category's color and linked under the
// category tag. Each group is committed on its own, and only after the commit
// are the newly created tags appended to the implication work queue.
package attach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/db"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

// PostSource yields downloader posts. *source.Reader satisfies it.
type PostSource interface {
	Scan(ctx context.Context, fn func(schema.PostData) error) error
}

// Queue receives newly created tags. *queue.File satisfies it.
type Queue interface {
	Append(items ...schema.WorkItem) error
}

// Options configures an Importer.
type Options struct {
	// Colors per category for new tags (default: schema.DefaultTagColors).
	Colors map[schema.Category]schema.Color

	// Logger (default: slog.Default()).
	Logger *slog.Logger
}

// Result counts what an import did.
type Result struct {
	PostsScanned int `json:"posts_scanned"`
	FilesTagged  int `json:"files_tagged"`
	FilesMissing int `json:"files_missing"`
	TagsCreated  int `json:"tags_created"`
	TagsAttached int `json:"tags_attached"`
	ItemsQueued  int `json:"items_queued"`
}

// Importer attaches source tags to library entries.
type Importer struct {
	lib    *db.DB
	queue  Queue
	colors map[schema.Category]schema.Color
	logger *slog.Logger

	categories map[schema.Category]int64
}

// New creates an Importer writing to lib and queueing new tags on q.
func New(lib *db.DB, q Queue, opts Options) *Importer {
	colors := make(map[schema.Category]schema.Color, len(schema.Categories))
	for _, cat := range schema.Categories {
		colors[cat] = schema.DefaultTagColors[cat]
		if c, ok := opts.Colors[cat]; ok {
			colors[cat] = c
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Importer{
		lib:    lib,
		queue:  q,
		colors: colors,
		logger: opts.Logger.With("component", "attach"),
	}
}

// Run attaches the tags of every post in src. It stops at the first
// database or queue error, and between posts when ctx is done.
func (im *Importer) Run(ctx context.Context, src PostSource) (*Result, error) {
	categories, err := im.lib.EnsureCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare category tags: %w", err)
	}
	im.categories = categories

	result := &Result{}
	err = src.Scan(ctx, func(post schema.PostData) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.PostsScanned++
		return im.importPost(ctx, post, result)
	})
	if err != nil {
		return result, err
	}

	im.logger.Info("import complete",
		"posts", result.PostsScanned,
		"files_tagged", result.FilesTagged,
		"tags_created", result.TagsCreated,
		"queued", result.ItemsQueued)
	return result, nil
}

func (im *Importer) importPost(ctx context.Context, post schema.PostData, result *Result) error {
	groups := post.TagGroups()
	if len(groups) == 0 {
		return nil
	}

	entryID, err := im.lib.FileID(ctx, post.FileName)
	if errors.Is(err, db.ErrFileNotFound) || errors.Is(err, db.ErrAmbiguousFile) {
		im.logger.Warn("skipping post", "post_id", post.PostID, "reason", err)
		result.FilesMissing++
		return nil
	}
	if err != nil {
		return err
	}

	tagged := false
	for _, g := range groups {
		attached, err := im.attachGroup(ctx, entryID, g, result)
		if err != nil {
			if rbErr := im.lib.Rollback(); rbErr != nil {
				im.logger.Error("rollback failed", "error", rbErr)
			}
			return fmt.Errorf("failed to attach %s tags to %s: %w", g.Category, post.FileName, err)
		}
		tagged = tagged || attached
	}
	if tagged {
		result.FilesTagged++
	}
	return nil
}

// attachGroup attaches one category group and reports whether it did. A file
// that already carries the group's first tag is assumed done.
func (im *Importer) attachGroup(ctx context.Context, entryID int64, g schema.TagGroup, result *Result) (bool, error) {
	categoryID, ok := im.categories[g.Category]
	if !ok {
		return false, nil
	}

	firstID, err := im.lib.ResolveTagID(ctx, g.Tags[0])
	switch {
	case err == nil:
		has, err := im.lib.FileHasTag(ctx, firstID, entryID)
		if err != nil {
			return false, err
		}
		if has {
			return false, nil
		}
	case !errors.Is(err, db.ErrTagNotFound):
		return false, err
	}

	var created []schema.WorkItem
	for _, name := range g.Tags {
		tagID, err := im.lib.ResolveTagID(ctx, name)
		if errors.Is(err, db.ErrTagNotFound) {
			tagID, err = im.lib.InsertTag(ctx, name, im.colors[g.Category], false)
			if err != nil {
				return false, err
			}
			if err := im.lib.InsertEdge(ctx, tagID, categoryID); err != nil {
				return false, err
			}
			created = append(created, schema.WorkItem{TagID: tagID, TagName: name})
		} else if err != nil {
			return false, err
		}

		if err := im.lib.AddTagToFile(ctx, tagID, entryID); err != nil {
			return false, err
		}
		result.TagsAttached++
	}

	if err := im.lib.Commit(); err != nil {
		return false, err
	}
	result.TagsCreated += len(created)

	// A kill between the commit above and this append loses these items.
	if len(created) > 0 {
		if err := im.queue.Append(created...); err != nil {
			return true, fmt.Errorf("failed to queue %d new tags: %w", len(created), err)
		}
		result.ItemsQueued += len(created)
	}
	return true, nil
}
