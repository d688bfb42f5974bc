package ui

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/mschirtzinger/tagsync/internal/danbooru"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/attach"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/db"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
	tagsync "github.com/mschirtzinger/tagsync/internal/tagstudio/sync"
)

func TestMain(m *testing.M) {
	SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0 Minutes and 0 Seconds", FormatElapsed(0))
	assert.Equal(t, "0 Minutes and 59 Seconds", FormatElapsed(59900*time.Millisecond))
	assert.Equal(t, "61 Minutes and 1 Seconds", FormatElapsed(time.Hour+61*time.Second))
}

func TestSyncSummary(t *testing.T) {
	g := newGoldie(t)

	t.Run("complete", func(t *testing.T) {
		res := &tagsync.Result{
			TagsChecked:       12,
			ImplicationsFound: 7,
			ImplicationsAdded: 5,
			Elapsed:           125 * time.Second,
		}
		g.Assert(t, "sync_complete", []byte(SyncSummary(res, nil)))
	})

	t.Run("aborted", func(t *testing.T) {
		res := &tagsync.Result{
			Skipped:           1,
			TagsChecked:       4,
			ImplicationsFound: 2,
			ImplicationsAdded: 1,
			Remaining: []schema.WorkItem{
				{TagID: 1, TagName: "cloud"}, {TagID: 2, TagName: "sky"}, {TagID: 3, TagName: "sun"},
			},
			Elapsed: 9 * time.Second,
		}
		cause := &danbooru.TransportError{Tag: "cloud", StatusCode: 429, Err: errors.New("Too Many Requests")}
		err := fmt.Errorf("%w: %w", tagsync.ErrRunAborted, cause)
		g.Assert(t, "sync_aborted", []byte(SyncSummary(res, err)))
	})

	t.Run("failed", func(t *testing.T) {
		g.Assert(t, "sync_failed", []byte(SyncSummary(nil, errors.New("open queue: permission denied"))))
	})
}

func TestImportSummary(t *testing.T) {
	res := &attach.Result{
		PostsScanned: 40,
		FilesTagged:  38,
		FilesMissing: 2,
		TagsCreated:  91,
		TagsAttached: 412,
		ItemsQueued:  91,
	}
	newGoldie(t).Assert(t, "import", []byte(ImportSummary(res, time.Minute)))
}

func TestStatus(t *testing.T) {
	report := StatusReport{
		QueuePath:   "/lib/.TagStudio/tags_to_check.jsonl",
		QueueDepth:  3,
		LibraryPath: "/lib/.TagStudio/ts_library.sqlite",
		Stats:       &db.Stats{Tags: 120, Categories: 5, Edges: 140, Entries: 38, Tagged: 36},
	}
	newGoldie(t).Assert(t, "status", []byte(Status(report)))
}

func TestStatusEmptyQueue(t *testing.T) {
	out := Status(StatusReport{QueuePath: "q.jsonl", LibraryPath: "lib.sqlite"})
	assert.NotContains(t, out, "Run 'tagsync implications'")
	assert.NotContains(t, out, "Parent edges")
}

func TestPlainOutputHasNoEscapes(t *testing.T) {
	assert.Equal(t, "ok", RenderPass("ok"))
	assert.Equal(t, "hdr", RenderHeader("hdr"))
	assert.Equal(t, SeparatorLight, RenderSeparator())
}
