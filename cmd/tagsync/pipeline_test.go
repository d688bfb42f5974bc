package main

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tagsync/internal/config"
	"github.com/mschirtzinger/tagsync/internal/logging"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/db"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/queue"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

// setupDatabases writes a downloader database with one post and a library
// holding its file.
func setupDatabases(t *testing.T) (sourcePath, libraryPath string) {
	t.Helper()
	dir := t.TempDir()

	sourcePath = filepath.Join(dir, "danbooru.sqlite")
	conn, err := sql.Open("sqlite3", "file:"+sourcePath)
	require.NoError(t, err)
	_, err = conn.Exec(`CREATE TABLE posts (
		post_id INTEGER PRIMARY KEY,
		tag_string_general TEXT,
		tag_string_character TEXT,
		tag_string_copyright TEXT,
		tag_string_meta TEXT,
		tag_string_artist TEXT,
		rating TEXT,
		file_ext TEXT
	)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO posts VALUES (1, 'blue_sky sky', '', '', '', '', 'g', 'jpg')`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	libraryPath = filepath.Join(dir, "library", ".TagStudio", "ts_library.sqlite")
	lib, err := db.Create(libraryPath)
	require.NoError(t, err)
	_, err = lib.InsertEntry(context.Background(), "Danbooru_1.jpg")
	require.NoError(t, err)
	require.NoError(t, lib.Commit())
	require.NoError(t, lib.Close())

	return sourcePath, libraryPath
}

func danbooruServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("search[name_matches]") == "blue_sky" {
			_, _ = w.Write([]byte(`[{"id":1,"antecedent_name":"blue_sky","consequent_name":"sky","status":"active"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)
	return server
}

func testPipeline(t *testing.T, baseURL string) (*pipeline, *bytes.Buffer) {
	t.Helper()
	sourcePath, libraryPath := setupDatabases(t)

	var out bytes.Buffer
	return &pipeline{
		cfg: &config.Config{
			SourcePath:   sourcePath,
			LibraryPath:  libraryPath,
			QueueFile:    queue.DefaultFileName,
			Colors:       schema.DefaultTagColors,
			RateInterval: time.Millisecond,
			RateBurst:    1,
			Concurrency:  2,
			BaseURL:      baseURL,
			HTTPTimeout:  5 * time.Second,
			UserAgent:    "tagsync-test",
			ChunkSize:    10,
		},
		logger: logging.Discard(),
		out:    &out,
	}, &out
}

func TestPipelineImportThenSync(t *testing.T) {
	server := danbooruServer(t, http.StatusOK)
	p, out := testPipeline(t, server.URL)
	ctx := context.Background()

	imported, err := p.importTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, imported.FilesTagged)
	assert.Equal(t, 3, imported.TagsCreated, "blue_sky, sky and rating:g")
	assert.Equal(t, 3, imported.ItemsQueued)
	assert.Contains(t, out.String(), "Import complete")

	synced, err := p.syncImplications(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, synced.TagsChecked)
	assert.Equal(t, 1, synced.ImplicationsAdded)
	assert.Empty(t, synced.Remaining)
	assert.Contains(t, out.String(), "Implication sync complete")

	lib, err := db.Open(p.cfg.LibraryPath)
	require.NoError(t, err)
	defer lib.Close()
	blue, err := lib.ResolveTagID(ctx, "blue_sky")
	require.NoError(t, err)
	sky, err := lib.ResolveTagID(ctx, "sky")
	require.NoError(t, err)
	has, err := lib.TagHasEdge(ctx, blue, sky)
	require.NoError(t, err)
	assert.True(t, has)

	n, err := queue.New(p.cfg.QueuePath(), nil).Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipelineAbortIsNotAnError(t *testing.T) {
	server := danbooruServer(t, http.StatusTooManyRequests)
	p, out := testPipeline(t, server.URL)
	ctx := context.Background()

	_, err := p.importTags(ctx)
	require.NoError(t, err)

	synced, err := p.syncImplications(ctx, 1)
	require.NoError(t, err)
	assert.True(t, synced.Aborted)
	assert.Len(t, synced.Remaining, 3)
	assert.Contains(t, out.String(), "Implication sync aborted")
	assert.Contains(t, out.String(), "--conservative")

	n, err := queue.New(p.cfg.QueuePath(), nil).Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPipelineRequiresPaths(t *testing.T) {
	p := &pipeline{cfg: &config.Config{}, logger: logging.Discard(), out: &bytes.Buffer{}}

	_, err := p.importTags(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingPaths)

	_, err = p.syncImplications(context.Background(), 1)
	assert.ErrorIs(t, err, config.ErrMissingPaths)
}

func TestPipelineMissingLibrary(t *testing.T) {
	p := &pipeline{
		cfg:    &config.Config{LibraryPath: filepath.Join(t.TempDir(), "missing.sqlite")},
		logger: logging.Discard(),
		out:    &bytes.Buffer{},
	}
	_, err := p.syncImplications(context.Background(), 1)
	assert.ErrorIs(t, err, db.ErrLibraryNotFound)
}

func TestPipelineDashboardObserver(t *testing.T) {
	server := danbooruServer(t, http.StatusOK)
	p, out := testPipeline(t, server.URL)

	stop, err := p.startDashboard(0)
	require.NoError(t, err)
	defer stop()
	require.Len(t, p.observers, 1)
	assert.Contains(t, out.String(), "Dashboard on http://localhost:")

	_, err = p.importTags(context.Background())
	require.NoError(t, err)
	_, err = p.syncImplications(context.Background(), 1)
	require.NoError(t, err)
}
