package sync_test

import (
	"context"
	"fmt"
	"log"

	"github.com/mschirtzinger/tagsync/internal/danbooru"
	"github.com/mschirtzinger/tagsync/internal/ratelimit"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/db"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/graph"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/queue"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/sync"
)

// This example drains the queue against the public Danbooru API.
// Note: This is for documentation only and won't run as a test.
func ExampleScheduler_Run() {
	library, err := db.Open("ts_library.sqlite")
	if err != nil {
		log.Fatal(err)
	}
	defer library.Close()

	s := sync.New(sync.Options{
		Queue:     queue.New(queue.DefaultFileName, nil),
		Authority: danbooru.NewClient(),
		Governor:  ratelimit.New(ratelimit.DefaultInterval, 1),
		Writer:    graph.NewWriter(library),
	})

	result, err := s.Run(context.Background())
	if err != nil && !sync.IsSafeAbort(err) {
		log.Fatal(err)
	}

	fmt.Printf("%d tags checked, %d implications added, %d left\n",
		result.TagsChecked, result.ImplicationsAdded, len(result.Remaining))
}

// This example retries an aborted run with a single worker.
func ExampleIsAborted() {
	library, err := db.Open("ts_library.sqlite")
	if err != nil {
		log.Fatal(err)
	}
	defer library.Close()

	opts := sync.Options{
		Queue:     queue.New(queue.DefaultFileName, nil),
		Authority: danbooru.NewClient(),
		Governor:  ratelimit.New(ratelimit.DefaultInterval, 1),
		Writer:    graph.NewWriter(library),
	}

	_, err = sync.New(opts).Run(context.Background())
	if sync.IsAborted(err) && danbooru.IsRateLimited(err) {
		opts.Concurrency = sync.ConservativeConcurrency
		_, err = sync.New(opts).Run(context.Background())
	}
	if err != nil {
		log.Fatal(err)
	}
}
