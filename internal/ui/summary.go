package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/tagsync/internal/danbooru"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/attach"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/db"
	tagsync "github.com/mschirtzinger/tagsync/internal/tagstudio/sync"
)

// FormatElapsed renders a duration as "M Minutes and S Seconds".
func FormatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%d Minutes and %d Seconds", secs/60, secs%60)
}

func row(b *strings.Builder, label string, value any) {
	fmt.Fprintf(b, "  %-20s %v\n", label+":", value)
}

// SyncSummary renders the end-of-run summary of an implication sync.
// err is the error Run returned.
func SyncSummary(result *tagsync.Result, err error) string {
	var b strings.Builder

	switch {
	case err == nil:
		fmt.Fprintf(&b, "%s %s\n", RenderPass(IconPass), RenderHeader("Implication sync complete"))
	case tagsync.IsAborted(err):
		fmt.Fprintf(&b, "%s %s\n", RenderWarn(IconWarn), RenderHeader("Implication sync aborted"))
	default:
		fmt.Fprintf(&b, "%s %s\n", RenderFail(IconFail), RenderHeader("Implication sync failed"))
	}

	if result != nil {
		row(&b, "Tags checked", result.TagsChecked)
		row(&b, "Implications found", result.ImplicationsFound)
		row(&b, "Implications added", result.ImplicationsAdded)
		row(&b, "Remaining in queue", len(result.Remaining))
		if result.Skipped > 0 {
			row(&b, "Malformed lines", result.Skipped)
		}
		row(&b, "Elapsed", FormatElapsed(result.Elapsed))
	}

	if err == nil {
		return b.String()
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s\n", RenderMuted(err.Error()))

	if tagsync.IsAborted(err) {
		b.WriteString("\n")
		switch {
		case !tagsync.IsSafeAbort(err):
			b.WriteString("  The remaining queue could not be saved.\n")
		case result != nil:
			fmt.Fprintf(&b, "  Progress is saved: %d tags remain in the queue.\n", len(result.Remaining))
		}
		if danbooru.IsRateLimited(err) {
			b.WriteString("  Danbooru is rate limiting requests.\n")
		}
		b.WriteString("  Wait a while, then run again with --conservative to check one tag at a time.\n")
	}
	return b.String()
}

// ImportSummary renders the result of the tag attachment step.
func ImportSummary(result *attach.Result, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", RenderPass(IconPass), RenderHeader("Import complete"))
	row(&b, "Posts scanned", result.PostsScanned)
	row(&b, "Files tagged", result.FilesTagged)
	if result.FilesMissing > 0 {
		row(&b, "Files not in library", result.FilesMissing)
	}
	row(&b, "Tags created", result.TagsCreated)
	row(&b, "Tags attached", result.TagsAttached)
	row(&b, "Queued for sync", result.ItemsQueued)
	row(&b, "Elapsed", FormatElapsed(elapsed))
	return b.String()
}

// StatusReport holds what `tagsync status` prints.
type StatusReport struct {
	QueuePath   string    `json:"queue_path"`
	QueueDepth  int       `json:"queue_depth"`
	LibraryPath string    `json:"library_path"`
	Stats       *db.Stats `json:"stats,omitempty"`
}

// Status renders a status report.
func Status(r StatusReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", RenderAccent(IconInfo), RenderHeader("tagsync status"))
	b.WriteString(RenderSeparator() + "\n")
	row(&b, "Queue file", r.QueuePath)
	row(&b, "Tags queued", r.QueueDepth)
	row(&b, "Library", r.LibraryPath)
	if r.Stats != nil {
		row(&b, "Tags", r.Stats.Tags)
		row(&b, "Category tags", r.Stats.Categories)
		row(&b, "Parent edges", r.Stats.Edges)
		row(&b, "Entries", r.Stats.Entries)
		row(&b, "Tagged entries", r.Stats.Tagged)
	}
	if r.QueueDepth > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "  %s\n", RenderMuted("Run 'tagsync implications' to process the queue."))
	}
	return b.String()
}
