// Package queue persists the implication work queue as newline-delimited JSON.
//
// The queue file is the hand-off point between the tag-attachment step, which
// appends a line for every tag it creates, and the implication scheduler, which
// loads the file at startup and rewrites it with whatever is still unresolved
// when it stops. Because the file survives process termination, a killed run
// loses nothing that had already been appended.
//
// Format, one WorkItem per line:
//
//	{"tag_id":10,"tag":"blue_sky"}
//	{"tag_id":11,"tag":"red_hair"}
package queue

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

// DefaultFileName is the queue file name used when none is configured.
const DefaultFileName = "tags_to_check.jsonl"

// maxLineSize bounds a single queue line. Tag names are short; anything
// longer than this is corrupt.
const maxLineSize = 1 << 20

// ErrMalformedItem marks a queue line that could not be decoded.
var ErrMalformedItem = errors.New("malformed work item")

// File is a work queue backed by a JSONL file.
//
// File serializes its own operations. Concurrent use by two processes is not
// supported.
type File struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// LoadResult is the outcome of reading the queue file.
type LoadResult struct {
	// Items are the decoded work items in file order, duplicates preserved.
	Items []schema.WorkItem

	// Skipped counts lines that were malformed and dropped.
	Skipped int
}

// New returns a queue bound to path. The file is not touched until an
// operation needs it.
//
// If logger is nil, slog.Default() is used.
func New(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{
		path:   path,
		logger: logger.With("component", "queue"),
	}
}

// Path returns the queue file location.
func (f *File) Path() string {
	return f.path
}

// EnsureExists creates an empty queue file if none exists.
func (f *File) EnsureExists() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.ensureExistsLocked()
}

func (f *File) ensureExistsLocked() error {
	if _, err := os.Stat(f.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat queue file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	// O_EXCL: another process may have created it since the stat
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to create queue file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close queue file: %w", err)
	}

	f.logger.Debug("created queue file", "path", f.path)
	return nil
}

// Append adds items to the end of the queue in a single write and syncs the
// file before returning. An empty batch is a no-op.
func (f *File) Append(items ...schema.WorkItem) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("invalid work item %s: %w", item, err)
		}
		line, err := item.MarshalLine()
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureExistsLocked(); err != nil {
		return err
	}

	// #nosec G304 - configured queue path
	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open queue file: %w", err)
	}
	defer file.Close()

	// A previous run killed mid-write can leave a partial last line.
	// Terminate it so the new items start on their own line.
	needsNewline, err := missingTrailingNewline(file)
	if err != nil {
		return err
	}
	if needsNewline {
		f.logger.Warn("queue file has an unterminated last line", "path", f.path)
		if _, err := file.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("failed to terminate queue file: %w", err)
		}
	}

	if _, err := file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to queue file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync queue file: %w", err)
	}

	return nil
}

// missingTrailingNewline reports whether a non-empty file ends without '\n'.
func missingTrailingNewline(file *os.File) (bool, error) {
	info, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat queue file: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}

	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read queue file: %w", err)
	}
	return last[0] != '\n', nil
}

// Load reads every item from the queue file in order.
//
// A missing file is an empty queue. Blank lines are ignored. Lines that cannot
// be decoded are logged and counted in LoadResult.Skipped; they do not stop
// the load.
func (f *File) Load() (*LoadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := &LoadResult{}

	// #nosec G304 - configured queue path
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to open queue file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		item, err := schema.ParseWorkItem(line)
		if err != nil {
			f.logger.Warn("skipping queue line",
				"line", lineNum,
				"error", fmt.Errorf("%w: %v", ErrMalformedItem, err))
			result.Skipped++
			continue
		}

		result.Items = append(result.Items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue file at line %d: %w", lineNum+1, err)
	}

	return result, nil
}

// Len returns the number of decodable items in the queue.
func (f *File) Len() (int, error) {
	result, err := f.Load()
	if err != nil {
		return 0, err
	}
	return len(result.Items), nil
}

// Rewrite replaces the queue contents with items.
//
// The new contents are written to a temporary file next to the queue and
// renamed over it, so a crash during the rewrite leaves either the old or the
// new queue, never a truncated one. With no items the result is an empty file.
func (f *File) Rewrite(items []schema.WorkItem) error {
	var buf bytes.Buffer
	for _, item := range items {
		line, err := item.MarshalLine()
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmpPath := f.path + ".tmp"
	// #nosec G304 - configured queue path
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp queue file: %w", err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp queue file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp queue file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace queue file: %w", err)
	}

	f.logger.Debug("rewrote queue file", "path", f.path, "items", len(items))
	return nil
}
