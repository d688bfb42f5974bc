package sync

import "errors"

var (
	// ErrRunAborted wraps the failure that stopped a run early.
	ErrRunAborted = errors.New("implication sync aborted")

	// ErrAlreadyStarted is returned when Run is called twice on one Scheduler.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrQueueNotPersisted is joined to the run error when the remaining
	// items could not be written back to the queue file.
	ErrQueueNotPersisted = errors.New("failed to persist remaining queue")
)

// IsAborted reports whether err came from a run that stopped early.
func IsAborted(err error) bool {
	return errors.Is(err, ErrRunAborted)
}

// IsSafeAbort reports whether err is an abort whose remaining work was saved.
func IsSafeAbort(err error) bool {
	return IsAborted(err) && !errors.Is(err, ErrQueueNotPersisted)
}
