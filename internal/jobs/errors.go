package jobs

import "errors"

var (
	// ErrDocumentDisabled: the registry says this doc cannot be rendered
	// for the pack right now (disabled or tier-locked).
	ErrDocumentDisabled = errors.New("DOCUMENT_DISABLED")

	// ErrPushFailed: the job row committed but the queue push did not.
	// The row stays queued; the reconciliation sweep re-pushes it.
	ErrPushFailed = errors.New("ENQUEUE_PUSH_FAILED")

	// ErrNotFailed: requeue is only allowed for failed jobs.
	ErrNotFailed = errors.New("job is not failed")

	ErrNotFound = errors.New("not found")
)
