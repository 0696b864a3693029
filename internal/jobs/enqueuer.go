package jobs

import (
	"context"

	"github.com/sirupsen/logrus"

	"docpress/internal/queue"
	"docpress/internal/registry"
	"docpress/internal/render"
)

// Enqueuer creates job rows and pushes their queue messages. The insert
// and the push are not atomic: a push failure leaves an orphaned queued
// row that the reconciliation sweep re-pushes later.
type Enqueuer struct {
	Store       Store
	Queue       Queue
	Registry    *registry.Registry
	MaxAttempts int
	Log         *logrus.Logger
}

type EnqueueResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// BuildMessage rebuilds the queue message from the job row snapshot.
// Requeue and the sweeper depend on this needing nothing but the row.
func BuildMessage(job *RenderJob) queue.Message {
	return queue.Message{
		JobID:     job.ID,
		PackID:    job.PackID,
		SessionID: job.SessionID,
		DocID:     job.DocID,
		RenderRequest: &render.Request{
			DocID:    job.DocID,
			Title:    job.Title,
			Sections: job.Sections,
			Meta: map[string]string{
				"pack_id":    job.PackID,
				"session_id": job.SessionID,
			},
		},
	}
}

// EnqueueAll creates one queued job per eligible document that has no
// active job yet for this pack.
func (e *Enqueuer) EnqueueAll(ctx context.Context, packID string) (EnqueueResult, error) {
	var res EnqueueResult

	pack, err := e.Store.GetPack(ctx, packID)
	if err != nil {
		return res, err
	}
	if pack == nil {
		return res, ErrNotFound
	}

	for _, doc := range e.Registry.Visible(registry.Tier(pack.Tier)) {
		active, err := e.Store.HasActiveJob(ctx, pack.ID, doc.DocID)
		if err != nil {
			return res, err
		}
		if active {
			res.Skipped++
			continue
		}

		job := e.newJob(pack, doc)
		if err := e.Store.CreateJob(ctx, job); err != nil {
			return res, err
		}
		res.Created++

		if err := e.Queue.Push(ctx, BuildMessage(job)); err != nil {
			// Row committed, push lost: the sweep picks it up.
			e.Log.WithFields(logrus.Fields{"job_id": job.ID, "doc_id": doc.DocID}).
				WithError(err).Error("queue push failed, job left queued")
		}
	}
	return res, nil
}

// EnqueueOne always creates a new job (regeneration); the status
// listing only ever reports the latest job per doc, so prior jobs are
// superseded for display.
func (e *Enqueuer) EnqueueOne(ctx context.Context, packID, docID string) (*RenderJob, error) {
	pack, err := e.Store.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	if pack == nil {
		return nil, ErrNotFound
	}

	doc, ok := e.Registry.Lookup(docID)
	if !ok || !e.Registry.Eligible(docID, registry.Tier(pack.Tier)) {
		return nil, ErrDocumentDisabled
	}

	job := e.newJob(pack, doc)
	if err := e.Store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if err := e.Queue.Push(ctx, BuildMessage(job)); err != nil {
		e.Log.WithField("job_id", job.ID).WithError(err).Error("queue push failed, job left queued")
		return job, ErrPushFailed
	}
	return job, nil
}

// RequeueFailed resets one failed job and pushes a fresh message.
// Rejected for any other status.
func (e *Enqueuer) RequeueFailed(ctx context.Context, jobID string) error {
	job, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}

	ok, err := e.Store.Requeue(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFailed
	}

	if err := e.Queue.Push(ctx, BuildMessage(job)); err != nil {
		e.Log.WithField("job_id", job.ID).WithError(err).Error("queue push failed, job left queued")
		return ErrPushFailed
	}
	return nil
}

// RequeueAllFailed requeues every failed job of a pack and returns how
// many it touched.
func (e *Enqueuer) RequeueAllFailed(ctx context.Context, packID string) (int, error) {
	failed, err := e.Store.FailedJobs(ctx, packID)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range failed {
		if err := e.RequeueFailed(ctx, failed[i].ID); err != nil {
			if err == ErrNotFailed {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (e *Enqueuer) newJob(pack *Pack, doc registry.Document) *RenderJob {
	return &RenderJob{
		PackID:      pack.ID,
		SessionID:   pack.SessionID,
		DocID:       doc.DocID,
		Title:       doc.Title,
		Sections:    doc.Sections,
		Status:      StatusQueued,
		Attempts:    0,
		MaxAttempts: e.MaxAttempts,
	}
}
