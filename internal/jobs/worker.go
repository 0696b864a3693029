package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"docpress/internal/notify"
	"docpress/internal/queue"
	"docpress/internal/registry"
	"docpress/internal/render"
)

type Queue interface {
	Push(ctx context.Context, m queue.Message) error
	PushDelayed(ctx context.Context, m queue.Message, delay time.Duration) error
	Pop(ctx context.Context) ([]byte, error)
	PromoteDue(ctx context.Context, now time.Time) (int, error)
}

type Renderer interface {
	Render(ctx context.Context, req render.Request) ([]byte, error)
}

type ObjectStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	Bucket() string
}

type Notifier interface {
	TerminalFailure(e notify.Event)
}

type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Worker consumes queue messages one at a time. Run more processes for
// throughput; the claim step keeps them from stepping on each other.
type Worker struct {
	ID       string
	Store    Store
	Queue    Queue
	Renderer Renderer
	Objects  ObjectStore
	Notifier Notifier
	Registry *registry.Registry
	Backoff  Backoff
	Log      *logrus.Logger
}

func (w *Worker) Run(ctx context.Context) {
	for {
		raw, err := w.Queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.WithError(err).Error("queue pop failed")
			time.Sleep(time.Second)
			continue
		}
		w.Handle(ctx, raw)
	}
}

// RunPromoter moves due delayed retries back onto the queue.
func (w *Worker) RunPromoter(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Queue.PromoteDue(ctx, time.Now()); err != nil {
				w.Log.WithError(err).Error("promote due retries failed")
			}
		}
	}
}

// Handle runs the per-message state machine:
// parse → load → claim → render → upload → ready | retry | failed.
// Every drop path leaves the job row as the source of truth.
func (w *Worker) Handle(ctx context.Context, raw []byte) {
	msg, err := queue.Decode(raw)
	if err != nil {
		w.Log.WithFields(logrus.Fields{"worker": w.ID, "raw_len": len(raw)}).
			Warn("dropping malformed queue message")
		return
	}

	log := w.Log.WithFields(logrus.Fields{
		"worker": w.ID,
		"job_id": msg.JobID,
		"doc_id": msg.DocID,
	})

	job, err := w.Store.GetJob(ctx, msg.JobID)
	if err != nil {
		// Row untouched, still queued: the stale-queued sweep re-pushes it.
		log.WithError(err).Error("job load failed, dropping message")
		return
	}
	if job == nil {
		log.Debug("dropping message for unknown job")
		return
	}

	claimed, err := w.Store.Claim(ctx, job.ID)
	if err != nil {
		log.WithError(err).Error("claim failed, dropping message")
		return
	}
	if !claimed {
		// Another worker won, or the job already advanced.
		log.Debug("job already claimed, dropping message")
		return
	}

	w.execute(ctx, job, msg, log)
}

func (w *Worker) execute(ctx context.Context, job *RenderJob, msg queue.Message, log *logrus.Entry) {
	body, err := w.Renderer.Render(ctx, *msg.RenderRequest)
	if err != nil {
		code, retryable := Classify(err)
		w.fail(ctx, job, msg, code, err.Error(), retryable, log)
		return
	}

	key := ObjectKey(job.ID, job.DocID)
	if err := w.Objects.Upload(ctx, key, body, "application/pdf"); err != nil {
		w.fail(ctx, job, msg, CodeStorageError, err.Error(), true, log)
		return
	}

	kind := job.DocID
	if doc, ok := w.Registry.Lookup(job.DocID); ok {
		kind = doc.Kind
	}

	fileID, err := w.Store.MarkReady(ctx, job.ID, ArtifactSpec{
		Kind:        kind,
		Format:      "pdf",
		PackID:      job.PackID,
		DocID:       job.DocID,
		Bucket:      w.Objects.Bucket(),
		ObjectKey:   key,
		ContentType: "application/pdf",
		SizeBytes:   int64(len(body)),
	})
	if err != nil {
		// The claim is held but we could not commit. Do not requeue from
		// here: a duplicate artifact is worse than a stuck rendering row
		// an operator can requeue.
		log.WithError(err).Error("mark ready failed, job left in rendering")
		return
	}

	log.WithField("file_id", fileID).Info("render job ready")
}

func (w *Worker) fail(ctx context.Context, job *RenderJob, msg queue.Message, code, errMsg string, retryable bool, log *logrus.Entry) {
	attempts := job.Attempts + 1
	lastError := code + ": " + errMsg

	switch Decide(attempts, job.MaxAttempts, retryable) {
	case DispositionFail:
		if err := w.Store.MarkFailed(ctx, job.ID, attempts, lastError); err != nil {
			log.WithError(err).Error("mark failed failed")
			return
		}
		w.Notifier.TerminalFailure(notify.Event{
			JobID:    job.ID,
			PackID:   job.PackID,
			DocID:    job.DocID,
			Code:     code,
			Message:  errMsg,
			Attempts: attempts,
		})
		log.WithFields(logrus.Fields{"code": code, "attempts": attempts}).
			Warn("render job failed terminally")

	case DispositionRetry:
		// Commit the row first; the delayed push is the externally
		// observable effect.
		if err := w.Store.MarkRetry(ctx, job.ID, attempts, lastError); err != nil {
			log.WithError(err).Error("mark retry failed")
			return
		}
		delay := BackoffDelay(attempts, w.Backoff.Base, w.Backoff.Cap)
		if err := w.Queue.PushDelayed(ctx, msg, delay); err != nil {
			// Row is queued; the sweep will re-push it.
			log.WithError(err).Error("delayed push failed")
			return
		}
		log.WithFields(logrus.Fields{"code": code, "attempts": attempts, "delay": delay.String()}).
			Info("render job scheduled for retry")
	}
}

// ObjectKey is the storage layout convention for render output.
func ObjectKey(jobID, docID string) string {
	return fmt.Sprintf("renders/%s/%s.pdf", jobID, docID)
}
