package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"docpress/internal/notify"
	"docpress/internal/queue"
	"docpress/internal/render"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// In-memory doubles with the same claim semantics as the Postgres repo.

type fakeStore struct {
	mu        sync.Mutex
	packs     map[string]*Pack
	jobs      map[string]*RenderJob
	artifacts map[string]*Artifact
	files     map[string]*ArtifactFile

	artifactsByJob map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		packs:          map[string]*Pack{},
		jobs:           map[string]*RenderJob{},
		artifacts:      map[string]*Artifact{},
		files:          map[string]*ArtifactFile{},
		artifactsByJob: map[string]int{},
	}
}

func (s *fakeStore) addPack(p *Pack) { s.packs[p.ID] = p }

func (s *fakeStore) addJob(j *RenderJob) {
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = time.Now()
	}
	s.jobs[j.ID] = j
}

func (s *fakeStore) GetPack(_ context.Context, id string) (*Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packs[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (*RenderJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) CreateJob(_ context.Context, job *RenderJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", len(s.jobs)+1)
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeStore) HasActiveJob(_ context.Context, packID, docID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.PackID == packID && j.DocID == docID && j.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) Claim(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status != StatusQueued {
		return false, nil
	}
	j.Status = StatusRendering
	j.UpdatedAt = time.Now()
	return true, nil
}

func (s *fakeStore) MarkReady(_ context.Context, jobID string, spec ArtifactSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status != StatusRendering {
		return "", errors.New("job not rendering")
	}

	meta, _ := json.Marshal(ArtifactMeta{PackID: spec.PackID, DocID: spec.DocID, RenderJobID: jobID})
	artID := fmt.Sprintf("art-%d", len(s.artifacts)+1)
	fileID := fmt.Sprintf("file-%d", len(s.files)+1)
	s.artifacts[artID] = &Artifact{ID: artID, Kind: spec.Kind, Format: spec.Format, Meta: meta}
	s.files[fileID] = &ArtifactFile{
		ID: fileID, ArtifactID: artID,
		Bucket: spec.Bucket, ObjectKey: spec.ObjectKey,
		ContentType: spec.ContentType, SizeBytes: spec.SizeBytes,
	}
	s.artifactsByJob[jobID]++

	j.Status = StatusReady
	j.LastError = nil
	j.UpdatedAt = time.Now()
	return fileID, nil
}

func (s *fakeStore) MarkRetry(_ context.Context, jobID string, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status != StatusRendering {
		return nil
	}
	j.Status = StatusQueued
	j.Attempts = attempts
	j.LastError = &lastError
	j.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, jobID string, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status != StatusRendering {
		return nil
	}
	j.Status = StatusFailed
	j.Attempts = attempts
	j.LastError = &lastError
	j.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) Requeue(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status != StatusFailed {
		return false, nil
	}
	j.Status = StatusQueued
	j.LastError = nil
	j.UpdatedAt = time.Now()
	return true, nil
}

func (s *fakeStore) FailedJobs(_ context.Context, packID string) ([]RenderJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RenderJob
	for _, j := range s.jobs {
		if j.PackID == packID && j.Status == StatusFailed {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *fakeStore) StaleQueued(_ context.Context, cutoff time.Time) ([]RenderJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RenderJob
	for _, j := range s.jobs {
		if j.Status == StatusQueued && j.UpdatedAt.Before(cutoff) {
			out = append(out, *j)
		}
	}
	return out, nil
}

type delayedPush struct {
	msg   queue.Message
	delay time.Duration
}

type fakeQueue struct {
	mu       sync.Mutex
	pushed   []queue.Message
	delayed  []delayedPush
	failPush bool
}

func (q *fakeQueue) Push(_ context.Context, m queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failPush {
		return errors.New("push refused")
	}
	q.pushed = append(q.pushed, m)
	return nil
}

func (q *fakeQueue) PushDelayed(_ context.Context, m queue.Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedPush{msg: m, delay: delay})
	return nil
}

func (q *fakeQueue) Pop(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *fakeQueue) PromoteDue(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

type fakeRenderer struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls int
}

func (r *fakeRenderer) Render(_ context.Context, _ render.Request) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.body, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (o *fakeObjects) Upload(_ context.Context, key string, body []byte, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.objects[key] = body
	return nil
}

func (o *fakeObjects) Bucket() string { return "test-bucket" }

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *fakeNotifier) TerminalFailure(e notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}
