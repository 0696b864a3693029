package status

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpress/internal/jobs"
	"docpress/internal/registry"
)

type fakeSource struct {
	packs      map[string]*jobs.Pack
	jobRows    map[string]*jobs.RenderJob
	latest     map[string]map[string]*jobs.RenderJob
	files      map[string]*jobs.ArtifactFile
	artifacts  map[string]*jobs.Artifact
	filesByJob map[string]*jobs.ArtifactFile

	fileByJobCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		packs:      map[string]*jobs.Pack{},
		jobRows:    map[string]*jobs.RenderJob{},
		latest:     map[string]map[string]*jobs.RenderJob{},
		files:      map[string]*jobs.ArtifactFile{},
		artifacts:  map[string]*jobs.Artifact{},
		filesByJob: map[string]*jobs.ArtifactFile{},
	}
}

func (s *fakeSource) GetPack(_ context.Context, id string) (*jobs.Pack, error) {
	return s.packs[id], nil
}

func (s *fakeSource) GetJob(_ context.Context, id string) (*jobs.RenderJob, error) {
	return s.jobRows[id], nil
}

func (s *fakeSource) LatestJobs(_ context.Context, packID string) (map[string]*jobs.RenderJob, error) {
	m := s.latest[packID]
	if m == nil {
		m = map[string]*jobs.RenderJob{}
	}
	return m, nil
}

func (s *fakeSource) FileByJobID(_ context.Context, jobID string) (*jobs.ArtifactFile, error) {
	s.fileByJobCalls++
	return s.filesByJob[jobID], nil
}

func (s *fakeSource) GetFile(_ context.Context, fileID string) (*jobs.ArtifactFile, error) {
	return s.files[fileID], nil
}

func (s *fakeSource) GetArtifact(_ context.Context, id string) (*jobs.Artifact, error) {
	return s.artifacts[id], nil
}

type fakePresigner struct {
	lastKey string
	lastTTL time.Duration
}

func (p *fakePresigner) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	p.lastKey = key
	p.lastTTL = ttl
	return "https://example.test/signed/" + key, nil
}

type mapCache struct {
	vals map[string]string
	sets int
}

func newMapCache() *mapCache { return &mapCache{vals: map[string]string{}} }

func (c *mapCache) Get(_ context.Context, key string) (string, bool) {
	v, ok := c.vals[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key, val string, _ time.Duration) {
	c.vals[key] = val
	c.sets++
}

func newTestResolver(src *fakeSource, pre *fakePresigner, cache Cache) *Resolver {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Resolver{
		Store:      src,
		Registry:   registry.Default(),
		Objects:    pre,
		Cache:      cache,
		CacheTTL:   5 * time.Minute,
		PresignTTL: 10 * time.Minute,
		Log:        log,
	}
}

// seedReadyJob wires a ready job with its artifact and file the way the
// worker's MarkReady would have.
func seedReadyJob(src *fakeSource, packID, sessionID, docID, jobID, fileID string) {
	job := &jobs.RenderJob{
		ID: jobID, PackID: packID, SessionID: sessionID, DocID: docID,
		Status: jobs.StatusReady, Attempts: 1, MaxAttempts: 3,
	}
	src.jobRows[jobID] = job
	if src.latest[packID] == nil {
		src.latest[packID] = map[string]*jobs.RenderJob{}
	}
	src.latest[packID][docID] = job

	meta, _ := json.Marshal(jobs.ArtifactMeta{PackID: packID, DocID: docID, RenderJobID: jobID})
	artID := "art-" + jobID
	src.artifacts[artID] = &jobs.Artifact{ID: artID, Kind: "document", Format: "pdf", Meta: meta}
	file := &jobs.ArtifactFile{
		ID: fileID, ArtifactID: artID,
		Bucket: "test-bucket", ObjectKey: "renders/" + jobID + "/" + docID + ".pdf",
		ContentType: "application/pdf",
	}
	src.files[fileID] = file
	src.filesByJob[jobID] = file
}

func TestListPackDocuments(t *testing.T) {
	src := newFakeSource()
	src.packs["pack-1"] = &jobs.Pack{ID: "pack-1", SessionID: "sess-1", Tier: "plus"}
	seedReadyJob(src, "pack-1", "sess-1", "business-plan", "job-1", "file-1")

	lastErr := "render_http_500: boom"
	src.latest["pack-1"]["financial-forecast"] = &jobs.RenderJob{
		ID: "job-2", PackID: "pack-1", SessionID: "sess-1", DocID: "financial-forecast",
		Status: jobs.StatusFailed, Attempts: 3, MaxAttempts: 3, LastError: &lastErr,
	}

	res := newTestResolver(src, &fakePresigner{}, newMapCache())
	docs, err := res.ListPackDocuments(context.Background(), "pack-1")
	require.NoError(t, err)
	require.Len(t, docs, 5)

	byID := map[string]DocumentStatus{}
	for _, d := range docs {
		byID[d.DocID] = d
	}

	ready := byID["business-plan"]
	assert.Equal(t, string(jobs.StatusReady), ready.Status)
	require.NotNil(t, ready.FileID)
	assert.Equal(t, "file-1", *ready.FileID)

	failed := byID["financial-forecast"]
	assert.Equal(t, string(jobs.StatusFailed), failed.Status)
	assert.Equal(t, 3, failed.Attempts)
	require.NotNil(t, failed.LastError)
	assert.Nil(t, failed.FileID)

	// Never rendered: registry row only.
	fresh := byID["executive-summary"]
	assert.Empty(t, fresh.Status)
	assert.Nil(t, fresh.FileID)

	// Pro docs stay locked for a plus pack even with no job.
	locked := byID["market-analysis"]
	assert.True(t, locked.Locked)
	assert.Equal(t, "requires pro tier", locked.Reason)
}

func TestListPackDocumentsHidesJobOnLockedDoc(t *testing.T) {
	src := newFakeSource()
	src.packs["pack-1"] = &jobs.Pack{ID: "pack-1", SessionID: "sess-1", Tier: "free"}
	// Rendered back when the pack was plus, since downgraded.
	seedReadyJob(src, "pack-1", "sess-1", "business-plan", "job-1", "file-1")

	res := newTestResolver(src, &fakePresigner{}, newMapCache())
	docs, err := res.ListPackDocuments(context.Background(), "pack-1")
	require.NoError(t, err)

	for _, d := range docs {
		if d.DocID == "business-plan" {
			assert.True(t, d.Locked)
			assert.Empty(t, d.Status)
			assert.Nil(t, d.FileID)
		}
	}
	// The file lookup is skipped entirely for locked docs.
	assert.Zero(t, src.fileByJobCalls)
}

func TestListPackDocumentsUnknownPack(t *testing.T) {
	res := newTestResolver(newFakeSource(), &fakePresigner{}, newMapCache())
	_, err := res.ListPackDocuments(context.Background(), "nope")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestResolveFileIDUsesCache(t *testing.T) {
	src := newFakeSource()
	src.packs["pack-1"] = &jobs.Pack{ID: "pack-1", SessionID: "sess-1", Tier: "plus"}
	seedReadyJob(src, "pack-1", "sess-1", "business-plan", "job-1", "file-1")

	cache := newMapCache()
	res := newTestResolver(src, &fakePresigner{}, cache)

	_, err := res.ListPackDocuments(context.Background(), "pack-1")
	require.NoError(t, err)
	assert.Equal(t, 1, src.fileByJobCalls)
	assert.Equal(t, 1, cache.sets)

	_, err = res.ListPackDocuments(context.Background(), "pack-1")
	require.NoError(t, err)
	// Second listing hits the cache, not the store.
	assert.Equal(t, 1, src.fileByJobCalls)
}

func TestResolveDownload(t *testing.T) {
	src := newFakeSource()
	seedReadyJob(src, "pack-1", "sess-1", "business-plan", "job-1", "file-1")

	pre := &fakePresigner{}
	res := newTestResolver(src, pre, newMapCache())

	url, err := res.ResolveDownload(context.Background(), "file-1", "sess-1")
	require.NoError(t, err)
	assert.Contains(t, url, "renders/job-1/business-plan.pdf")
	assert.Equal(t, "renders/job-1/business-plan.pdf", pre.lastKey)
	assert.Equal(t, 10*time.Minute, pre.lastTTL)
}

func TestResolveDownloadForeignSession(t *testing.T) {
	src := newFakeSource()
	seedReadyJob(src, "pack-1", "sess-1", "business-plan", "job-1", "file-1")

	res := newTestResolver(src, &fakePresigner{}, newMapCache())
	_, err := res.ResolveDownload(context.Background(), "file-1", "sess-2")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestResolveDownloadUnknownFile(t *testing.T) {
	res := newTestResolver(newFakeSource(), &fakePresigner{}, newMapCache())
	_, err := res.ResolveDownload(context.Background(), "nope", "sess-1")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}
