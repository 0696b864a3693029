package status

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"docpress/internal/jobs"
	"docpress/internal/registry"
)

var ErrForbidden = errors.New("forbidden")

// Source is the read side of the job store the resolver needs.
type Source interface {
	GetPack(ctx context.Context, id string) (*jobs.Pack, error)
	GetJob(ctx context.Context, id string) (*jobs.RenderJob, error)
	LatestJobs(ctx context.Context, packID string) (map[string]*jobs.RenderJob, error)
	FileByJobID(ctx context.Context, jobID string) (*jobs.ArtifactFile, error)
	GetFile(ctx context.Context, fileID string) (*jobs.ArtifactFile, error)
	GetArtifact(ctx context.Context, id string) (*jobs.Artifact, error)
}

type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Cache is a bounded-TTL read-through cache for file-id lookups. It is
// never the system of record; misses always fall through to the store.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, val string, ttl time.Duration)
}

// DocumentStatus is one row of the pack listing.
type DocumentStatus struct {
	DocID     string  `json:"doc_id"`
	Title     string  `json:"title"`
	Status    string  `json:"status,omitempty"`
	FileID    *string `json:"file_id"`
	Attempts  int     `json:"attempts"`
	LastError *string `json:"last_error,omitempty"`
	registry.Eligibility
}

// Resolver joins registry eligibility with the latest job per document
// and resolves downloadable file ids.
type Resolver struct {
	Store      Source
	Registry   *registry.Registry
	Objects    Presigner
	Cache      Cache
	CacheTTL   time.Duration
	PresignTTL time.Duration
	Log        *logrus.Logger
}

// ListPackDocuments reports every registry document for the pack. Only
// the most recent job per doc is authoritative; regeneration supersedes
// older jobs for display.
func (r *Resolver) ListPackDocuments(ctx context.Context, packID string) ([]DocumentStatus, error) {
	pack, err := r.Store.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	if pack == nil {
		return nil, jobs.ErrNotFound
	}

	latest, err := r.Store.LatestJobs(ctx, packID)
	if err != nil {
		return nil, err
	}

	var out []DocumentStatus
	for _, doc := range r.Registry.All() {
		elig, _ := r.Registry.Eligibility(doc.DocID, registry.Tier(pack.Tier))
		ds := DocumentStatus{
			DocID:       doc.DocID,
			Title:       doc.Title,
			Eligibility: elig,
		}

		if job := latest[doc.DocID]; job != nil && !elig.Locked {
			ds.Status = string(job.Status)
			ds.Attempts = job.Attempts
			ds.LastError = job.LastError
			if job.Status == jobs.StatusReady {
				if fileID := r.resolveFileID(ctx, job.ID); fileID != "" {
					ds.FileID = &fileID
				}
			}
		}
		out = append(out, ds)
	}
	return out, nil
}

// resolveFileID goes job → artifact meta → file, through the cache.
// Ready jobs are immutable so a positive hit never goes stale.
func (r *Resolver) resolveFileID(ctx context.Context, jobID string) string {
	key := "file_by_job:" + jobID
	if r.Cache != nil {
		if v, ok := r.Cache.Get(ctx, key); ok {
			return v
		}
	}

	f, err := r.Store.FileByJobID(ctx, jobID)
	if err != nil {
		r.Log.WithField("job_id", jobID).WithError(err).Error("file lookup failed")
		return ""
	}
	if f == nil {
		return ""
	}
	if r.Cache != nil {
		r.Cache.Set(ctx, key, f.ID, r.CacheTTL)
	}
	return f.ID
}

// ResolveDownload checks that the requester session owns the file, then
// presigns a time-limited GET URL. The URL is a bearer credential and
// is never logged.
func (r *Resolver) ResolveDownload(ctx context.Context, fileID, sessionID string) (string, error) {
	f, err := r.Store.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if f == nil {
		return "", jobs.ErrNotFound
	}

	art, err := r.Store.GetArtifact(ctx, f.ArtifactID)
	if err != nil {
		return "", err
	}
	if art == nil {
		return "", jobs.ErrNotFound
	}

	var meta jobs.ArtifactMeta
	if err := json.Unmarshal(art.Meta, &meta); err != nil {
		return "", err
	}

	job, err := r.Store.GetJob(ctx, meta.RenderJobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", jobs.ErrNotFound
	}
	if job.SessionID != sessionID {
		return "", ErrForbidden
	}

	return r.Objects.PresignGet(ctx, f.ObjectKey, r.PresignTTL)
}
