package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is what the enqueuer, worker and sweeper need from the job
// store. Repo is the Postgres implementation; tests use fakes.
type Store interface {
	GetPack(ctx context.Context, id string) (*Pack, error)
	GetJob(ctx context.Context, id string) (*RenderJob, error)
	CreateJob(ctx context.Context, job *RenderJob) error
	HasActiveJob(ctx context.Context, packID, docID string) (bool, error)

	// Claim is the atomic queued→rendering transition. False means the
	// job was already claimed or advanced; the caller drops the message.
	Claim(ctx context.Context, jobID string) (bool, error)

	MarkReady(ctx context.Context, jobID string, spec ArtifactSpec) (fileID string, err error)
	MarkRetry(ctx context.Context, jobID string, attempts int, lastError string) error
	MarkFailed(ctx context.Context, jobID string, attempts int, lastError string) error
	Requeue(ctx context.Context, jobID string) (bool, error)

	FailedJobs(ctx context.Context, packID string) ([]RenderJob, error)
	StaleQueued(ctx context.Context, cutoff time.Time) ([]RenderJob, error)
}

// ArtifactSpec is everything MarkReady needs to persist the artifact
// pair alongside the ready transition.
type ArtifactSpec struct {
	Kind        string
	Format      string
	PackID      string
	DocID       string
	Bucket      string
	ObjectKey   string
	ContentType string
	SizeBytes   int64
}

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) GetPack(ctx context.Context, id string) (*Pack, error) {
	var p Pack
	err := r.DB.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetJob(ctx context.Context, id string) (*RenderJob, error) {
	var j RenderJob
	err := r.DB.WithContext(ctx).First(&j, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) CreateJob(ctx context.Context, job *RenderJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	return r.DB.WithContext(ctx).Create(job).Error
}

func (r *Repo) HasActiveJob(ctx context.Context, packID, docID string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&RenderJob{}).
		Where("pack_id = ? and doc_id = ? and status in ?", packID, docID,
			[]Status{StatusQueued, StatusRendering, StatusReady}).
		Count(&n).Error
	return n > 0, err
}

func (r *Repo) Claim(ctx context.Context, jobID string) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
update render_jobs
set status = 'rendering', updated_at = now()
where id = ? and status = 'queued'`, jobID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkReady writes the Artifact and ArtifactFile and flips the job to
// ready in one transaction. The conditional update guards against a
// claim this worker no longer holds.
func (r *Repo) MarkReady(ctx context.Context, jobID string, spec ArtifactSpec) (string, error) {
	meta, err := json.Marshal(ArtifactMeta{
		PackID:      spec.PackID,
		DocID:       spec.DocID,
		RenderJobID: jobID,
	})
	if err != nil {
		return "", err
	}

	fileID := uuid.NewString()
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		art := Artifact{
			ID:     uuid.NewString(),
			Kind:   spec.Kind,
			Format: spec.Format,
			Meta:   meta,
		}
		if err := tx.Create(&art).Error; err != nil {
			return err
		}

		file := ArtifactFile{
			ID:          fileID,
			ArtifactID:  art.ID,
			Bucket:      spec.Bucket,
			ObjectKey:   spec.ObjectKey,
			ContentType: spec.ContentType,
			SizeBytes:   spec.SizeBytes,
		}
		if err := tx.Create(&file).Error; err != nil {
			return err
		}

		res := tx.Exec(`
update render_jobs
set status = 'ready', last_error = null, updated_at = now()
where id = ? and status = 'rendering'`, jobID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %s no longer rendering", jobID)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fileID, nil
}

func (r *Repo) MarkRetry(ctx context.Context, jobID string, attempts int, lastError string) error {
	return r.DB.WithContext(ctx).Exec(`
update render_jobs
set status = 'queued', attempts = ?, last_error = ?, updated_at = now()
where id = ? and status = 'rendering'`, attempts, lastError, jobID).Error
}

func (r *Repo) MarkFailed(ctx context.Context, jobID string, attempts int, lastError string) error {
	return r.DB.WithContext(ctx).Exec(`
update render_jobs
set status = 'failed', attempts = ?, last_error = ?, updated_at = now()
where id = ? and status = 'rendering'`, attempts, lastError, jobID).Error
}

// Requeue resets a failed job for another round: attempts are kept,
// last_error cleared. False when the job is not failed.
func (r *Repo) Requeue(ctx context.Context, jobID string) (bool, error) {
	res := r.DB.WithContext(ctx).Exec(`
update render_jobs
set status = 'queued', last_error = null, updated_at = now()
where id = ? and status = 'failed'`, jobID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) FailedJobs(ctx context.Context, packID string) ([]RenderJob, error) {
	var out []RenderJob
	err := r.DB.WithContext(ctx).
		Where("pack_id = ? and status = ?", packID, StatusFailed).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// StaleQueued finds queued jobs with no activity since cutoff: the
// enqueue-then-push gap, or delayed retries lost to a restart.
func (r *Repo) StaleQueued(ctx context.Context, cutoff time.Time) ([]RenderJob, error) {
	var out []RenderJob
	err := r.DB.WithContext(ctx).
		Where("status = ? and updated_at < ?", StatusQueued, cutoff).
		Order("updated_at asc").
		Find(&out).Error
	return out, err
}

// LatestJobs returns the most recent job per doc_id for a pack. Older
// jobs for the same doc are superseded for display.
func (r *Repo) LatestJobs(ctx context.Context, packID string) (map[string]*RenderJob, error) {
	var rows []RenderJob
	err := r.DB.WithContext(ctx).Raw(`
select distinct on (doc_id) *
from render_jobs
where pack_id = ?
order by doc_id, created_at desc`, packID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]*RenderJob, len(rows))
	for i := range rows {
		out[rows[i].DocID] = &rows[i]
	}
	return out, nil
}

// FileByJobID resolves the downloadable file through the artifact meta
// lookup relation.
func (r *Repo) FileByJobID(ctx context.Context, jobID string) (*ArtifactFile, error) {
	var f ArtifactFile
	err := r.DB.WithContext(ctx).Raw(`
select af.*
from artifact_files af
join artifacts a on a.id = af.artifact_id
where a.meta->>'render_job_id' = ?
order by af.created_at desc
limit 1`, jobID).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == "" {
		return nil, nil
	}
	return &f, nil
}

func (r *Repo) GetFile(ctx context.Context, fileID string) (*ArtifactFile, error) {
	var f ArtifactFile
	err := r.DB.WithContext(ctx).First(&f, "id = ?", fileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repo) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	var a Artifact
	err := r.DB.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
