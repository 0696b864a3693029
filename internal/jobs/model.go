package jobs

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRendering Status = "rendering"
	StatusReady     Status = "ready"
	StatusFailed    Status = "failed"
)

// Transitions are forward-only; failed→queued exists only for operator
// requeue, the worker never takes it on its own.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRendering},
	StatusRendering: {StatusReady, StatusFailed, StatusQueued},
	StatusFailed:    {StatusQueued},
}

func CanTransition(from, to Status) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// RenderJob is the attempt-tracked unit of work for one document of one
// pack. Title/Sections snapshot the render request so requeue and the
// reconciliation sweep can rebuild the queue message from the row alone.
type RenderJob struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	PackID    string `gorm:"type:uuid;index;not null"`
	SessionID string `gorm:"not null"`
	DocID     string `gorm:"not null"`

	Title    string         `gorm:"type:text;not null;default:''"`
	Sections pq.StringArray `gorm:"type:text[];not null;default:'{}'"`

	Status      Status `gorm:"index;not null;default:'queued'"`
	Attempts    int    `gorm:"not null;default:0"`
	MaxAttempts int    `gorm:"not null;default:3"`

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// Active means the job still counts against the one-active-job-per-doc
// rule at enqueue time.
func (j *RenderJob) Active() bool {
	return j.Status == StatusQueued || j.Status == StatusRendering || j.Status == StatusReady
}

// Artifact is the logical output of a successful render. Written exactly
// once, immutable after that. Payload carries inline content for formats
// that have any; PDFs live in the object store instead.
type Artifact struct {
	ID        string          `gorm:"primaryKey;type:uuid"`
	Kind      string          `gorm:"index;not null"`
	Format    string          `gorm:"not null"`
	Payload   []byte          `gorm:"type:bytea"`
	Meta      json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`
	CreatedAt time.Time       `gorm:"not null;default:now()"`
}

// ArtifactMeta is the shape of Artifact.Meta. RenderJobID is a lookup
// relation back to the producing job, not an ownership pointer.
type ArtifactMeta struct {
	PackID      string `json:"pack_id"`
	DocID       string `json:"doc_id"`
	RenderJobID string `json:"render_job_id"`
}

// ArtifactFile is the physical blob reference; its ID is the externally
// visible file_id.
type ArtifactFile struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	ArtifactID  string    `gorm:"type:uuid;index;not null"`
	Bucket      string    `gorm:"not null"`
	ObjectKey   string    `gorm:"not null"`
	ContentType string    `gorm:"not null"`
	SizeBytes   int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null;default:now()"`
}

// Pack is created by the intake collaborator; this pipeline reads it for
// session ownership and tier only.
type Pack struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	SessionID string    `gorm:"index;not null"`
	Tier      string    `gorm:"not null;default:'free'"`
	CreatedAt time.Time `gorm:"not null;default:now()"`
}
