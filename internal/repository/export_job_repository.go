package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/pkg/kvstore"
)

// ErrExportNotFound is returned for unknown export jobs.
var ErrExportNotFound = fmt.Errorf("export %w", ErrNotFound)

// exportJobRecord is the stored form of a job. Path is hidden from API
// responses but must survive a restart for downloads to resolve.
type exportJobRecord struct {
	models.ExportJob
	Path string `json:"path,omitempty"`
}

func (r exportJobRecord) job() models.ExportJob {
	job := r.ExportJob
	job.Path = r.Path
	return job
}

// ExportJobRepository persists export job metadata in the exports
// collection so issued download links and queued work outlive a restart.
type ExportJobRepository struct {
	store kvstore.Store
	// mu serialises read-modify-write cycles of Update.
	mu sync.Mutex
}

// NewExportJobRepository constructs the repository.
func NewExportJobRepository(store kvstore.Store) *ExportJobRepository {
	return &ExportJobRepository{store: store}
}

// Create stores a new job with generated defaults.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists, err := r.store.Get(ctx, kvstore.CollectionExports, job.ID)
	if err != nil {
		return fmt.Errorf("create export job %s: %w", job.ID, err)
	}
	if exists {
		return fmt.Errorf("create export job %s: duplicate id", job.ID)
	}
	return r.put(ctx, *job)
}

func (r *ExportJobRepository) put(ctx context.Context, job models.ExportJob) error {
	rec := exportJobRecord{ExportJob: job, Path: job.Path}
	if err := kvstore.PutJSON(ctx, r.store, kvstore.CollectionExports, job.ID, rec); err != nil {
		return fmt.Errorf("save export job %s: %w", job.ID, err)
	}
	return nil
}

// GetByID returns the job.
func (r *ExportJobRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	var rec exportJobRecord
	ok, err := kvstore.GetJSON(ctx, r.store, kvstore.CollectionExports, id, &rec)
	if err != nil {
		return nil, fmt.Errorf("load export job %s: %w", id, err)
	}
	if !ok {
		return nil, ErrExportNotFound
	}
	job := rec.job()
	return &job, nil
}

// UpdateExportJobParams defines the mutable fields.
type UpdateExportJobParams struct {
	Status      *models.ExportStatus
	Progress    *int
	FileName    *string
	Path        *string
	DownloadURL *string
	Error       *string
	FinishedAt  *time.Time
	ExpiresAt   *time.Time
}

// Update applies the non-nil params. An empty Error clears it.
func (r *ExportJobRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	job := *current
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.FileName != nil {
		job.FileName = *params.FileName
	}
	if params.Path != nil {
		job.Path = *params.Path
	}
	if params.DownloadURL != nil {
		url := *params.DownloadURL
		job.DownloadURL = &url
	}
	if params.Error != nil {
		if *params.Error == "" {
			job.Error = nil
		} else {
			msg := *params.Error
			job.Error = &msg
		}
	}
	if params.FinishedAt != nil {
		t := *params.FinishedAt
		job.FinishedAt = &t
	}
	if params.ExpiresAt != nil {
		t := *params.ExpiresAt
		job.ExpiresAt = &t
	}
	return r.put(ctx, job)
}

func (r *ExportJobRepository) list(ctx context.Context, keep func(models.ExportJob) bool) ([]models.ExportJob, error) {
	records, err := r.store.GetAll(ctx, kvstore.CollectionExports)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	var out []models.ExportJob
	for _, raw := range records {
		var rec exportJobRecord
		if err := raw.Decode(&rec); err != nil {
			return nil, err
		}
		if job := rec.job(); keep(job) {
			out = append(out, job)
		}
	}
	return out, nil
}

// ListFinishedBefore returns finished or failed jobs older than cutoff,
// oldest first.
func (r *ExportJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	out, err := r.list(ctx, func(job models.ExportJob) bool {
		return job.FinishedAt != nil && job.FinishedAt.Before(cutoff)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.Before(*out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPending returns jobs that were queued or being rendered, oldest
// first. After a restart these are the jobs no worker owns any more.
func (r *ExportJobRepository) ListPending(ctx context.Context) ([]models.ExportJob, error) {
	out, err := r.list(ctx, func(job models.ExportJob) bool {
		return job.Status == models.ExportStatusQueued || job.Status == models.ExportStatusProcessing
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete forgets a job. Unknown ids are a no-op.
func (r *ExportJobRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, kvstore.CollectionExports, id); err != nil {
		return fmt.Errorf("delete export job %s: %w", id, err)
	}
	return nil
}
