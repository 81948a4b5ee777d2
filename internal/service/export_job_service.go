package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/internal/repository"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/jobs"
	"github.com/noah-isme/hudoor/pkg/storage"
)

const (
	exportJobType    = "export"
	cleanupBatchSize = 100
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
	ListPending(ctx context.Context) ([]models.ExportJob, error)
	Delete(ctx context.Context, id string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportRenderer interface {
	CheckRequest(req models.ExportRequest) error
	Render(ctx context.Context, req models.ExportRequest) (*ExportFile, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportJobConfig governs download links and cleanup.
type ExportJobConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportJobService runs exports in the background: a job is queued, a
// worker renders and stores the file, and the client polls until a signed
// download link appears.
type ExportJobService struct {
	repo      exportJobStore
	queue     jobDispatcher
	renderer  exportRenderer
	storage   fileStorage
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportJobConfig
}

// NewExportJobService constructs the export job service.
func NewExportJobService(repo exportJobStore, queue jobDispatcher, renderer exportRenderer, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ExportJobConfig) *ExportJobService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportJobService{
		repo:      repo,
		queue:     queue,
		renderer:  renderer,
		storage:   files,
		signer:    signer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Create validates the request, records the job and queues it.
func (s *ExportJobService) Create(ctx context.Context, req models.ExportRequest) (*models.ExportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	if err := s.renderer.CheckRequest(req); err != nil {
		return nil, err
	}
	job := &models.ExportJob{Request: req, Status: models.ExportStatusQueued}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, storeError(err, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: exportJobType, Payload: string(req.Kind)}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// Resume queues again every job left QUEUED or PROCESSING by a previous
// run. It returns how many jobs were handed to the queue.
func (s *ExportJobService) Resume(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending exports: %w", err)
	}
	resumed := 0
	for _, job := range pending {
		if job.Status == models.ExportStatusProcessing {
			queued := models.ExportStatusQueued
			reset := 0
			if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &queued, Progress: &reset}); err != nil {
				return resumed, fmt.Errorf("requeue export %s: %w", job.ID, err)
			}
		}
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: exportJobType, Payload: string(job.Request.Kind)}); err != nil {
			return resumed, fmt.Errorf("enqueue export %s: %w", job.ID, err)
		}
		resumed++
	}
	if resumed > 0 {
		s.logger.Info("pending exports resumed", zap.Int("jobs", resumed))
	}
	return resumed, nil
}

// Get returns the job status.
func (s *ExportJobService) Get(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to load export job")
	}
	return job, nil
}

// Handle is the queue handler. A failed attempt puts the job back to
// QUEUED; the queue retries it and calls HandleFailure when it gives up.
func (s *ExportJobService) Handle(ctx context.Context, j jobs.Job) error {
	job, err := s.repo.GetByID(ctx, j.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	file, err := s.renderer.Render(ctx, job.Request)
	if err == nil && file != nil {
		err = s.finish(ctx, job.ID, file)
	}
	if err != nil {
		queued := models.ExportStatusQueued
		reset := 0
		msg := err.Error()
		if updateErr := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &queued, Progress: &reset, Error: &msg}); updateErr != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}
	s.metrics.RecordExport(string(job.Request.Kind), true)
	return nil
}

func (s *ExportJobService) finish(ctx context.Context, id string, file *ExportFile) error {
	relPath, err := s.storage.Save(file.Name, file.Data)
	if err != nil {
		return fmt.Errorf("store export: %w", err)
	}
	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		_ = s.storage.Delete(relPath)
		return fmt.Errorf("sign export: %w", err)
	}
	url := fmt.Sprintf("%s/exports/download/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
	finished := models.ExportStatusFinished
	progress := 100
	now := time.Now().UTC()
	clear := ""
	return s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:      &finished,
		Progress:    &progress,
		FileName:    &file.Name,
		Path:        &relPath,
		DownloadURL: &url,
		Error:       &clear,
		FinishedAt:  &now,
		ExpiresAt:   &expiresAt,
	})
}

// HandleFailure marks a job FAILED once the queue has given up on it.
func (s *ExportJobService) HandleFailure(ctx context.Context, j jobs.Job, err error) {
	s.markFailed(ctx, j.ID, err.Error())
	kind, _ := j.Payload.(string)
	s.metrics.RecordExport(kind, false)
}

func (s *ExportJobService) markFailed(ctx context.Context, id, msg string) {
	failed := models.ExportStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:     &failed,
		Progress:   &progress,
		Error:      &msg,
		FinishedAt: &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
}

// ResolveDownload validates the token and opens the stored file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	download, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "download link has expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	job, err := s.repo.GetByID(ctx, download.ExportID)
	if err != nil {
		return nil, storeError(err, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrExportNotReady, "")
	}
	if job.Path != download.Path {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match export")
	}
	file, err := s.storage.Open(download.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file was removed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:        file,
		Filename:    job.FileName,
		ContentType: job.Request.Format.ContentType(),
		ExpiresAt:   download.ExpiresAt,
	}, nil
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup(ctx)
			}
		}
	}()
}

// Cleanup deletes files and jobs older than the result TTL.
func (s *ExportJobService) Cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatchSize)
		if err != nil {
			s.logger.Warn("export cleanup list failed", zap.Error(err))
			return
		}
		deleted := 0
		for _, job := range expired {
			if job.Path != "" {
				if err := s.storage.Delete(job.Path); err != nil {
					s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
				}
			}
			if err := s.repo.Delete(ctx, job.ID); err != nil {
				s.logger.Warn("export job delete failed", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			deleted++
		}
		if len(expired) < cleanupBatchSize || deleted == 0 {
			break
		}
	}
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export directory cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("files", len(removed)))
	}
}
