package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
)

type gradeStore interface {
	Grades() []models.Grade
	FindGrade(id string) (models.Grade, bool)
	ClassesByGrade(gradeID string) []models.SchoolClass
	AddGrade(ctx context.Context, name string) (models.Grade, error)
	RenameGrade(ctx context.Context, id, name string) (models.Grade, error)
	DeleteGrade(ctx context.Context, id string) error
}

// GradeService manages grade levels.
type GradeService struct {
	repo      gradeStore
	validator *validator.Validate
	logger    *zap.Logger
}

// GradeRequest is the create and rename payload.
type GradeRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// NewGradeService constructs the grade service.
func NewGradeService(repo gradeStore, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, validator: validate, logger: logger}
}

// List returns grades in creation order.
func (s *GradeService) List() []models.Grade {
	return s.repo.Grades()
}

// Get returns a grade by id.
func (s *GradeService) Get(id string) (*models.Grade, error) {
	grade, ok := s.repo.FindGrade(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
	}
	return &grade, nil
}

// Create adds a grade.
func (s *GradeService) Create(ctx context.Context, req GradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	grade, err := s.repo.AddGrade(ctx, req.Name)
	if err != nil {
		return nil, storeError(err, "failed to create grade")
	}
	return &grade, nil
}

// Rename changes the grade name.
func (s *GradeService) Rename(ctx context.Context, id string, req GradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	grade, err := s.repo.RenameGrade(ctx, id, req.Name)
	if err != nil {
		return nil, storeError(err, "failed to rename grade")
	}
	return &grade, nil
}

// Delete removes the grade with all of its classes and students.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	classes := len(s.repo.ClassesByGrade(id))
	if err := s.repo.DeleteGrade(ctx, id); err != nil {
		return storeError(err, "failed to delete grade")
	}
	s.logger.Info("grade deleted", zap.String("grade_id", id), zap.Int("classes", classes))
	return nil
}
