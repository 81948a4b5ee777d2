package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
)

type classStore interface {
	Classes() []models.SchoolClass
	ClassesByGrade(gradeID string) []models.SchoolClass
	FindClass(id string) (models.SchoolClass, bool)
	StudentsByClass(classID string) []models.Student
	AddClass(ctx context.Context, name, gradeID string) (models.SchoolClass, error)
	RenameClass(ctx context.Context, id, name string) (models.SchoolClass, error)
	DeleteClass(ctx context.Context, id string) error
}

// ClassService manages the sections of each grade.
type ClassService struct {
	repo      classStore
	validator *validator.Validate
	logger    *zap.Logger
}

// CreateClassRequest is the payload for a new class.
type CreateClassRequest struct {
	Name    string `json:"name" validate:"required,max=64"`
	GradeID string `json:"gradeId" validate:"required"`
}

// RenameClassRequest is the payload for a class rename.
type RenameClassRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// NewClassService constructs the class service.
func NewClassService(repo classStore, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, validator: validate, logger: logger}
}

// List returns all classes, or those of one grade when gradeID is set.
func (s *ClassService) List(gradeID string) []models.SchoolClass {
	if gradeID != "" {
		return s.repo.ClassesByGrade(gradeID)
	}
	return s.repo.Classes()
}

// Get returns a class by id.
func (s *ClassService) Get(id string) (*models.SchoolClass, error) {
	class, ok := s.repo.FindClass(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return &class, nil
}

// Create adds a class to an existing grade.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.SchoolClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	class, err := s.repo.AddClass(ctx, req.Name, req.GradeID)
	if err != nil {
		return nil, storeError(err, "failed to create class")
	}
	return &class, nil
}

// Rename changes the class name.
func (s *ClassService) Rename(ctx context.Context, id string, req RenameClassRequest) (*models.SchoolClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	class, err := s.repo.RenameClass(ctx, id, req.Name)
	if err != nil {
		return nil, storeError(err, "failed to rename class")
	}
	return &class, nil
}

// Delete removes the class and its students.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	students := len(s.repo.StudentsByClass(id))
	if err := s.repo.DeleteClass(ctx, id); err != nil {
		return storeError(err, "failed to delete class")
	}
	s.logger.Info("class deleted", zap.String("class_id", id), zap.Int("students", students))
	return nil
}
