package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
)

type studentStore interface {
	Students() []models.Student
	FindStudent(id string) (models.Student, bool)
	AddStudent(ctx context.Context, in models.NewStudent) (models.Student, error)
	AddStudentsBulk(ctx context.Context, in []models.NewStudent) ([]models.Student, error)
	UpdateStudent(ctx context.Context, id, name, parentPhone string) (models.Student, error)
	MoveStudent(ctx context.Context, id, classID string) (models.Student, error)
	DeleteStudent(ctx context.Context, id string) error
}

// StudentService manages the roster.
type StudentService struct {
	repo      studentStore
	validator *validator.Validate
	logger    *zap.Logger
}

// StudentFilter narrows the roster listing.
type StudentFilter struct {
	GradeID  string `form:"gradeId"`
	ClassID  string `form:"classId"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// BulkCreateStudentsRequest adds several students at once.
type BulkCreateStudentsRequest struct {
	Students []models.NewStudent `json:"students" validate:"required,min=1,max=500,dive"`
}

// UpdateStudentRequest replaces the editable fields of a student.
type UpdateStudentRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	ParentPhone string `json:"parentPhone" validate:"max=32"`
}

// MoveStudentRequest moves a student to another class.
type MoveStudentRequest struct {
	ClassID string `json:"classId" validate:"required"`
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentStore, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns the newest students first, filtered and paginated.
func (s *StudentService) List(filter StudentFilter) ([]models.Student, *models.Pagination) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	if size > 500 {
		size = 500
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	matched := make([]models.Student, 0)
	for _, st := range s.repo.Students() {
		if filter.ClassID != "" && st.ClassID != filter.ClassID {
			continue
		}
		if filter.GradeID != "" && st.GradeID != filter.GradeID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(st.Name), search) && !strings.Contains(st.ParentPhone, search) {
			continue
		}
		matched = append(matched, st)
	}

	total := len(matched)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

// Get returns a student by id.
func (s *StudentService) Get(id string) (*models.Student, error) {
	student, ok := s.repo.FindStudent(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return &student, nil
}

// Create enrols a student in an existing class.
func (s *StudentService) Create(ctx context.Context, req models.NewStudent) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	student, err := s.repo.AddStudent(ctx, req)
	if err != nil {
		return nil, storeError(err, "failed to create student")
	}
	return &student, nil
}

// CreateBulk enrols every student in one write. Nothing is stored when any
// entry is invalid.
func (s *StudentService) CreateBulk(ctx context.Context, req BulkCreateStudentsRequest) ([]models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	created, err := s.repo.AddStudentsBulk(ctx, req.Students)
	if err != nil {
		return nil, storeError(err, "failed to create students")
	}
	s.logger.Info("students added", zap.Int("count", len(created)))
	return created, nil
}

// Update replaces name and parent phone.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	student, err := s.repo.UpdateStudent(ctx, id, req.Name, req.ParentPhone)
	if err != nil {
		return nil, storeError(err, "failed to update student")
	}
	return &student, nil
}

// Move transfers a student to another class.
func (s *StudentService) Move(ctx context.Context, id string, req MoveStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	student, err := s.repo.MoveStudent(ctx, id, req.ClassID)
	if err != nil {
		return nil, storeError(err, "failed to move student")
	}
	return &student, nil
}

// Delete removes a student. Attendance history is kept.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteStudent(ctx, id); err != nil {
		return storeError(err, "failed to delete student")
	}
	return nil
}
