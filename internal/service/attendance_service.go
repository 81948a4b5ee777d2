package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
)

type attendanceStore interface {
	Get(date, studentID string) (models.AttendanceRecord, bool)
	SaveMany(ctx context.Context, recs []models.AttendanceRecord) error
	DeleteWhere(ctx context.Context, match func(models.AttendanceRecord) bool) (int, error)
}

type rosterReader interface {
	Students() []models.Student
	StudentsByClass(classID string) []models.Student
	FindStudent(id string) (models.Student, bool)
	FindClass(id string) (models.SchoolClass, bool)
	FindGrade(id string) (models.Grade, bool)
}

// AttendanceService records daily statuses and derives the day views.
type AttendanceService struct {
	repo      attendanceStore
	roster    rosterReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// SaveAttendanceRequest stores the status of one student on one day.
type SaveAttendanceRequest struct {
	Date      string                  `json:"date" validate:"required,iso_date"`
	StudentID string                  `json:"studentId" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required,attendance_status"`
	Period    *int                    `json:"period" validate:"required_if=Status truant,omitempty,period"`
	Note      *string                 `json:"note" validate:"omitempty,max=500"`
}

// MarkEntry is one student line of a class mark request.
type MarkEntry struct {
	StudentID string                  `json:"studentId" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required,attendance_status"`
	Period    *int                    `json:"period" validate:"required_if=Status truant,omitempty,period"`
	Note      *string                 `json:"note" validate:"omitempty,max=500"`
}

// BulkMarkRequest stores many students of one class for one day.
type BulkMarkRequest struct {
	Date    string      `json:"date" validate:"required,iso_date"`
	ClassID string      `json:"classId" validate:"required"`
	Entries []MarkEntry `json:"entries" validate:"required,min=1,dive"`
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceStore, roster rosterReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerValidations(validate)
	return &AttendanceService{repo: repo, roster: roster, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// GetAttendance returns the status of the student on date. A day without a
// record counts as present.
func (s *AttendanceService) GetAttendance(date, studentID string) models.AttendanceStatus {
	if rec, ok := s.repo.Get(date, studentID); ok {
		return rec.Status
	}
	return models.AttendanceStatusPresent
}

// GetAttendanceRecord returns the stored record, if any.
func (s *AttendanceService) GetAttendanceRecord(date, studentID string) (*models.AttendanceRecord, bool) {
	rec, ok := s.repo.Get(date, studentID)
	if !ok {
		return nil, false
	}
	return &rec, true
}

// Lookup returns the stored record, or a present placeholder for a day
// without one.
func (s *AttendanceService) Lookup(date, studentID string) (*models.AttendanceRecord, error) {
	if !validDate(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	if rec, ok := s.GetAttendanceRecord(date, studentID); ok {
		return rec, nil
	}
	return &models.AttendanceRecord{Date: date, StudentID: studentID, Status: models.AttendanceStatusPresent}, nil
}

// SaveAttendance overwrites the record of the student on that day.
func (s *AttendanceService) SaveAttendance(ctx context.Context, req SaveAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	if _, ok := s.roster.FindStudent(req.StudentID); !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	rec := s.buildRecord(req.Date, MarkEntry{StudentID: req.StudentID, Status: req.Status, Period: req.Period, Note: req.Note})
	if err := s.repo.SaveMany(ctx, []models.AttendanceRecord{rec}); err != nil {
		return nil, storeError(err, "failed to save attendance")
	}
	s.metrics.RecordAttendanceWrite(string(rec.Status))
	return &rec, nil
}

// MarkClass stores the entries of one class for one day in a single write.
// Every student must belong to the class.
func (s *AttendanceService) MarkClass(ctx context.Context, req BulkMarkRequest) ([]models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	if _, ok := s.roster.FindClass(req.ClassID); !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	members := make(map[string]struct{})
	for _, st := range s.roster.StudentsByClass(req.ClassID) {
		members[st.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(req.Entries))
	recs := make([]models.AttendanceRecord, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if _, ok := members[entry.StudentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student "+entry.StudentID+" is not in this class")
		}
		if _, dup := seen[entry.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate student in payload")
		}
		seen[entry.StudentID] = struct{}{}
		recs = append(recs, s.buildRecord(req.Date, entry))
	}

	if err := s.repo.SaveMany(ctx, recs); err != nil {
		return nil, storeError(err, "failed to save class attendance")
	}
	for _, rec := range recs {
		s.metrics.RecordAttendanceWrite(string(rec.Status))
	}
	return recs, nil
}

// buildRecord applies the overwrite rules: the period only survives for a
// truant status and a blank note is dropped.
func (s *AttendanceService) buildRecord(date string, entry MarkEntry) models.AttendanceRecord {
	rec := models.AttendanceRecord{
		Date:      date,
		StudentID: entry.StudentID,
		Status:    entry.Status,
		Timestamp: s.now().UnixMilli(),
	}
	if entry.Status == models.AttendanceStatusTruant && entry.Period != nil {
		p := *entry.Period
		rec.Period = &p
	}
	if entry.Note != nil {
		if note := strings.TrimSpace(*entry.Note); note != "" {
			rec.Note = &note
		}
	}
	return rec
}

// GetDailyStats counts every current student once for date.
func (s *AttendanceService) GetDailyStats(date string) (*models.DailyStats, error) {
	if !validDate(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	stats := &models.DailyStats{Date: date}
	for _, st := range s.roster.Students() {
		stats.TotalStudents++
		switch s.GetAttendance(date, st.ID) {
		case models.AttendanceStatusAbsent:
			stats.AbsentCount++
		case models.AttendanceStatusTruant:
			stats.TruantCount++
		case models.AttendanceStatusEscape:
			stats.EscapeCount++
		default:
			stats.PresentCount++
		}
	}
	if stats.TotalStudents > 0 {
		stats.AttendanceRate = int(math.Round(float64(stats.PresentCount) / float64(stats.TotalStudents) * 100))
	}
	return stats, nil
}

// ClassDailySheet lists the class in enrolment order with the status of
// each student on date.
func (s *AttendanceService) ClassDailySheet(classID, date string) (*models.DailySheet, error) {
	if !validDate(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	class, ok := s.roster.FindClass(classID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	sheet := &models.DailySheet{Date: date, ClassID: class.ID, ClassName: class.Name, Rows: []models.DailySheetRow{}}
	if grade, ok := s.roster.FindGrade(class.GradeID); ok {
		sheet.GradeName = grade.Name
	}

	students := s.roster.StudentsByClass(classID)
	sort.SliceStable(students, func(i, j int) bool { return students[i].Seq < students[j].Seq })
	for i, st := range students {
		row := models.DailySheetRow{Seq: i + 1, StudentID: st.ID, Name: st.Name, Status: models.AttendanceStatusPresent}
		if rec, ok := s.repo.Get(date, st.ID); ok {
			row.Status, row.Period, row.Note = rec.Status, rec.Period, rec.Note
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

// PurgeOrphans deletes attendance of students that no longer exist.
func (s *AttendanceService) PurgeOrphans(ctx context.Context) (int, error) {
	current := make(map[string]struct{})
	for _, st := range s.roster.Students() {
		current[st.ID] = struct{}{}
	}
	n, err := s.repo.DeleteWhere(ctx, func(rec models.AttendanceRecord) bool {
		_, ok := current[rec.StudentID]
		return !ok
	})
	if err != nil {
		return 0, storeError(err, "failed to purge attendance")
	}
	s.logger.Info("orphan attendance purged", zap.Int("records", n))
	return n, nil
}
