package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/internal/repository"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
)

type attendanceScanner interface {
	Scan(fn func(models.AttendanceRecord))
}

type changeSource interface {
	Subscribe(fn repository.Listener) func()
}

// ClassPeriodOptions tunes GetClassPeriodStats.
type ClassPeriodOptions struct {
	// OnlyViolations drops students without any absence, truancy or escape.
	OnlyViolations bool
}

// ReportService aggregates attendance over date ranges. Every query scans
// all stored records, so cost grows with the total history; results are
// cached until the next change to the roster or to attendance.
type ReportService struct {
	attendance attendanceScanner
	roster     rosterReader
	cache      *CacheService
	logger     *zap.Logger
}

// NewReportService constructs the report service. cache may be nil.
func NewReportService(attendance attendanceScanner, roster rosterReader, cache *CacheService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{attendance: attendance, roster: roster, cache: cache, logger: logger}
}

// Watch drops cached reports whenever one of the sources changes. The
// returned func stops watching.
func (s *ReportService) Watch(sources ...changeSource) func() {
	stops := make([]func(), 0, len(sources))
	for _, src := range sources {
		stops = append(stops, src.Subscribe(func(repository.ChangeEvent) {
			s.cache.Bump()
		}))
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// GetStudentHistory returns the non-present records of a student, newest
// first. from and to are inclusive and may be nil.
func (s *ReportService) GetStudentHistory(ctx context.Context, studentID string, from, to *string) ([]models.AttendanceRecord, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	key := s.cache.Key("history", studentID, deref(from), deref(to))
	var cached []models.AttendanceRecord
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	history := make([]models.AttendanceRecord, 0)
	s.attendance.Scan(func(rec models.AttendanceRecord) {
		if rec.StudentID != studentID || rec.Status == models.AttendanceStatusPresent {
			return
		}
		if !inRange(rec.Date, from, to) {
			return
		}
		history = append(history, rec)
	})
	sort.Slice(history, func(i, j int) bool {
		if history[i].Date != history[j].Date {
			return history[i].Date > history[j].Date
		}
		return history[i].Timestamp > history[j].Timestamp
	})

	_ = s.cache.Set(ctx, key, history, 0)
	return history, nil
}

// GetClassPeriodStats counts the violations of every current student of the
// class in the range. Unknown classes yield an empty list.
func (s *ReportService) GetClassPeriodStats(ctx context.Context, classID string, from, to *string, opts ClassPeriodOptions) ([]models.ClassPeriodStat, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	key := s.cache.Key("class", classID, deref(from), deref(to), boolKey(opts.OnlyViolations))
	var cached []models.ClassPeriodStat
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	students := s.roster.StudentsByClass(classID)
	stats := make([]models.ClassPeriodStat, len(students))
	index := make(map[string]int, len(students))
	for i, st := range students {
		stats[i] = models.ClassPeriodStat{Student: st}
		index[st.ID] = i
	}
	s.attendance.Scan(func(rec models.AttendanceRecord) {
		i, ok := index[rec.StudentID]
		if !ok || !inRange(rec.Date, from, to) {
			return
		}
		switch rec.Status {
		case models.AttendanceStatusAbsent:
			stats[i].AbsentCount++
		case models.AttendanceStatusTruant:
			stats[i].TruantCount++
		case models.AttendanceStatusEscape:
			stats[i].EscapeCount++
		}
	})

	if opts.OnlyViolations {
		filtered := stats[:0]
		for _, st := range stats {
			if st.Total() > 0 {
				filtered = append(filtered, st)
			}
		}
		stats = filtered
	}

	_ = s.cache.Set(ctx, key, stats, 0)
	return stats, nil
}

func checkRange(from, to *string) error {
	if from != nil && !validDate(*from) {
		return appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD")
	}
	if to != nil && !validDate(*to) {
		return appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD")
	}
	return nil
}

// inRange compares dates as strings, which is exact for YYYY-MM-DD.
func inRange(date string, from, to *string) bool {
	if from != nil && date < *from {
		return false
	}
	if to != nil && date > *to {
		return false
	}
	return true
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
