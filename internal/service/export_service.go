package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/export"
)

// Column headers of the printed documents.
const (
	colSeq     = "م"
	colName    = "اسم الطالب"
	colStatus  = "الحالة"
	colNotes   = "ملاحظات"
	colDate    = "التاريخ"
	colPeriod  = "الحصة"
	colAbsent  = "غياب"
	colTruant  = "هروب من حصة"
	colEscape  = "هروب من المدرسة"
	colTotal   = "المجموع"
	colItem    = "البند"
	colCount   = "العدد"
	principal  = "مدير المدرسة"
	counselor  = "الأخصائي الاجتماعي"
	rangeAll   = "جميع الأيام"
	percentFmt = "%d%%"
)

type dayViews interface {
	ClassDailySheet(classID, date string) (*models.DailySheet, error)
	GetDailyStats(date string) (*models.DailyStats, error)
}

type rangeViews interface {
	GetStudentHistory(ctx context.Context, studentID string, from, to *string) ([]models.AttendanceRecord, error)
	GetClassPeriodStats(ctx context.Context, classID string, from, to *string, opts ClassPeriodOptions) ([]models.ClassPeriodStat, error)
}

type letterhead interface {
	header(ctx context.Context) (string, printAssets, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	RenderDocument(doc export.Document) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
}

// ExportFile is a rendered document.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ExportService turns attendance views into printable files.
type ExportService struct {
	days   dayViews
	ranges rangeViews
	roster rosterReader
	head   letterhead
	csv    csvRenderer
	pdf    pdfRenderer
	xlsx   xlsxRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers get the
// package defaults, with the PDF renderer using no embedded font.
func NewExportService(days dayViews, ranges rangeViews, roster rosterReader, head letterhead, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, xlsx xlsxRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	return &ExportService{days: days, ranges: ranges, roster: roster, head: head, csv: csv, pdf: pdf, xlsx: xlsx, logger: logger, now: time.Now}
}

// CheckRequest reports missing scope before a job is queued.
func (s *ExportService) CheckRequest(req models.ExportRequest) error {
	switch req.Kind {
	case models.ExportDailySheet:
		if req.ClassID == "" || req.Date == "" {
			return appErrors.Clone(appErrors.ErrValidation, "classId and date are required")
		}
		if _, ok := s.roster.FindClass(req.ClassID); !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
	case models.ExportStudentHistory:
		if req.StudentID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "studentId is required")
		}
		if _, ok := s.roster.FindStudent(req.StudentID); !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
	case models.ExportClassPeriod:
		if req.ClassID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "classId is required")
		}
		if _, ok := s.roster.FindClass(req.ClassID); !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
	case models.ExportDailyStats:
		if req.Date == "" {
			return appErrors.Clone(appErrors.ErrValidation, "date is required")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported export kind")
	}
	return nil
}

// Render builds the document described by req in the requested format.
func (s *ExportService) Render(ctx context.Context, req models.ExportRequest) (*ExportFile, error) {
	if err := s.CheckRequest(req); err != nil {
		return nil, err
	}
	doc, err := s.buildDocument(ctx, req)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch req.Format {
	case models.ExportFormatPDF:
		if err := s.decorate(ctx, req.Kind, doc); err != nil {
			return nil, err
		}
		payload, err = s.pdf.RenderDocument(*doc)
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(doc.Data)
	case models.ExportFormatXLSX:
		payload, err = s.xlsx.Render(doc.Data, string(req.Kind))
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Name:        s.buildFilename(req),
		ContentType: req.Format.ContentType(),
		Data:        payload,
	}, nil
}

// decorate adds the school name, images and signature boxes to a PDF.
func (s *ExportService) decorate(ctx context.Context, kind models.ExportKind, doc *export.Document) error {
	schoolName, assets, err := s.head.header(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load letterhead")
	}
	doc.Header.SchoolName = schoolName
	doc.Logo, doc.Stamp = assets.Logo, assets.Stamp
	if kind == models.ExportDailySheet || kind == models.ExportClassPeriod {
		doc.Signatures = []export.Signature{
			{Label: principal, Image: assets.Principal},
			{Label: counselor, Image: assets.Counselor},
		}
	}
	return nil
}

func (s *ExportService) buildDocument(ctx context.Context, req models.ExportRequest) (*export.Document, error) {
	switch req.Kind {
	case models.ExportDailySheet:
		return s.dailySheetDocument(req)
	case models.ExportStudentHistory:
		return s.historyDocument(ctx, req)
	case models.ExportClassPeriod:
		return s.classPeriodDocument(ctx, req)
	case models.ExportDailyStats:
		return s.dailyStatsDocument(req)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export kind")
	}
}

func (s *ExportService) dailySheetDocument(req models.ExportRequest) (*export.Document, error) {
	sheet, err := s.days.ClassDailySheet(req.ClassID, req.Date)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, map[string]string{
			colSeq:    strconv.Itoa(row.Seq),
			colName:   row.Name,
			colStatus: row.Status.Label(),
			colNotes:  notes(row.Period, row.Note),
		})
	}
	return &export.Document{
		Header: export.Header{
			Title: "كشف الحضور اليومي",
			Lines: []string{
				fmt.Sprintf("%s: %s", colDate, sheet.Date),
				fmt.Sprintf("الصف: %s - الشعبة: %s", sheet.GradeName, sheet.ClassName),
			},
		},
		Data:   export.Dataset{Headers: []string{colSeq, colName, colStatus, colNotes}, Rows: rows},
		Widths: []float64{12, 80, 40, 52.6},
	}, nil
}

func (s *ExportService) historyDocument(ctx context.Context, req models.ExportRequest) (*export.Document, error) {
	student, _ := s.roster.FindStudent(req.StudentID)
	history, err := s.ranges.GetStudentHistory(ctx, req.StudentID, req.From, req.To)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(history))
	for i, rec := range history {
		period := ""
		if rec.Period != nil {
			period = strconv.Itoa(*rec.Period)
		}
		note := ""
		if rec.Note != nil {
			note = *rec.Note
		}
		rows = append(rows, map[string]string{
			colSeq:    strconv.Itoa(i + 1),
			colDate:   rec.Date,
			colStatus: rec.Status.Label(),
			colPeriod: period,
			colNotes:  note,
		})
	}
	return &export.Document{
		Header: export.Header{
			Title: "سجل مخالفات الطالب",
			Lines: []string{
				fmt.Sprintf("%s: %s", colName, student.Name),
				s.classLine(student.ClassID),
				rangeLine(req.From, req.To),
			},
		},
		Data:   export.Dataset{Headers: []string{colSeq, colDate, colStatus, colPeriod, colNotes}, Rows: rows},
		Widths: []float64{12, 32, 42, 20, 78.6},
	}, nil
}

func (s *ExportService) classPeriodDocument(ctx context.Context, req models.ExportRequest) (*export.Document, error) {
	stats, err := s.ranges.GetClassPeriodStats(ctx, req.ClassID, req.From, req.To, ClassPeriodOptions{OnlyViolations: req.OnlyViolations})
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(stats))
	for i, st := range stats {
		rows = append(rows, map[string]string{
			colSeq:    strconv.Itoa(i + 1),
			colName:   st.Student.Name,
			colAbsent: strconv.Itoa(st.AbsentCount),
			colTruant: strconv.Itoa(st.TruantCount),
			colEscape: strconv.Itoa(st.EscapeCount),
			colTotal:  strconv.Itoa(st.Total()),
		})
	}
	return &export.Document{
		Header: export.Header{
			Title: "إحصائية مخالفات الطلاب",
			Lines: []string{s.classLine(req.ClassID), rangeLine(req.From, req.To)},
		},
		Data:   export.Dataset{Headers: []string{colSeq, colName, colAbsent, colTruant, colEscape, colTotal}, Rows: rows},
		Widths: []float64{12, 66.6, 22, 28, 34, 22},
	}, nil
}

func (s *ExportService) dailyStatsDocument(req models.ExportRequest) (*export.Document, error) {
	stats, err := s.days.GetDailyStats(req.Date)
	if err != nil {
		return nil, err
	}
	items := []struct {
		label string
		value string
	}{
		{"إجمالي الطلاب", strconv.Itoa(stats.TotalStudents)},
		{models.AttendanceStatusPresent.Label(), strconv.Itoa(stats.PresentCount)},
		{models.AttendanceStatusAbsent.Label(), strconv.Itoa(stats.AbsentCount)},
		{models.AttendanceStatusTruant.Label(), strconv.Itoa(stats.TruantCount)},
		{models.AttendanceStatusEscape.Label(), strconv.Itoa(stats.EscapeCount)},
		{"نسبة الحضور", fmt.Sprintf(percentFmt, stats.AttendanceRate)},
	}
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, map[string]string{colItem: item.label, colCount: item.value})
	}
	return &export.Document{
		Header: export.Header{
			Title: "الإحصائية اليومية للحضور",
			Lines: []string{fmt.Sprintf("%s: %s", colDate, stats.Date)},
		},
		Data: export.Dataset{Headers: []string{colItem, colCount}, Rows: rows},
	}, nil
}

func (s *ExportService) classLine(classID string) string {
	class, ok := s.roster.FindClass(classID)
	if !ok {
		return ""
	}
	grade, _ := s.roster.FindGrade(class.GradeID)
	return fmt.Sprintf("الصف: %s - الشعبة: %s", grade.Name, class.Name)
}

func rangeLine(from, to *string) string {
	switch {
	case from == nil && to == nil:
		return rangeAll
	case from == nil:
		return "حتى " + *to
	case to == nil:
		return "من " + *from
	default:
		return fmt.Sprintf("من %s إلى %s", *from, *to)
	}
}

func notes(period *int, note *string) string {
	var parts []string
	if period != nil {
		parts = append(parts, fmt.Sprintf("%s %d", colPeriod, *period))
	}
	if note != nil && *note != "" {
		parts = append(parts, *note)
	}
	return strings.Join(parts, " - ")
}

func (s *ExportService) buildFilename(req models.ExportRequest) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	scope := req.Date
	switch req.Kind {
	case models.ExportStudentHistory:
		scope = req.StudentID
	case models.ExportClassPeriod:
		scope = req.ClassID
	}
	return fmt.Sprintf("%s_%s_%s.%s", req.Kind, sanitizeFilename(scope), timestamp, req.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}
