package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/phone"
)

var (
	nameHeaders  = []string{"name", "student", "student name", "الاسم", "اسم الطالب", "الطالب"}
	phoneHeaders = []string{"phone", "mobile", "parent phone", "رقم ولي الأمر", "هاتف ولي الأمر", "الهاتف", "رقم الهاتف"}
)

type importTarget interface {
	FindClass(id string) (models.SchoolClass, bool)
	AddStudentsBulk(ctx context.Context, in []models.NewStudent) ([]models.Student, error)
}

// ImportRow is a student read from a spreadsheet. Line is 1-based.
type ImportRow struct {
	Line        int    `json:"line"`
	Name        string `json:"name" validate:"required,max=128"`
	ParentPhone string `json:"parentPhone" validate:"max=32"`
}

// ImportProblem flags a spreadsheet line.
type ImportProblem struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportPreview is the parsed content shown before committing.
type ImportPreview struct {
	Rows           []ImportRow     `json:"rows"`
	Problems       []ImportProblem `json:"problems"`
	HeaderDetected bool            `json:"headerDetected"`
}

// CommitImportRequest enrols previewed rows into a class.
type CommitImportRequest struct {
	ClassID string      `json:"classId" validate:"required"`
	Rows    []ImportRow `json:"rows" validate:"required,min=1,max=1000,dive"`
}

// ImportService reads student lists from xlsx or csv files.
type ImportService struct {
	target    importTarget
	validator *validator.Validate
	logger    *zap.Logger
	maxBytes  int64
}

// NewImportService constructs the import service.
func NewImportService(target importTarget, maxBytes int64, validate *validator.Validate, logger *zap.Logger) *ImportService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &ImportService{target: target, validator: validate, logger: logger, maxBytes: maxBytes}
}

// MaxBytes is the largest accepted upload.
func (s *ImportService) MaxBytes() int64 {
	return s.maxBytes
}

// Preview parses the file. Lines that cannot be used are reported as
// problems and left out; the rest is returned.
func (s *ImportService) Preview(filename string, data []byte) (*ImportPreview, error) {
	if int64(len(data)) > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrImportFailed, "file is too large")
	}

	var (
		table [][]string
		err   error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		table, err = readXLSX(data)
	case ".csv", ".txt":
		table, err = readCSV(data)
	default:
		return nil, appErrors.Clone(appErrors.ErrImportFailed, "unsupported file type, use .xlsx or .csv")
	}
	if err != nil {
		s.logger.Warn("student import parse failed", zap.String("file", filename), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, appErrors.ErrImportFailed.Message)
	}

	preview := parseTable(table)
	if len(preview.Rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrImportFailed, "no students found in file")
	}
	s.logger.Info("student import parsed",
		zap.String("file", filename),
		zap.Int("rows", len(preview.Rows)),
		zap.Int("problems", len(preview.Problems)),
	)
	return preview, nil
}

// Commit adds every row to the class in one write, or none of them.
func (s *ImportService) Commit(ctx context.Context, req CommitImportRequest) ([]models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	if _, ok := s.target.FindClass(req.ClassID); !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	in := make([]models.NewStudent, len(req.Rows))
	for i, row := range req.Rows {
		in[i] = models.NewStudent{Name: row.Name, ClassID: req.ClassID, ParentPhone: row.ParentPhone}
	}
	created, err := s.target.AddStudentsBulk(ctx, in)
	if err != nil {
		return nil, storeError(err, "failed to import students")
	}
	s.logger.Info("students imported", zap.String("class_id", req.ClassID), zap.Int("count", len(created)))
	return created, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func parseTable(table [][]string) *ImportPreview {
	preview := &ImportPreview{Rows: []ImportRow{}, Problems: []ImportProblem{}}
	nameCol, phoneCol, start := 0, 1, 0
	if len(table) > 0 {
		if n, p, ok := detectHeader(table[0]); ok {
			nameCol, phoneCol, start = n, p, 1
			preview.HeaderDetected = true
		}
	}

	for i := start; i < len(table); i++ {
		line := i + 1
		row := table[i]
		name := strings.Join(strings.Fields(cell(row, nameCol)), " ")
		rawPhone := cell(row, phoneCol)
		if name == "" && rawPhone == "" {
			continue
		}
		if name == "" {
			preview.Problems = append(preview.Problems, ImportProblem{Line: line, Message: "missing student name"})
			continue
		}
		if len([]rune(name)) > 128 {
			preview.Problems = append(preview.Problems, ImportProblem{Line: line, Message: "student name is too long"})
			continue
		}
		if rawPhone != "" && len(phone.Normalize(rawPhone)) != len(phone.CountryCode)+8 {
			preview.Problems = append(preview.Problems, ImportProblem{Line: line, Message: "phone number does not look like an Omani number"})
		}
		preview.Rows = append(preview.Rows, ImportRow{Line: line, Name: name, ParentPhone: rawPhone})
	}
	return preview
}

// detectHeader finds the name column and, if present, the phone column.
func detectHeader(row []string) (nameCol, phoneCol int, ok bool) {
	nameCol, phoneCol = -1, -1
	for i, raw := range row {
		label := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case nameCol < 0 && contains(nameHeaders, label):
			nameCol = i
		case phoneCol < 0 && contains(phoneHeaders, label):
			phoneCol = i
		}
	}
	return nameCol, phoneCol, nameCol >= 0
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
