package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/export"
)

type capturingPDF struct {
	doc export.Document
}

func (c *capturingPDF) RenderDocument(doc export.Document) ([]byte, error) {
	c.doc = doc
	return []byte("%PDF-stub"), nil
}

type exportFixture struct {
	*fixture
	svc   *ExportService
	pdf   *capturingPDF
	class models.SchoolClass
	a, b  models.Student
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.settings.SaveSettings(ctx, models.SchoolSettings{Name: "مدرسة النور", IsSetup: true}))
	require.NoError(t, f.settings.SaveAssets(ctx, models.SchoolAssets{Logo: pngDataURL, PrincipalSignature: pngDataURL}))
	g := f.grade(t, "الخامس")
	c := f.class(t, "1", g.ID)
	a := f.student(t, "أحمد", c.ID, "")
	b := f.student(t, "سالم", c.ID, "")
	require.NoError(t, f.attendance.Save(ctx, models.AttendanceRecord{
		Date: "2024-01-10", StudentID: a.ID, Status: models.AttendanceStatusTruant, Period: intPtr(2), Note: strPtr("بدون إذن"), Timestamp: 1,
	}))
	f.mark(t, "2024-01-11", a.ID, models.AttendanceStatusAbsent, 2)

	attendance := NewAttendanceService(f.attendance, f.school, nil, nil, nil)
	reports := NewReportService(f.attendance, f.school, nil, nil)
	settings := NewSettingsService(f.settings, SettingsConfig{}, nil, nil)
	pdf := &capturingPDF{}
	svc := NewExportService(attendance, reports, f.school, settings, nil, nil, pdf, nil)
	svc.now = fixedClock(time.Date(2024, 1, 12, 9, 30, 0, 0, time.UTC))
	return &exportFixture{fixture: f, svc: svc, pdf: pdf, class: c, a: a, b: b}
}

func readCSVExport(t *testing.T, data []byte) [][]string {
	t.Helper()
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	rows, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportServiceDailySheetCSV(t *testing.T) {
	f := newExportFixture(t)
	file, err := f.svc.Render(context.Background(), models.ExportRequest{
		Kind: models.ExportDailySheet, Format: models.ExportFormatCSV, ClassID: f.class.ID, Date: "2024-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Equal(t, "daily_sheet_2024-01-10_20240112_093000.csv", file.Name)

	rows := readCSVExport(t, file.Data)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"م", "اسم الطالب", "الحالة", "ملاحظات"}, rows[0])
	assert.Equal(t, []string{"1", "أحمد", "هروب من حصة", "الحصة 2 - بدون إذن"}, rows[1])
	assert.Equal(t, []string{"2", "سالم", "حاضر", ""}, rows[2])
}

func TestExportServiceDailySheetPDFIsDecorated(t *testing.T) {
	f := newExportFixture(t)
	file, err := f.svc.Render(context.Background(), models.ExportRequest{
		Kind: models.ExportDailySheet, Format: models.ExportFormatPDF, ClassID: f.class.ID, Date: "2024-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-stub"), file.Data)

	doc := f.pdf.doc
	assert.Equal(t, "مدرسة النور", doc.Header.SchoolName)
	assert.Contains(t, doc.Header.Lines, "الصف: الخامس - الشعبة: 1")
	require.NotNil(t, doc.Logo)
	assert.Nil(t, doc.Stamp)
	require.Len(t, doc.Signatures, 2)
	assert.NotNil(t, doc.Signatures[0].Image)
	assert.Nil(t, doc.Signatures[1].Image)

	var total float64
	for _, w := range doc.Widths {
		total += w
	}
	assert.InDelta(t, 210-2*export.PageMargin, total, 0.001)
}

func TestExportServiceHistoryAndPeriod(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()

	file, err := f.svc.Render(ctx, models.ExportRequest{
		Kind: models.ExportStudentHistory, Format: models.ExportFormatCSV, StudentID: f.a.ID,
	})
	require.NoError(t, err)
	rows := readCSVExport(t, file.Data)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-01-11", rows[1][1])
	assert.Equal(t, "2", rows[2][3])

	file, err = f.svc.Render(ctx, models.ExportRequest{
		Kind: models.ExportClassPeriod, Format: models.ExportFormatCSV, ClassID: f.class.ID, OnlyViolations: true,
	})
	require.NoError(t, err)
	rows = readCSVExport(t, file.Data)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "أحمد", "1", "1", "0", "2"}, rows[1])

	_, err = f.svc.Render(ctx, models.ExportRequest{
		Kind: models.ExportClassPeriod, Format: models.ExportFormatPDF, ClassID: f.class.ID, From: strPtr("2024-01-01"),
	})
	require.NoError(t, err)
	assert.Contains(t, f.pdf.doc.Header.Lines, "من 2024-01-01")
	assert.Len(t, f.pdf.doc.Signatures, 2)
}

func TestExportServiceDailyStatsXLSX(t *testing.T) {
	f := newExportFixture(t)
	file, err := f.svc.Render(context.Background(), models.ExportRequest{
		Kind: models.ExportDailyStats, Format: models.ExportFormatXLSX, Date: "2024-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatXLSX.ContentType(), file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("PK")))

	_, err = f.svc.Render(context.Background(), models.ExportRequest{
		Kind: models.ExportDailyStats, Format: models.ExportFormatPDF, Date: "2024-01-10",
	})
	require.NoError(t, err)
	assert.Empty(t, f.pdf.doc.Signatures)
	assert.Equal(t, "50%", f.pdf.doc.Data.Rows[5]["العدد"])
}

func TestExportServiceCheckRequest(t *testing.T) {
	f := newExportFixture(t)
	cases := []struct {
		name string
		req  models.ExportRequest
		code string
	}{
		{name: "sheet without class", req: models.ExportRequest{Kind: models.ExportDailySheet, Date: "2024-01-10"}, code: appErrors.ErrValidation.Code},
		{name: "sheet unknown class", req: models.ExportRequest{Kind: models.ExportDailySheet, Date: "2024-01-10", ClassID: "x"}, code: appErrors.ErrNotFound.Code},
		{name: "history without student", req: models.ExportRequest{Kind: models.ExportStudentHistory}, code: appErrors.ErrValidation.Code},
		{name: "history unknown student", req: models.ExportRequest{Kind: models.ExportStudentHistory, StudentID: "x"}, code: appErrors.ErrNotFound.Code},
		{name: "period unknown class", req: models.ExportRequest{Kind: models.ExportClassPeriod, ClassID: "x"}, code: appErrors.ErrNotFound.Code},
		{name: "stats without date", req: models.ExportRequest{Kind: models.ExportDailyStats}, code: appErrors.ErrValidation.Code},
		{name: "unknown kind", req: models.ExportRequest{Kind: "weekly"}, code: appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.CheckRequest(tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
	assert.NoError(t, f.svc.CheckRequest(models.ExportRequest{Kind: models.ExportDailyStats, Date: "2024-01-10"}))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "all", sanitizeFilename(""))
	assert.Equal(t, "a-b_c", sanitizeFilename("a/b c"))
	assert.Equal(t, "x.-y", sanitizeFilename("x../y"))
}
