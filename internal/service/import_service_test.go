package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	appErrors "github.com/noah-isme/hudoor/pkg/errors"
)

func TestImportServicePreviewCSV(t *testing.T) {
	svc := NewImportService(nil, 0, nil, nil)
	data := []byte("\xef\xbb\xbfاسم الطالب,رقم ولي الأمر\n" +
		"أحمد  سالم,91234567\n" +
		",\n" +
		",99999999\n" +
		"خالد,123\n" +
		"مريم,\n")

	preview, err := svc.Preview("students.csv", data)
	require.NoError(t, err)
	assert.True(t, preview.HeaderDetected)
	require.Len(t, preview.Rows, 3)
	assert.Equal(t, ImportRow{Line: 2, Name: "أحمد سالم", ParentPhone: "91234567"}, preview.Rows[0])
	assert.Equal(t, "خالد", preview.Rows[1].Name)
	assert.Equal(t, "", preview.Rows[2].ParentPhone)

	require.Len(t, preview.Problems, 2)
	assert.Equal(t, 4, preview.Problems[0].Line)
	assert.Equal(t, "missing student name", preview.Problems[0].Message)
	assert.Equal(t, 5, preview.Problems[1].Line)
}

func TestImportServicePreviewWithoutHeader(t *testing.T) {
	svc := NewImportService(nil, 0, nil, nil)
	preview, err := svc.Preview("list.txt", []byte("Ali,91234567\nSara,92345678\n"))
	require.NoError(t, err)
	assert.False(t, preview.HeaderDetected)
	require.Len(t, preview.Rows, 2)
	assert.Equal(t, 1, preview.Rows[0].Line)
	assert.Empty(t, preview.Problems)
}

func TestImportServicePreviewXLSX(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]interface{}{"Phone", "Name"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]interface{}{"91234567", "Ali"}))
	require.NoError(t, book.SetSheetRow(sheet, "A3", &[]interface{}{"", "Sara"}))
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	svc := NewImportService(nil, 0, nil, nil)
	preview, err := svc.Preview("Students.XLSX", buf.Bytes())
	require.NoError(t, err)
	assert.True(t, preview.HeaderDetected)
	require.Len(t, preview.Rows, 2)
	assert.Equal(t, ImportRow{Line: 2, Name: "Ali", ParentPhone: "91234567"}, preview.Rows[0])
	assert.Equal(t, "Sara", preview.Rows[1].Name)
}

func TestImportServicePreviewRejects(t *testing.T) {
	svc := NewImportService(nil, 16, nil, nil)
	cases := []struct {
		name     string
		filename string
		data     []byte
	}{
		{name: "too large", filename: "a.csv", data: make([]byte, 17)},
		{name: "unsupported type", filename: "a.pdf", data: []byte("x")},
		{name: "broken workbook", filename: "a.xlsx", data: []byte("not a zip")},
		{name: "empty", filename: "a.csv", data: []byte("name\n")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Preview(tc.filename, tc.data)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrImportFailed.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestImportServiceCommit(t *testing.T) {
	f := newFixture(t)
	g := f.grade(t, "5")
	c := f.class(t, "5/1", g.ID)
	svc := NewImportService(f.school, 0, nil, nil)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitImportRequest{ClassID: "missing", Rows: []ImportRow{{Line: 1, Name: "Ali"}}})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Commit(ctx, CommitImportRequest{ClassID: c.ID})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	created, err := svc.Commit(ctx, CommitImportRequest{ClassID: c.ID, Rows: []ImportRow{
		{Line: 2, Name: "Ali", ParentPhone: "91234567"},
		{Line: 3, Name: "Sara"},
	}})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, g.ID, created[0].GradeID)
	assert.Len(t, f.school.StudentsByClass(c.ID), 2)
}
