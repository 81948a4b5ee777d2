package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
)

func TestGradeServiceCreateValidates(t *testing.T) {
	f := newFixture(t)
	svc := NewGradeService(f.school, nil, nil)

	_, err := svc.Create(context.Background(), GradeRequest{Name: ""})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "name is required", appErr.Message)

	grade, err := svc.Create(context.Background(), GradeRequest{Name: " الصف الخامس "})
	require.NoError(t, err)
	assert.Equal(t, "الصف الخامس", grade.Name)
	assert.Len(t, svc.List(), 1)
}

func TestGradeServiceDeleteCascades(t *testing.T) {
	f := newFixture(t)
	g := f.grade(t, "5")
	c := f.class(t, "5/1", g.ID)
	f.student(t, "Ali", c.ID, "")
	svc := NewGradeService(f.school, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), g.ID))
	assert.Empty(t, f.school.Classes())
	assert.Empty(t, f.school.Students())

	// unknown ids are a no-op
	require.NoError(t, svc.Delete(context.Background(), "missing"))

	_, err := svc.Get(g.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestClassServiceCreateRequiresGrade(t *testing.T) {
	f := newFixture(t)
	svc := NewClassService(f.school, nil, nil)

	_, err := svc.Create(context.Background(), CreateClassRequest{Name: "5/1", GradeID: "missing"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "grade not found", appErr.Message)

	g := f.grade(t, "5")
	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "5/1", GradeID: g.ID})
	require.NoError(t, err)
	assert.Equal(t, g.ID, class.GradeID)
	assert.Len(t, svc.List(g.ID), 1)
	assert.Empty(t, svc.List("other"))
}

func TestClassServiceRenameUnknown(t *testing.T) {
	f := newFixture(t)
	svc := NewClassService(f.school, nil, nil)
	_, err := svc.Rename(context.Background(), "missing", RenameClassRequest{Name: "x"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreateDerivesGrade(t *testing.T) {
	f := newFixture(t)
	g := f.grade(t, "5")
	c := f.class(t, "5/1", g.ID)
	svc := NewStudentService(f.school, nil, nil)

	st, err := svc.Create(context.Background(), models.NewStudent{Name: "Salim", ClassID: c.ID, ParentPhone: "9123 4567"})
	require.NoError(t, err)
	assert.Equal(t, g.ID, st.GradeID)

	_, err = svc.Create(context.Background(), models.NewStudent{Name: "Salim", ClassID: "missing"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), models.NewStudent{ClassID: c.ID})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceListFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	g := f.grade(t, "5")
	c1 := f.class(t, "5/1", g.ID)
	c2 := f.class(t, "5/2", g.ID)
	f.student(t, "Ahmed", c1.ID, "")
	f.student(t, "Badr", c1.ID, "")
	f.student(t, "Hamad", c2.ID, "")
	svc := NewStudentService(f.school, nil, nil)

	all, page := svc.List(StudentFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, "Hamad", all[0].Name)
	assert.Equal(t, 3, page.TotalCount)

	inClass, _ := svc.List(StudentFilter{ClassID: c1.ID})
	assert.Len(t, inClass, 2)

	found, _ := svc.List(StudentFilter{Search: "bad"})
	require.Len(t, found, 1)
	assert.Equal(t, "Badr", found[0].Name)

	second, page := svc.List(StudentFilter{Page: 2, PageSize: 2})
	require.Len(t, second, 1)
	assert.Equal(t, "Ahmed", second[0].Name)
	assert.Equal(t, 2, page.Page)

	beyond, _ := svc.List(StudentFilter{Page: 5, PageSize: 2})
	assert.Empty(t, beyond)
}

func TestStudentServiceBulkIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	g := f.grade(t, "5")
	c := f.class(t, "5/1", g.ID)
	svc := NewStudentService(f.school, nil, nil)

	_, err := svc.CreateBulk(context.Background(), BulkCreateStudentsRequest{Students: []models.NewStudent{
		{Name: "A", ClassID: c.ID},
		{Name: "B", ClassID: "missing"},
	}})
	require.Error(t, err)
	assert.Empty(t, f.school.Students())

	created, err := svc.CreateBulk(context.Background(), BulkCreateStudentsRequest{Students: []models.NewStudent{
		{Name: "A", ClassID: c.ID},
		{Name: "B", ClassID: c.ID},
	}})
	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Equal(t, "B", f.school.Students()[0].Name)
}

func TestStudentServiceQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	g := f.grade(t, "5")
	c := f.class(t, "5/1", g.ID)
	f.fillStore()
	svc := NewStudentService(f.school, nil, nil)

	_, err := svc.Create(context.Background(), models.NewStudent{Name: "Salim", ClassID: c.ID})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStorageQuota.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrStorageQuota.Status, appErr.Status)
	assert.Empty(t, f.school.Students())
}

func TestStudentServiceMoveAndDelete(t *testing.T) {
	f := newFixture(t)
	g5 := f.grade(t, "5")
	g6 := f.grade(t, "6")
	c5 := f.class(t, "5/1", g5.ID)
	c6 := f.class(t, "6/1", g6.ID)
	st := f.student(t, "Salim", c5.ID, "")
	svc := NewStudentService(f.school, nil, nil)

	moved, err := svc.Move(context.Background(), st.ID, MoveStudentRequest{ClassID: c6.ID})
	require.NoError(t, err)
	assert.Equal(t, g6.ID, moved.GradeID)

	updated, err := svc.Update(context.Background(), st.ID, UpdateStudentRequest{Name: "Salim Said", ParentPhone: "91234567"})
	require.NoError(t, err)
	assert.Equal(t, "Salim Said", updated.Name)

	require.NoError(t, svc.Delete(context.Background(), st.ID))
	require.NoError(t, svc.Delete(context.Background(), st.ID))
	_, err = svc.Get(st.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
