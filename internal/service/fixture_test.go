package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/internal/repository"
	"github.com/noah-isme/hudoor/pkg/kvstore"
)

// fixture wires the real repositories over an in-memory store.
type fixture struct {
	store      *kvstore.Memory
	school     *repository.SchoolRepository
	attendance *repository.AttendanceRepository
	settings   *repository.SettingsRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := kvstore.NewMemory()
	require.NoError(t, store.Open(ctx))

	n := 0
	school := repository.NewSchoolRepository(store, nil, repository.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	require.NoError(t, school.Load(ctx))
	attendance := repository.NewAttendanceRepository(store, nil)
	require.NoError(t, attendance.Load(ctx))

	return &fixture{store: store, school: school, attendance: attendance, settings: repository.NewSettingsRepository(store)}
}

// fillStore makes every further write exceed the quota.
func (f *fixture) fillStore() {
	f.store.MaxBytes = f.store.Size()
}

func (f *fixture) grade(t *testing.T, name string) models.Grade {
	t.Helper()
	g, err := f.school.AddGrade(context.Background(), name)
	require.NoError(t, err)
	return g
}

func (f *fixture) class(t *testing.T, name, gradeID string) models.SchoolClass {
	t.Helper()
	c, err := f.school.AddClass(context.Background(), name, gradeID)
	require.NoError(t, err)
	return c
}

func (f *fixture) student(t *testing.T, name, classID, phone string) models.Student {
	t.Helper()
	s, err := f.school.AddStudent(context.Background(), models.NewStudent{Name: name, ClassID: classID, ParentPhone: phone})
	require.NoError(t, err)
	return s
}

func (f *fixture) mark(t *testing.T, date, studentID string, status models.AttendanceStatus, ts int64) {
	t.Helper()
	require.NoError(t, f.attendance.Save(context.Background(), models.AttendanceRecord{Date: date, StudentID: studentID, Status: status, Timestamp: ts}))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
