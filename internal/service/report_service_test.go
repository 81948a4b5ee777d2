package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
)

// memoryCache is a CacheRepository over a map, storing JSON like Redis does.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCache) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestReportServiceStudentHistory(t *testing.T) {
	f := newFixture(t)
	g := f.grade(t, "5")
	c := f.class(t, "5/1", g.ID)
	a := f.student(t, "A", c.ID, "")
	b := f.student(t, "B", c.ID, "")
	f.mark(t, "2024-01-08", a.ID, models.AttendanceStatusAbsent, 10)
	f.mark(t, "2024-01-09", a.ID, models.AttendanceStatusPresent, 20)
	f.mark(t, "2024-01-10", a.ID, models.AttendanceStatusEscape, 5)
	f.mark(t, "2024-01-12", a.ID, models.AttendanceStatusTruant, 30)
	f.mark(t, "2024-01-10", b.ID, models.AttendanceStatusAbsent, 40)
	svc := NewReportService(f.attendance, f.school, nil, nil)
	ctx := context.Background()

	history, err := svc.GetStudentHistory(ctx, a.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2024-01-12", history[0].Date)
	assert.Equal(t, "2024-01-10", history[1].Date)
	assert.Equal(t, "2024-01-08", history[2].Date)
	for _, rec := range history {
		assert.NotEqual(t, models.AttendanceStatusPresent, rec.Status)
	}

	ranged, err := svc.GetStudentHistory(ctx, a.ID, strPtr("2024-01-09"), strPtr("2024-01-10"))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, models.AttendanceStatusEscape, ranged[0].Status)

	none, err := svc.GetStudentHistory(ctx, "missing", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.GetStudentHistory(ctx, a.ID, strPtr("Jan 1"), nil)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportServiceClassPeriodStats(t *testing.T) {
	f := newFixture(t)
	g := f.grade(t, "5")
	c := f.class(t, "5/1", g.ID)
	a := f.student(t, "A", c.ID, "")
	b := f.student(t, "B", c.ID, "")
	other := f.class(t, "5/2", g.ID)
	x := f.student(t, "X", other.ID, "")
	f.mark(t, "2024-01-08", a.ID, models.AttendanceStatusAbsent, 1)
	f.mark(t, "2024-01-09", a.ID, models.AttendanceStatusAbsent, 1)
	f.mark(t, "2024-01-10", a.ID, models.AttendanceStatusTruant, 1)
	f.mark(t, "2024-02-01", a.ID, models.AttendanceStatusEscape, 1)
	f.mark(t, "2024-01-08", x.ID, models.AttendanceStatusAbsent, 1)
	svc := NewReportService(f.attendance, f.school, nil, nil)
	ctx := context.Background()

	stats, err := svc.GetClassPeriodStats(ctx, c.ID, strPtr("2024-01-01"), strPtr("2024-01-31"), ClassPeriodOptions{})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	byID := map[string]models.ClassPeriodStat{}
	for _, st := range stats {
		byID[st.Student.ID] = st
	}
	assert.Equal(t, 2, byID[a.ID].AbsentCount)
	assert.Equal(t, 1, byID[a.ID].TruantCount)
	assert.Zero(t, byID[a.ID].EscapeCount)
	assert.Zero(t, byID[b.ID].Total())

	only, err := svc.GetClassPeriodStats(ctx, c.ID, nil, nil, ClassPeriodOptions{OnlyViolations: true})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, 4, only[0].Total())

	empty, err := svc.GetClassPeriodStats(ctx, "missing", nil, nil, ClassPeriodOptions{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReportServiceCacheInvalidatedOnChange(t *testing.T) {
	f := newFixture(t)
	g := f.grade(t, "5")
	c := f.class(t, "5/1", g.ID)
	a := f.student(t, "A", c.ID, "")
	f.mark(t, "2024-01-08", a.ID, models.AttendanceStatusAbsent, 1)

	backend := newMemoryCache()
	cache := NewCacheService(backend, NewMetricsService(), "reports", time.Minute, nil, true)
	svc := NewReportService(f.attendance, f.school, cache, nil)
	stop := svc.Watch(f.attendance, f.school)
	defer stop()
	ctx := context.Background()

	first, err := svc.GetStudentHistory(ctx, a.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, backend.size())

	cached, err := svc.GetStudentHistory(ctx, a.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first, cached)
	assert.Equal(t, uint64(1), cache.metrics.Snapshot().CacheHits)

	f.mark(t, "2024-01-09", a.ID, models.AttendanceStatusAbsent, 2)
	fresh, err := svc.GetStudentHistory(ctx, a.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)

	f.student(t, "B", c.ID, "")
	stats, err := svc.GetClassPeriodStats(ctx, c.ID, nil, nil, ClassPeriodOptions{})
	require.NoError(t, err)
	assert.Len(t, stats, 2)

	require.NoError(t, cache.Invalidate(ctx))
	assert.Zero(t, backend.size())
}
