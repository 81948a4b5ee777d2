package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/pkg/kvstore"
)

// failingStore fails every write once armed.
type failingStore struct {
	kvstore.Store
	err error
}

func (f *failingStore) Put(ctx context.Context, collection, key string, value []byte) error {
	if f.err != nil {
		return f.err
	}
	return f.Store.Put(ctx, collection, key, value)
}

func (f *failingStore) Delete(ctx context.Context, collection, key string) error {
	if f.err != nil {
		return f.err
	}
	return f.Store.Delete(ctx, collection, key)
}

func (f *failingStore) Update(ctx context.Context, fn func(tx kvstore.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return f.Store.Update(ctx, fn)
}

func sequentialIDs(prefix string) IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func newTestStore(t *testing.T) *kvstore.Memory {
	t.Helper()
	store := kvstore.NewMemory()
	require.NoError(t, store.Open(context.Background()))
	return store
}

func newSchoolRepo(t *testing.T, store kvstore.Store) *SchoolRepository {
	t.Helper()
	repo := NewSchoolRepository(store, nil, WithIDGenerator(sequentialIDs("id")))
	require.NoError(t, repo.Load(context.Background()))
	return repo
}

func TestSchoolRepositoryLoadEmptyStore(t *testing.T) {
	repo := newSchoolRepo(t, newTestStore(t))
	assert.Empty(t, repo.Grades())
	assert.Empty(t, repo.Classes())
	assert.Empty(t, repo.Students())
}

func TestSchoolRepositoryAddAndReload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := newSchoolRepo(t, store)

	grade, err := repo.AddGrade(ctx, " Fifth ")
	require.NoError(t, err)
	assert.Equal(t, "Fifth", grade.Name)
	class, err := repo.AddClass(ctx, "5/1", grade.ID)
	require.NoError(t, err)
	first, err := repo.AddStudent(ctx, models.NewStudent{Name: "Ahmed", ClassID: class.ID, ParentPhone: "91234567"})
	require.NoError(t, err)
	second, err := repo.AddStudent(ctx, models.NewStudent{Name: "Salim", ClassID: class.ID})
	require.NoError(t, err)

	assert.Equal(t, grade.ID, first.GradeID)
	students := repo.Students()
	require.Len(t, students, 2)
	assert.Equal(t, second.ID, students[0].ID, "newest student first")

	reloaded := NewSchoolRepository(store, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, repo.Grades(), reloaded.Grades())
	assert.Equal(t, repo.Classes(), reloaded.Classes())
	assert.Equal(t, repo.Students(), reloaded.Students())

	next, err := reloaded.AddGrade(ctx, "Sixth")
	require.NoError(t, err)
	assert.Greater(t, next.Seq, second.Seq)
}

func TestSchoolRepositoryAddRequiresParent(t *testing.T) {
	ctx := context.Background()
	repo := newSchoolRepo(t, newTestStore(t))

	_, err := repo.AddClass(ctx, "5/1", "missing")
	assert.ErrorIs(t, err, ErrGradeNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.AddStudent(ctx, models.NewStudent{Name: "Ahmed", ClassID: "missing"})
	assert.ErrorIs(t, err, ErrClassNotFound)
	assert.Empty(t, repo.Students())
}

func TestSchoolRepositoryDeleteGradeCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := newSchoolRepo(t, store)

	g5, _ := repo.AddGrade(ctx, "Fifth")
	g6, _ := repo.AddGrade(ctx, "Sixth")
	c51, _ := repo.AddClass(ctx, "5/1", g5.ID)
	c52, _ := repo.AddClass(ctx, "5/2", g5.ID)
	c61, _ := repo.AddClass(ctx, "6/1", g6.ID)
	_, err := repo.AddStudentsBulk(ctx, []models.NewStudent{
		{Name: "A", ClassID: c51.ID},
		{Name: "B", ClassID: c52.ID},
		{Name: "C", ClassID: c61.ID},
	})
	require.NoError(t, err)

	var events []ChangeEvent
	unsubscribe := repo.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })
	defer unsubscribe()

	require.NoError(t, repo.DeleteGrade(ctx, g5.ID))

	assert.Len(t, repo.Grades(), 1)
	for _, c := range repo.Classes() {
		assert.NotEqual(t, g5.ID, c.GradeID)
	}
	for _, s := range repo.Students() {
		assert.NotEqual(t, g5.ID, s.GradeID)
	}
	assert.Len(t, repo.Students(), 1)
	assert.Len(t, events, 5)

	// durable too
	reloaded := NewSchoolRepository(store, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Len(t, reloaded.Classes(), 1)
	assert.Len(t, reloaded.Students(), 1)

	// idempotent
	require.NoError(t, repo.DeleteGrade(ctx, g5.ID))
	assert.Len(t, events, 5)
}

func TestSchoolRepositoryDeleteGradeResumesInterruptedCascade(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	// state left behind by a cascade that only removed the grade
	require.NoError(t, kvstore.PutJSON(ctx, store, kvstore.CollectionClasses, "c1", models.SchoolClass{ID: "c1", GradeID: "g1", Seq: 2}))
	require.NoError(t, kvstore.PutJSON(ctx, store, kvstore.CollectionStudents, "s1", models.Student{ID: "s1", GradeID: "g1", ClassID: "c1", Seq: 3}))
	repo := newSchoolRepo(t, store)

	require.NoError(t, repo.DeleteGrade(ctx, "g1"))
	assert.Empty(t, repo.Classes())
	assert.Empty(t, repo.Students())
	recs, err := store.GetAll(ctx, kvstore.CollectionStudents)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSchoolRepositoryDeleteClassCascades(t *testing.T) {
	ctx := context.Background()
	repo := newSchoolRepo(t, newTestStore(t))
	g, _ := repo.AddGrade(ctx, "Fifth")
	c1, _ := repo.AddClass(ctx, "5/1", g.ID)
	c2, _ := repo.AddClass(ctx, "5/2", g.ID)
	_, _ = repo.AddStudent(ctx, models.NewStudent{Name: "A", ClassID: c1.ID})
	keep, _ := repo.AddStudent(ctx, models.NewStudent{Name: "B", ClassID: c2.ID})

	require.NoError(t, repo.DeleteClass(ctx, c1.ID))
	require.NoError(t, repo.DeleteClass(ctx, "unknown"))

	assert.Equal(t, []models.SchoolClass{c2}, repo.Classes())
	assert.Equal(t, []models.Student{keep}, repo.Students())
}

func TestSchoolRepositoryBulkMatchesSequentialAdds(t *testing.T) {
	ctx := context.Background()
	seed := func(repo *SchoolRepository) string {
		g, _ := repo.AddGrade(ctx, "Fifth")
		c, _ := repo.AddClass(ctx, "5/1", g.ID)
		return c.ID
	}
	input := func(classID string) []models.NewStudent {
		return []models.NewStudent{
			{Name: "A", ClassID: classID},
			{Name: "B", ClassID: classID, ParentPhone: "91234567"},
			{Name: "C", ClassID: classID},
		}
	}

	bulkRepo := newSchoolRepo(t, newTestStore(t))
	classID := seed(bulkRepo)
	_, err := bulkRepo.AddStudentsBulk(ctx, input(classID))
	require.NoError(t, err)

	seqRepo := newSchoolRepo(t, newTestStore(t))
	classID = seed(seqRepo)
	for _, in := range input(classID) {
		_, err := seqRepo.AddStudent(ctx, in)
		require.NoError(t, err)
	}

	assert.Equal(t, seqRepo.Students(), bulkRepo.Students())
	assert.Equal(t, "C", bulkRepo.Students()[0].Name)
}

func TestSchoolRepositoryBulkRejectsUnknownClass(t *testing.T) {
	ctx := context.Background()
	repo := newSchoolRepo(t, newTestStore(t))
	g, _ := repo.AddGrade(ctx, "Fifth")
	c, _ := repo.AddClass(ctx, "5/1", g.ID)

	_, err := repo.AddStudentsBulk(ctx, []models.NewStudent{
		{Name: "A", ClassID: c.ID},
		{Name: "B", ClassID: "missing"},
	})
	require.ErrorIs(t, err, ErrClassNotFound)
	assert.Empty(t, repo.Students())
}

func TestSchoolRepositoryRollsBackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: newTestStore(t)}
	repo := newSchoolRepo(t, store)
	g, _ := repo.AddGrade(ctx, "Fifth")
	c, _ := repo.AddClass(ctx, "5/1", g.ID)
	s, _ := repo.AddStudent(ctx, models.NewStudent{Name: "A", ClassID: c.ID})

	store.err = fmt.Errorf("write: %w", kvstore.ErrQuotaExceeded)

	_, err := repo.AddGrade(ctx, "Sixth")
	assert.ErrorIs(t, err, kvstore.ErrQuotaExceeded)
	_, err = repo.AddStudent(ctx, models.NewStudent{Name: "B", ClassID: c.ID})
	assert.ErrorIs(t, err, kvstore.ErrQuotaExceeded)
	_, err = repo.RenameGrade(ctx, g.ID, "Renamed")
	assert.ErrorIs(t, err, kvstore.ErrQuotaExceeded)
	err = repo.DeleteGrade(ctx, g.ID)
	assert.ErrorIs(t, err, kvstore.ErrQuotaExceeded)
	err = repo.DeleteStudent(ctx, s.ID)
	assert.ErrorIs(t, err, kvstore.ErrQuotaExceeded)

	assert.Equal(t, []models.Grade{g}, repo.Grades())
	assert.Equal(t, []models.SchoolClass{c}, repo.Classes())
	assert.Equal(t, []models.Student{s}, repo.Students())

	// sequence numbers are not consumed by failed writes
	store.err = nil
	next, err := repo.AddGrade(ctx, "Sixth")
	require.NoError(t, err)
	assert.Equal(t, s.Seq+1, next.Seq)
}

func TestSchoolRepositoryMoveStudentKeepsGradeInSync(t *testing.T) {
	ctx := context.Background()
	repo := newSchoolRepo(t, newTestStore(t))
	g5, _ := repo.AddGrade(ctx, "Fifth")
	g6, _ := repo.AddGrade(ctx, "Sixth")
	c5, _ := repo.AddClass(ctx, "5/1", g5.ID)
	c6, _ := repo.AddClass(ctx, "6/1", g6.ID)
	s, _ := repo.AddStudent(ctx, models.NewStudent{Name: "A", ClassID: c5.ID})

	moved, err := repo.MoveStudent(ctx, s.ID, c6.ID)
	require.NoError(t, err)
	assert.Equal(t, c6.ID, moved.ClassID)
	assert.Equal(t, g6.ID, moved.GradeID)
	assert.Empty(t, repo.StudentsByClass(c5.ID))
	assert.Len(t, repo.StudentsByClass(c6.ID), 1)

	_, err = repo.MoveStudent(ctx, s.ID, "missing")
	assert.ErrorIs(t, err, ErrClassNotFound)
	_, err = repo.MoveStudent(ctx, "missing", c5.ID)
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestSchoolRepositoryUpdateAndDeleteStudent(t *testing.T) {
	ctx := context.Background()
	repo := newSchoolRepo(t, newTestStore(t))
	g, _ := repo.AddGrade(ctx, "Fifth")
	c, _ := repo.AddClass(ctx, "5/1", g.ID)
	s, _ := repo.AddStudent(ctx, models.NewStudent{Name: "A", ClassID: c.ID})

	updated, err := repo.UpdateStudent(ctx, s.ID, "Ahmed", "99887766")
	require.NoError(t, err)
	assert.Equal(t, "Ahmed", updated.Name)
	assert.Equal(t, "99887766", updated.ParentPhone)
	assert.Equal(t, s.Seq, updated.Seq)

	renamed, err := repo.RenameClass(ctx, c.ID, "5/A")
	require.NoError(t, err)
	assert.Equal(t, "5/A", renamed.Name)

	require.NoError(t, repo.DeleteStudent(ctx, s.ID))
	require.NoError(t, repo.DeleteStudent(ctx, s.ID))
	_, ok := repo.FindStudent(s.ID)
	assert.False(t, ok)
}

func TestSchoolRepositoryUnsubscribe(t *testing.T) {
	ctx := context.Background()
	repo := newSchoolRepo(t, newTestStore(t))
	calls := 0
	unsubscribe := repo.Subscribe(func(ChangeEvent) { calls++ })
	_, _ = repo.AddGrade(ctx, "Fifth")
	unsubscribe()
	_, _ = repo.AddGrade(ctx, "Sixth")
	assert.Equal(t, 1, calls)
}

func TestSchoolRepositoryLoadFailure(t *testing.T) {
	repo := NewSchoolRepository(kvstore.NewMemory(), nil)
	err := repo.Load(context.Background())
	assert.True(t, errors.Is(err, kvstore.ErrNotOpen))
}
