package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/pkg/kvstore"
)

// SchoolRepository owns the in-memory grades, classes and students and
// writes every change through to the store before returning. When the
// store write fails the in-memory state is left untouched.
type SchoolRepository struct {
	notifier

	store  kvstore.Store
	logger *zap.Logger
	newID  IDGenerator

	mu       sync.RWMutex
	grades   []models.Grade       // ascending Seq
	classes  []models.SchoolClass // ascending Seq
	students []models.Student     // descending Seq, newest first
	seq      int64
}

// SchoolOption customises a SchoolRepository.
type SchoolOption func(*SchoolRepository)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen IDGenerator) SchoolOption {
	return func(r *SchoolRepository) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewSchoolRepository constructs the repository. Call Load before use.
func NewSchoolRepository(store kvstore.Store, logger *zap.Logger, opts ...SchoolOption) *SchoolRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &SchoolRepository{store: store, logger: logger, newID: newUUID}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads the three collections once. An empty store yields empty
// collections.
func (r *SchoolRepository) Load(ctx context.Context) error {
	var (
		grades   []models.Grade
		classes  []models.SchoolClass
		students []models.Student
	)
	if err := loadCollection(ctx, r.store, kvstore.CollectionGrades, &grades); err != nil {
		return err
	}
	if err := loadCollection(ctx, r.store, kvstore.CollectionClasses, &classes); err != nil {
		return err
	}
	if err := loadCollection(ctx, r.store, kvstore.CollectionStudents, &students); err != nil {
		return err
	}

	var maxSeq int64
	for _, g := range grades {
		maxSeq = max64(maxSeq, g.Seq)
	}
	for _, c := range classes {
		maxSeq = max64(maxSeq, c.Seq)
	}
	for _, s := range students {
		maxSeq = max64(maxSeq, s.Seq)
	}
	sort.SliceStable(grades, func(i, j int) bool { return grades[i].Seq < grades[j].Seq })
	sort.SliceStable(classes, func(i, j int) bool { return classes[i].Seq < classes[j].Seq })
	sort.SliceStable(students, func(i, j int) bool { return students[i].Seq > students[j].Seq })

	r.mu.Lock()
	r.grades, r.classes, r.students, r.seq = grades, classes, students, maxSeq
	r.mu.Unlock()

	r.logger.Info("school loaded",
		zap.Int("grades", len(grades)),
		zap.Int("classes", len(classes)),
		zap.Int("students", len(students)))
	return nil
}

func loadCollection[T any](ctx context.Context, store kvstore.Store, collection string, dest *[]T) error {
	records, err := store.GetAll(ctx, collection)
	if err != nil {
		return fmt.Errorf("load %s: %w", collection, err)
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		var item T
		if err := rec.Decode(&item); err != nil {
			return fmt.Errorf("load %s: %w", collection, err)
		}
		out = append(out, item)
	}
	*dest = out
	return nil
}

// Grades returns a copy of all grades in creation order.
func (r *SchoolRepository) Grades() []models.Grade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Grade(nil), r.grades...)
}

// Classes returns a copy of all classes in creation order.
func (r *SchoolRepository) Classes() []models.SchoolClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.SchoolClass(nil), r.classes...)
}

// Students returns a copy of all students, most recently added first.
func (r *SchoolRepository) Students() []models.Student {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Student(nil), r.students...)
}

// ClassesByGrade returns the classes of a grade.
func (r *SchoolRepository) ClassesByGrade(gradeID string) []models.SchoolClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SchoolClass, 0)
	for _, c := range r.classes {
		if c.GradeID == gradeID {
			out = append(out, c)
		}
	}
	return out
}

// StudentsByClass returns the students of a class, newest first.
func (r *SchoolRepository) StudentsByClass(classID string) []models.Student {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Student, 0)
	for _, s := range r.students {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	return out
}

// FindGrade looks a grade up by id.
func (r *SchoolRepository) FindGrade(id string) (models.Grade, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.gradeIndex(id); i >= 0 {
		return r.grades[i], true
	}
	return models.Grade{}, false
}

// FindClass looks a class up by id.
func (r *SchoolRepository) FindClass(id string) (models.SchoolClass, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.classIndex(id); i >= 0 {
		return r.classes[i], true
	}
	return models.SchoolClass{}, false
}

// FindStudent looks a student up by id.
func (r *SchoolRepository) FindStudent(id string) (models.Student, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.studentIndex(id); i >= 0 {
		return r.students[i], true
	}
	return models.Student{}, false
}

// StudentCount returns the roster size.
func (r *SchoolRepository) StudentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students)
}

// AddGrade creates a grade.
func (r *SchoolRepository) AddGrade(ctx context.Context, name string) (models.Grade, error) {
	r.mu.Lock()
	grade := models.Grade{ID: r.newID(), Name: strings.TrimSpace(name), Seq: r.seq + 1}
	if err := kvstore.PutJSON(ctx, r.store, kvstore.CollectionGrades, grade.ID, grade); err != nil {
		r.mu.Unlock()
		return models.Grade{}, fmt.Errorf("add grade: %w", err)
	}
	r.seq = grade.Seq
	r.grades = append(r.grades, grade)
	r.mu.Unlock()

	r.publish(ChangeEvent{Kind: ChangeGrade, Op: OpCreated, ID: grade.ID})
	return grade, nil
}

// RenameGrade changes the name of a grade.
func (r *SchoolRepository) RenameGrade(ctx context.Context, id, name string) (models.Grade, error) {
	r.mu.Lock()
	i := r.gradeIndex(id)
	if i < 0 {
		r.mu.Unlock()
		return models.Grade{}, ErrGradeNotFound
	}
	grade := r.grades[i]
	grade.Name = strings.TrimSpace(name)
	if err := kvstore.PutJSON(ctx, r.store, kvstore.CollectionGrades, grade.ID, grade); err != nil {
		r.mu.Unlock()
		return models.Grade{}, fmt.Errorf("rename grade: %w", err)
	}
	r.grades[i] = grade
	r.mu.Unlock()

	r.publish(ChangeEvent{Kind: ChangeGrade, Op: OpUpdated, ID: grade.ID})
	return grade, nil
}

// DeleteGrade removes the grade, its classes and their students in one
// store transaction. Unknown ids are a no-op. Classes or students still
// referencing an already deleted grade are removed as well, so re-running
// an interrupted cascade is safe.
func (r *SchoolRepository) DeleteGrade(ctx context.Context, id string) error {
	r.mu.Lock()
	classIDs := make(map[string]struct{})
	for _, c := range r.classes {
		if c.GradeID == id {
			classIDs[c.ID] = struct{}{}
		}
	}
	gradeExists := r.gradeIndex(id) >= 0
	events, err := r.cascadeLocked(ctx, id, gradeExists, classIDs)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	r.publish(events...)
	return nil
}

// AddClass creates a class under an existing grade.
func (r *SchoolRepository) AddClass(ctx context.Context, name, gradeID string) (models.SchoolClass, error) {
	r.mu.Lock()
	if r.gradeIndex(gradeID) < 0 {
		r.mu.Unlock()
		return models.SchoolClass{}, ErrGradeNotFound
	}
	class := models.SchoolClass{ID: r.newID(), Name: strings.TrimSpace(name), GradeID: gradeID, Seq: r.seq + 1}
	if err := kvstore.PutJSON(ctx, r.store, kvstore.CollectionClasses, class.ID, class); err != nil {
		r.mu.Unlock()
		return models.SchoolClass{}, fmt.Errorf("add class: %w", err)
	}
	r.seq = class.Seq
	r.classes = append(r.classes, class)
	r.mu.Unlock()

	r.publish(ChangeEvent{Kind: ChangeClass, Op: OpCreated, ID: class.ID})
	return class, nil
}

// RenameClass changes the name of a class.
func (r *SchoolRepository) RenameClass(ctx context.Context, id, name string) (models.SchoolClass, error) {
	r.mu.Lock()
	i := r.classIndex(id)
	if i < 0 {
		r.mu.Unlock()
		return models.SchoolClass{}, ErrClassNotFound
	}
	class := r.classes[i]
	class.Name = strings.TrimSpace(name)
	if err := kvstore.PutJSON(ctx, r.store, kvstore.CollectionClasses, class.ID, class); err != nil {
		r.mu.Unlock()
		return models.SchoolClass{}, fmt.Errorf("rename class: %w", err)
	}
	r.classes[i] = class
	r.mu.Unlock()

	r.publish(ChangeEvent{Kind: ChangeClass, Op: OpUpdated, ID: class.ID})
	return class, nil
}

// DeleteClass removes the class and its students in one transaction.
// Unknown ids are a no-op.
func (r *SchoolRepository) DeleteClass(ctx context.Context, id string) error {
	r.mu.Lock()
	events, err := r.cascadeLocked(ctx, "", false, map[string]struct{}{id: {}})
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	r.publish(events...)
	return nil
}

// cascadeLocked deletes gradeID (when non-empty), the given classes and
// every student in them. Students whose denormalized gradeId points at the
// deleted grade go too. The caller holds r.mu.
func (r *SchoolRepository) cascadeLocked(ctx context.Context, gradeID string, gradeExists bool, classIDs map[string]struct{}) ([]ChangeEvent, error) {
	var events []ChangeEvent
	if gradeExists {
		events = append(events, ChangeEvent{Kind: ChangeGrade, Op: OpDeleted, ID: gradeID})
	}
	keepClasses := make([]models.SchoolClass, 0, len(r.classes))
	for _, c := range r.classes {
		if _, drop := classIDs[c.ID]; drop {
			events = append(events, ChangeEvent{Kind: ChangeClass, Op: OpDeleted, ID: c.ID})
			continue
		}
		keepClasses = append(keepClasses, c)
	}
	dropped := make(map[string]struct{})
	keepStudents := make([]models.Student, 0, len(r.students))
	for _, s := range r.students {
		_, inClass := classIDs[s.ClassID]
		if inClass || (gradeID != "" && s.GradeID == gradeID) {
			dropped[s.ID] = struct{}{}
			events = append(events, ChangeEvent{Kind: ChangeStudent, Op: OpDeleted, ID: s.ID})
			continue
		}
		keepStudents = append(keepStudents, s)
	}
	// persisted students of these classes that are missing from memory
	for classID := range classIDs {
		recs, err := r.store.ByIndex(ctx, kvstore.IndexStudentsByClass, classID)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if _, seen := dropped[rec.Key]; seen {
				continue
			}
			dropped[rec.Key] = struct{}{}
			events = append(events, ChangeEvent{Kind: ChangeStudent, Op: OpDeleted, ID: rec.Key})
		}
	}
	if len(events) == 0 {
		return nil, nil
	}

	err := r.store.Update(ctx, func(tx kvstore.Tx) error {
		for _, ev := range events {
			var coll string
			switch ev.Kind {
			case ChangeGrade:
				coll = kvstore.CollectionGrades
			case ChangeClass:
				coll = kvstore.CollectionClasses
			default:
				coll = kvstore.CollectionStudents
			}
			if err := tx.Delete(coll, ev.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if gradeExists {
		keepGrades := make([]models.Grade, 0, len(r.grades))
		for _, g := range r.grades {
			if g.ID != gradeID {
				keepGrades = append(keepGrades, g)
			}
		}
		r.grades = keepGrades
	}
	r.classes = keepClasses
	r.students = keepStudents
	r.logger.Debug("cascade delete", zap.String("grade_id", gradeID), zap.Int("removed", len(events)))
	return events, nil
}

// AddStudent creates a student in an existing class. The student's grade
// is taken from the class.
func (r *SchoolRepository) AddStudent(ctx context.Context, in models.NewStudent) (models.Student, error) {
	created, err := r.AddStudentsBulk(ctx, []models.NewStudent{in})
	if err != nil {
		return models.Student{}, err
	}
	return created[0], nil
}

// AddStudentsBulk creates all students with a single store transaction.
// The final state equals calling AddStudent for each entry in order.
// Nothing is written when any entry references an unknown class.
func (r *SchoolRepository) AddStudentsBulk(ctx context.Context, in []models.NewStudent) ([]models.Student, error) {
	if len(in) == 0 {
		return []models.Student{}, nil
	}
	r.mu.Lock()
	created := make([]models.Student, len(in))
	seq := r.seq
	for i, item := range in {
		ci := r.classIndex(item.ClassID)
		if ci < 0 {
			r.mu.Unlock()
			return nil, fmt.Errorf("student %d: %w", i+1, ErrClassNotFound)
		}
		seq++
		created[i] = models.Student{
			ID:          r.newID(),
			Name:        strings.TrimSpace(item.Name),
			GradeID:     r.classes[ci].GradeID,
			ClassID:     item.ClassID,
			ParentPhone: strings.TrimSpace(item.ParentPhone),
			Seq:         seq,
		}
	}
	err := r.store.Update(ctx, func(tx kvstore.Tx) error {
		for _, s := range created {
			if err := kvstore.TxPutJSON(tx, kvstore.CollectionStudents, s.ID, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("add students: %w", err)
	}
	// newest first, as if each one had been inserted at the front
	students := make([]models.Student, 0, len(r.students)+len(created))
	for i := len(created) - 1; i >= 0; i-- {
		students = append(students, created[i])
	}
	r.students = append(students, r.students...)
	r.seq = seq
	r.mu.Unlock()

	events := make([]ChangeEvent, len(created))
	for i, s := range created {
		events[i] = ChangeEvent{Kind: ChangeStudent, Op: OpCreated, ID: s.ID}
	}
	r.publish(events...)
	return created, nil
}

// UpdateStudent changes the name and parent phone of a student.
func (r *SchoolRepository) UpdateStudent(ctx context.Context, id, name, parentPhone string) (models.Student, error) {
	return r.updateStudent(ctx, id, func(s *models.Student) error {
		s.Name = strings.TrimSpace(name)
		s.ParentPhone = strings.TrimSpace(parentPhone)
		return nil
	})
}

// MoveStudent moves a student to another class, keeping its grade in sync
// with the new class.
func (r *SchoolRepository) MoveStudent(ctx context.Context, id, classID string) (models.Student, error) {
	return r.updateStudent(ctx, id, func(s *models.Student) error {
		ci := r.classIndex(classID)
		if ci < 0 {
			return ErrClassNotFound
		}
		s.ClassID = classID
		s.GradeID = r.classes[ci].GradeID
		return nil
	})
}

func (r *SchoolRepository) updateStudent(ctx context.Context, id string, mutate func(*models.Student) error) (models.Student, error) {
	r.mu.Lock()
	i := r.studentIndex(id)
	if i < 0 {
		r.mu.Unlock()
		return models.Student{}, ErrStudentNotFound
	}
	student := r.students[i]
	if err := mutate(&student); err != nil {
		r.mu.Unlock()
		return models.Student{}, err
	}
	if err := kvstore.PutJSON(ctx, r.store, kvstore.CollectionStudents, student.ID, student); err != nil {
		r.mu.Unlock()
		return models.Student{}, fmt.Errorf("update student: %w", err)
	}
	r.students[i] = student
	r.mu.Unlock()

	r.publish(ChangeEvent{Kind: ChangeStudent, Op: OpUpdated, ID: student.ID})
	return student, nil
}

// DeleteStudent removes a student. Attendance records are kept.
// Unknown ids are a no-op.
func (r *SchoolRepository) DeleteStudent(ctx context.Context, id string) error {
	r.mu.Lock()
	i := r.studentIndex(id)
	if i < 0 {
		r.mu.Unlock()
		return nil
	}
	if err := r.store.Delete(ctx, kvstore.CollectionStudents, id); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("delete student: %w", err)
	}
	students := make([]models.Student, 0, len(r.students)-1)
	students = append(students, r.students[:i]...)
	r.students = append(students, r.students[i+1:]...)
	r.mu.Unlock()

	r.publish(ChangeEvent{Kind: ChangeStudent, Op: OpDeleted, ID: id})
	return nil
}

func (r *SchoolRepository) gradeIndex(id string) int {
	for i, g := range r.grades {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (r *SchoolRepository) classIndex(id string) int {
	for i, c := range r.classes {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (r *SchoolRepository) studentIndex(id string) int {
	for i, s := range r.students {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
