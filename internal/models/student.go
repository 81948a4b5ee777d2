package models

// Student is a learner enrolled in exactly one class.
type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GradeID string `json:"gradeId"`
	ClassID string `json:"classId"`
	// ParentPhone is stored as typed by the user; see phone.Normalize.
	ParentPhone string `json:"parentPhone"`
	Seq         int64  `json:"seq"`
}

// NewStudent holds the caller supplied fields of a student.
type NewStudent struct {
	Name        string `json:"name" validate:"required"`
	ClassID     string `json:"classId" validate:"required"`
	ParentPhone string `json:"parentPhone"`
}
