package models

// SchoolClass is a section within a grade, e.g. "5/1".
type SchoolClass struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GradeID string `json:"gradeId"`
	Seq     int64  `json:"seq"`
}
