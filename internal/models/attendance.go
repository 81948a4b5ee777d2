package models

import "fmt"

// AttendanceStatus is the day status of a student.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	// AttendanceStatusTruant marks a student who left a specific class period.
	AttendanceStatusTruant AttendanceStatus = "truant"
	// AttendanceStatusEscape marks a student who left the school premises.
	AttendanceStatusEscape AttendanceStatus = "escape"
)

// MinPeriod and MaxPeriod bound the class periods of a school day.
const (
	MinPeriod = 1
	MaxPeriod = 8
)

// DateLayout is the storage format of attendance dates.
const DateLayout = "2006-01-02"

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusTruant, AttendanceStatusEscape:
		return true
	default:
		return false
	}
}

// Violation reports whether the status counts against the student.
func (s AttendanceStatus) Violation() bool {
	return s == AttendanceStatusAbsent || s == AttendanceStatusTruant || s == AttendanceStatusEscape
}

// Label returns the Arabic label printed on reports.
func (s AttendanceStatus) Label() string {
	switch s {
	case AttendanceStatusPresent:
		return "حاضر"
	case AttendanceStatusAbsent:
		return "غائب"
	case AttendanceStatusTruant:
		return "هروب من حصة"
	case AttendanceStatusEscape:
		return "هروب من المدرسة"
	default:
		return string(s)
	}
}

// AttendanceRecord is the stored status of one student on one day.
type AttendanceRecord struct {
	Date      string           `json:"date"`
	StudentID string           `json:"studentId"`
	Status    AttendanceStatus `json:"status"`
	Period    *int             `json:"period,omitempty"`
	Note      *string          `json:"note,omitempty"`
	// Timestamp is the write time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Key returns the composite storage key of the record.
func (r AttendanceRecord) Key() string {
	return AttendanceKey(r.Date, r.StudentID)
}

// AttendanceKey builds the "{date}-{studentId}" storage key.
func AttendanceKey(date, studentID string) string {
	return fmt.Sprintf("%s-%s", date, studentID)
}

// DailyStats summarises one day over the whole roster.
type DailyStats struct {
	Date           string `json:"date"`
	TotalStudents  int    `json:"totalStudents"`
	PresentCount   int    `json:"presentCount"`
	AbsentCount    int    `json:"absentCount"`
	TruantCount    int    `json:"truantCount"`
	EscapeCount    int    `json:"escapeCount"`
	AttendanceRate int    `json:"attendanceRate"`
}

// ClassPeriodStat counts violations of a student over a date range.
type ClassPeriodStat struct {
	Student     Student `json:"student"`
	AbsentCount int     `json:"absentCount"`
	TruantCount int     `json:"truantCount"`
	EscapeCount int     `json:"escapeCount"`
}

// Total returns the number of violations.
func (s ClassPeriodStat) Total() int {
	return s.AbsentCount + s.TruantCount + s.EscapeCount
}

// DailySheetRow is one printed line of a class daily sheet.
type DailySheetRow struct {
	Seq       int              `json:"seq"`
	StudentID string           `json:"studentId"`
	Name      string           `json:"name"`
	Status    AttendanceStatus `json:"status"`
	Period    *int             `json:"period,omitempty"`
	Note      *string          `json:"note,omitempty"`
}

// DailySheet is the print model of a class on a date.
type DailySheet struct {
	Date      string          `json:"date"`
	GradeName string          `json:"gradeName"`
	ClassName string          `json:"className"`
	ClassID   string          `json:"classId"`
	Rows      []DailySheetRow `json:"rows"`
}
