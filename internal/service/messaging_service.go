package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/phone"
)

type settingsReader interface {
	Settings(ctx context.Context) (models.SchoolSettings, error)
}

var arabicWeekdays = [...]string{"الأحد", "الإثنين", "الثلاثاء", "الأربعاء", "الخميس", "الجمعة", "السبت"}

// Notice is a parent message ready to be sent through any of the links.
type Notice struct {
	StudentID   string                  `json:"studentId"`
	StudentName string                  `json:"studentName"`
	Date        string                  `json:"date"`
	Status      models.AttendanceStatus `json:"status"`
	Phone       string                  `json:"phone"`
	Message     string                  `json:"message"`
	Links       phone.Links             `json:"links"`
}

// MessagingService composes parent notices for WhatsApp and SMS.
type MessagingService struct {
	roster     rosterReader
	attendance attendanceStore
	settings   settingsReader
	logger     *zap.Logger
}

// NewMessagingService constructs the messaging service.
func NewMessagingService(roster rosterReader, attendance attendanceStore, settings settingsReader, logger *zap.Logger) *MessagingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagingService{roster: roster, attendance: attendance, settings: settings, logger: logger}
}

// ComposeNotice builds the Arabic message about the student's status on
// date and the deep links to send it.
func (s *MessagingService) ComposeNotice(ctx context.Context, studentID, date string) (*Notice, error) {
	if !validDate(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	student, ok := s.roster.FindStudent(studentID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	rec, ok := s.attendance.Get(date, studentID)
	if !ok || !rec.Status.Violation() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student was present, nothing to notify")
	}
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load school settings")
	}

	message := composeMessage(student.Name, settings.Name, rec)
	links, err := phone.BuildLinks(student.ParentPhone, message)
	if err != nil {
		if errors.Is(err, phone.ErrMissingPhone) {
			return nil, appErrors.Wrap(err, appErrors.ErrMissingPhone.Code, appErrors.ErrMissingPhone.Status, appErrors.ErrMissingPhone.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build links")
	}
	s.logger.Debug("notice composed", zap.String("student_id", studentID), zap.String("status", string(rec.Status)))
	return &Notice{
		StudentID:   student.ID,
		StudentName: student.Name,
		Date:        date,
		Status:      rec.Status,
		Phone:       phone.Normalize(student.ParentPhone),
		Message:     message,
		Links:       links,
	}, nil
}

func composeMessage(studentName, schoolName string, rec models.AttendanceRecord) string {
	day := rec.Date
	if t, err := time.Parse(models.DateLayout, rec.Date); err == nil {
		day = fmt.Sprintf("%s %s", arabicWeekdays[t.Weekday()], rec.Date)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "السلام عليكم ورحمة الله وبركاته\nولي أمر الطالب/ %s المحترم\n", studentName)
	switch rec.Status {
	case models.AttendanceStatusAbsent:
		fmt.Fprintf(&b, "نفيدكم بأن ابنكم تغيب عن المدرسة يوم %s.", day)
	case models.AttendanceStatusTruant:
		if rec.Period != nil {
			fmt.Fprintf(&b, "نفيدكم بأن ابنكم تغيب عن الحصة %d يوم %s دون إذن.", *rec.Period, day)
		} else {
			fmt.Fprintf(&b, "نفيدكم بأن ابنكم تغيب عن إحدى الحصص يوم %s دون إذن.", day)
		}
	case models.AttendanceStatusEscape:
		fmt.Fprintf(&b, "نفيدكم بأن ابنكم غادر المدرسة قبل نهاية الدوام يوم %s دون إذن.", day)
	}
	if rec.Note != nil && *rec.Note != "" {
		fmt.Fprintf(&b, "\nملاحظة: %s", *rec.Note)
	}
	b.WriteString("\nنرجو متابعة ذلك والتواصل مع إدارة المدرسة.")
	if schoolName != "" {
		fmt.Fprintf(&b, "\n%s", schoolName)
	}
	return b.String()
}
