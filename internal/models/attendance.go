package models

import (
	"fmt"
	"strings"
	"time"

	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
	AttendanceStatusLate    AttendanceStatus = "LATE"
)

// MaxJustificationLength bounds the free-text justification of a mark.
const MaxJustificationLength = 1000

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusExcused, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// CountsAsPresent is true for statuses included in the presence ratio.
func (s AttendanceStatus) CountsAsPresent() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate
}

// ParseAttendanceStatus normalises case and surrounding spaces.
func ParseAttendanceStatus(raw string) (AttendanceStatus, bool) {
	status := AttendanceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// AttendanceRecord is one student's status for one class session.
type AttendanceRecord struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	SubjectID     string           `db:"subject_id" json:"subject_id"`
	ClassDate     time.Time        `db:"class_date" json:"class_date"`
	Status        AttendanceStatus `db:"status" json:"status"`
	Justification *string          `db:"justification" json:"justification,omitempty"`
	RecorderID    string           `db:"recorder_id" json:"recorder_id"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceInput carries caller supplied fields before validation.
type AttendanceInput struct {
	StudentID     string
	SubjectID     string
	ClassDate     time.Time
	Status        string
	Justification *string
	RecorderID    string
}

// AttendanceKey is the natural key of an attendance record.
type AttendanceKey struct {
	StudentID string    `json:"student_id"`
	SubjectID string    `json:"subject_id"`
	ClassDate time.Time `json:"class_date"`
}

func (k AttendanceKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.StudentID, k.SubjectID, k.ClassDate.Format(DateLayout))
}

// NewAttendanceRecord validates input; EXCUSED requires a justification.
func NewAttendanceRecord(in AttendanceInput) (*AttendanceRecord, error) {
	studentID := strings.TrimSpace(in.StudentID)
	if studentID == "" || strings.TrimSpace(in.SubjectID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "student and subject are required")
	}
	if in.ClassDate.IsZero() {
		return nil, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, "class date is required"), "student_id", studentID)
	}
	status, ok := ParseAttendanceStatus(in.Status)
	if !ok {
		return nil, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, fmt.Sprintf("invalid attendance status %q for student %s", in.Status, studentID)), "student_id", studentID)
	}
	justification := trimmedOrNil(in.Justification)
	if justification != nil && len([]rune(*justification)) > MaxJustificationLength {
		return nil, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, fmt.Sprintf("justification for student %s exceeds %d characters", studentID, MaxJustificationLength)), "student_id", studentID)
	}
	if status == AttendanceStatusExcused && justification == nil {
		return nil, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, fmt.Sprintf("justification required for excused student %s", studentID)), "student_id", studentID)
	}
	return &AttendanceRecord{
		StudentID:     studentID,
		SubjectID:     strings.TrimSpace(in.SubjectID),
		ClassDate:     TruncateDay(in.ClassDate),
		Status:        status,
		Justification: justification,
		RecorderID:    in.RecorderID,
	}, nil
}

// Key returns the natural key of the record.
func (a AttendanceRecord) Key() AttendanceKey {
	return AttendanceKey{StudentID: a.StudentID, SubjectID: a.SubjectID, ClassDate: TruncateDay(a.ClassDate)}
}

// AttendanceWindow optionally restricts queries to a month or year.
type AttendanceWindow struct {
	Month *int `json:"month,omitempty"`
	Year  *int `json:"year,omitempty"`
}

// Validate rejects a month without a year and out-of-range values.
func (w AttendanceWindow) Validate() error {
	if w.Month != nil && w.Year == nil {
		return appErrors.Clone(appErrors.ErrInvalidValue, "month filter requires a year")
	}
	if w.Month != nil && (*w.Month < 1 || *w.Month > 12) {
		return appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, "month must be between 1 and 12"), "month", *w.Month)
	}
	if w.Year != nil && (*w.Year < 1900 || *w.Year > 9999) {
		return appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, "year out of range"), "year", *w.Year)
	}
	return nil
}

// Bounds returns the half-open [from, to) date range, or ok=false when unbounded.
func (w AttendanceWindow) Bounds() (from, to time.Time, ok bool) {
	if w.Year == nil {
		return time.Time{}, time.Time{}, false
	}
	if w.Month == nil {
		from = time.Date(*w.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0), true
	}
	from = time.Date(*w.Year, time.Month(*w.Month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), true
}

// StudentAttendanceHistory lists a student's records with the window's ratio.
type StudentAttendanceHistory struct {
	StudentID string             `json:"student_id"`
	Window    AttendanceWindow   `json:"window"`
	Ratio     PresenceRatio      `json:"ratio"`
	Records   []AttendanceRecord `json:"records"`
}
