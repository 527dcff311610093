package models

import "time"

// EnrollmentStatus represents the lifecycle of a subject enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Only ACTIVE enrollments accept new records.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Enrollment captures a student's registration to a subject.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	SubjectID string           `db:"subject_id" json:"subject_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}
