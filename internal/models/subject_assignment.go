package models

import "time"

// SubjectAssignment links a grader to the subject they are allowed to record for.
type SubjectAssignment struct {
	ID        string    `db:"id" json:"id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	GraderID  string    `db:"grader_id" json:"grader_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
