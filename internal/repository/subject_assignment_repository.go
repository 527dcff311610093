package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SubjectAssignmentRepository reads which grader is assigned to a subject.
type SubjectAssignmentRepository struct {
	db *sqlx.DB
}

// NewSubjectAssignmentRepository constructs the repository.
func NewSubjectAssignmentRepository(db *sqlx.DB) *SubjectAssignmentRepository {
	return &SubjectAssignmentRepository{db: db}
}

// IsAssigned reports whether graderID is assigned to subjectID.
func (r *SubjectAssignmentRepository) IsAssigned(ctx context.Context, subjectID, graderID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM subject_assignments WHERE subject_id = $1 AND grader_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, subjectID, graderID); err != nil {
		return false, fmt.Errorf("check subject assignment: %w", err)
	}
	return exists, nil
}
