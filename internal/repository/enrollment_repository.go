package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records-api/internal/models"
)

// EnrollmentRepository reads subject enrollments. The table is owned elsewhere.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// IsActive reports whether an ACTIVE enrollment exists for the pair. With
// lock set the row is read FOR SHARE so it cannot change until exec commits.
func (r *EnrollmentRepository) IsActive(ctx context.Context, exec sqlx.QueryerContext, studentID, subjectID string, lock bool) (bool, error) {
	if exec == nil {
		exec = r.db
	}
	query := `SELECT id FROM enrollments WHERE student_id = $1 AND subject_id = $2 AND status = $3 LIMIT 1`
	if lock {
		query += " FOR SHARE"
	}
	var id string
	if err := sqlx.GetContext(ctx, exec, &id, query, studentID, subjectID, models.EnrollmentStatusActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}
