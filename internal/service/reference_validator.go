package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type enrollmentReader interface {
	IsActive(ctx context.Context, exec sqlx.QueryerContext, studentID, subjectID string, lock bool) (bool, error)
}

type subjectAssignmentReader interface {
	IsAssigned(ctx context.Context, subjectID, graderID string) (bool, error)
}

// ReferenceValidator is the single authorization and enrollment contract
// shared by the grade and attendance ledgers. It never writes.
type ReferenceValidator struct {
	enrollments enrollmentReader
	assignments subjectAssignmentReader
	logger      *zap.Logger
}

// NewReferenceValidator constructs the validator.
func NewReferenceValidator(enrollments enrollmentReader, assignments subjectAssignmentReader, logger *zap.Logger) *ReferenceValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceValidator{enrollments: enrollments, assignments: assignments, logger: logger}
}

// AuthorizeWrite allows coordinators on any subject and professors only on
// subjects they are assigned to.
func (v *ReferenceValidator) AuthorizeWrite(ctx context.Context, actor models.Identity, subjectID string) error {
	if strings.TrimSpace(actor.ActorID) == "" {
		return appErrors.Clone(appErrors.ErrForbidden, "actor identity is required")
	}
	if !actor.Role.CanRecord() {
		return appErrors.WithDetail(appErrors.Clone(appErrors.ErrForbidden, "role not allowed to record grades or attendance"), "role", actor.Role)
	}
	if actor.Role == models.RoleCoordinator {
		return nil
	}
	if !actor.AssertsSubject(subjectID) {
		return appErrors.WithDetail(appErrors.Clone(appErrors.ErrForbidden, "subject outside the actor's assigned subjects"), "subject_id", subjectID)
	}
	assigned, err := v.assignments.IsAssigned(ctx, subjectID, actor.ActorID)
	if err != nil {
		return classifyStorageError(err, "authorize_write", "failed to verify subject assignment")
	}
	if !assigned {
		v.logger.Info("write rejected for unassigned grader", zap.String("actor_id", actor.ActorID), zap.String("subject_id", subjectID))
		return appErrors.WithDetail(appErrors.Clone(appErrors.ErrForbidden, "professor is not assigned to this subject"), "subject_id", subjectID)
	}
	return nil
}

// ValidateEnrollment fails with NOT_ENROLLED naming the student unless an
// ACTIVE enrollment exists. Inside a transaction the enrollment row is
// share-locked until commit.
func (v *ReferenceValidator) ValidateEnrollment(ctx context.Context, exec sqlx.QueryerContext, studentID, subjectID string) error {
	_, inTx := exec.(*sqlx.Tx)
	active, err := v.enrollments.IsActive(ctx, exec, studentID, subjectID, inTx)
	if err != nil {
		return fmt.Errorf("validate enrollment of %s: %w", studentID, err)
	}
	if !active {
		notEnrolled := appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("student %s is not actively enrolled in subject %s", studentID, subjectID))
		return appErrors.WithDetail(notEnrolled, "student_id", studentID)
	}
	return nil
}
