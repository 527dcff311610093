package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type enrollmentReaderStub struct {
	active map[string]bool
	err    error
	locks  []bool
}

func (s *enrollmentReaderStub) IsActive(ctx context.Context, exec sqlx.QueryerContext, studentID, subjectID string, lock bool) (bool, error) {
	s.locks = append(s.locks, lock)
	if s.err != nil {
		return false, s.err
	}
	return s.active[studentID+"|"+subjectID], nil
}

type assignmentReaderStub struct {
	assigned map[string]bool
	err      error
	calls    int
}

func (s *assignmentReaderStub) IsAssigned(ctx context.Context, subjectID, graderID string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.assigned[subjectID+"|"+graderID], nil
}

func TestReferenceValidatorAuthorizeWrite(t *testing.T) {
	assignments := &assignmentReaderStub{assigned: map[string]bool{"sub-1|prof-1": true}}
	validator := NewReferenceValidator(&enrollmentReaderStub{}, assignments, nil)
	ctx := context.Background()

	require.NoError(t, validator.AuthorizeWrite(ctx, models.Identity{ActorID: "prof-1", Role: models.RoleProfessor}, "sub-1"))

	err := validator.AuthorizeWrite(ctx, models.Identity{ActorID: "prof-2", Role: models.RoleProfessor}, "sub-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	err = validator.AuthorizeWrite(ctx, models.Identity{ActorID: "stu-1", Role: models.RoleStudent}, "sub-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	err = validator.AuthorizeWrite(ctx, models.Identity{Role: models.RoleCoordinator}, "sub-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestReferenceValidatorCoordinatorBypassesAssignment(t *testing.T) {
	assignments := &assignmentReaderStub{}
	validator := NewReferenceValidator(&enrollmentReaderStub{}, assignments, nil)

	require.NoError(t, validator.AuthorizeWrite(context.Background(), models.Identity{ActorID: "coord-1", Role: models.RoleCoordinator}, "sub-7"))
	assert.Equal(t, 0, assignments.calls)
}

func TestReferenceValidatorTokenScopeNarrowsAssignments(t *testing.T) {
	assignments := &assignmentReaderStub{assigned: map[string]bool{"sub-1|prof-1": true}}
	validator := NewReferenceValidator(&enrollmentReaderStub{}, assignments, nil)

	actor := models.Identity{ActorID: "prof-1", Role: models.RoleProfessor, AssignedSubjects: []string{"sub-2"}}
	err := validator.AuthorizeWrite(context.Background(), actor, "sub-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Equal(t, 0, assignments.calls)
}

func TestReferenceValidatorValidateEnrollment(t *testing.T) {
	enrollments := &enrollmentReaderStub{active: map[string]bool{"stu-1|sub-1": true}}
	validator := NewReferenceValidator(enrollments, &assignmentReaderStub{}, nil)
	ctx := context.Background()

	require.NoError(t, validator.ValidateEnrollment(ctx, nil, "stu-1", "sub-1"))

	err := validator.ValidateEnrollment(ctx, nil, "stu-2", "sub-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))
	assert.Contains(t, err.Error(), "stu-2")
	assert.Equal(t, "stu-2", appErrors.FromError(err).Details["student_id"])

	require.NoError(t, validator.ValidateEnrollment(ctx, &sqlx.Tx{}, "stu-1", "sub-1"))
	assert.Equal(t, []bool{false, false, true}, enrollments.locks)
}

func TestReferenceValidatorValidateEnrollmentStorageError(t *testing.T) {
	validator := NewReferenceValidator(&enrollmentReaderStub{err: errors.New("timeout")}, &assignmentReaderStub{}, nil)

	err := validator.ValidateEnrollment(context.Background(), nil, "stu-1", "sub-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrNotEnrolled))
}

func TestReferenceValidatorAssignmentLookupFaults(t *testing.T) {
	actor := models.Identity{ActorID: "prof-1", Role: models.RoleProfessor}

	lostConn := &assignmentReaderStub{err: fmt.Errorf("check subject assignment: %w", driver.ErrBadConn)}
	err := NewReferenceValidator(&enrollmentReaderStub{}, lostConn, nil).AuthorizeWrite(context.Background(), actor, "sub-1")
	require.Error(t, err)
	assert.True(t, appErrors.IsRetryable(err))
	assert.True(t, errors.Is(err, appErrors.ErrTransactionAborted))

	broken := &assignmentReaderStub{err: errors.New("relation does not exist")}
	err = NewReferenceValidator(&enrollmentReaderStub{}, broken, nil).AuthorizeWrite(context.Background(), actor, "sub-1")
	require.Error(t, err)
	assert.False(t, appErrors.IsRetryable(err))
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
