package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsCodeAndCopiesDetails(t *testing.T) {
	base := WithDetail(ErrNotEnrolled, "student_id", "stu-1")
	clone := WithDetail(base, "row", 2)

	assert.Equal(t, ErrNotEnrolled.Code, clone.Code)
	assert.Equal(t, "stu-1", clone.Details["student_id"])
	assert.Equal(t, 2, clone.Details["row"])
	_, leaked := base.Details["row"]
	assert.False(t, leaked)
	assert.Nil(t, ErrNotEnrolled.Details)
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("record batch: %w", Clone(ErrNotEnrolled, "student stu-9 not enrolled"))
	assert.True(t, stderrors.Is(err, ErrNotEnrolled))
	assert.False(t, stderrors.Is(err, ErrForbidden))
}

func TestFromErrorFallsBackToInternal(t *testing.T) {
	appErr := FromError(stderrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Clone(ErrTransactionAborted, "serialization failure")))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrTransactionAborted)))
	assert.False(t, IsRetryable(ErrConflict))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}
