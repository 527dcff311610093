package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/middleware"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/service"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type attendanceLedgerMock struct {
	gotReq    service.AttendanceBatchRequest
	gotWindow models.AttendanceWindow
	summary   *models.AttendanceBatchSummary
	ratio     *models.PresenceRatio
	err       error
	calls     int
}

func (m *attendanceLedgerMock) RecordBatch(ctx context.Context, actor models.Identity, req service.AttendanceBatchRequest) (*models.AttendanceBatchSummary, error) {
	m.calls++
	m.gotReq = req
	return m.summary, m.err
}

func (m *attendanceLedgerMock) PresenceRatio(ctx context.Context, studentID, subjectID string, window models.AttendanceWindow) (*models.PresenceRatio, error) {
	m.calls++
	m.gotWindow = window
	return m.ratio, m.err
}

func TestAttendanceHandlerRecordBatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceLedgerMock{summary: &models.AttendanceBatchSummary{SubjectID: "sub-1", ClassDate: "2024-04-02", Total: 2, Present: 1, Late: 1}}
	handler := NewAttendanceHandler(mockSvc)

	body := []byte(`{"subject_id":"sub-1","class_date":"2024-04-02","records":[{"student_id":"stu-1","status":"PRESENT"},{"student_id":"stu-2","status":"late"}]}`)
	c, w := newGinContext(http.MethodPost, "/attendance/batch", body)
	c.Set(middleware.ContextUserKey, professorClaims())

	handler.RecordBatch(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mockSvc.gotReq.Rows, 2)
	assert.Equal(t, "stu-2", mockSvc.gotReq.Rows[1].StudentID)
	assert.Equal(t, "2024-04-02", mockSvc.gotReq.ClassDate.Format(models.DateLayout))

	var summary models.AttendanceBatchSummary
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &summary))
	assert.Equal(t, 2, summary.Total)
}

func TestAttendanceHandlerRecordBatchReportsFailingRow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rowErr := appErrors.WithDetail(appErrors.Clone(appErrors.ErrNotEnrolled, "student stu-9 not enrolled"), "row", 1)
	handler := NewAttendanceHandler(&attendanceLedgerMock{err: rowErr})

	body := []byte(`{"subject_id":"sub-1","class_date":"2024-04-02","records":[{"student_id":"stu-1","status":"PRESENT"},{"student_id":"stu-9","status":"ABSENT"}]}`)
	c, w := newGinContext(http.MethodPost, "/attendance/batch", body)
	c.Set(middleware.ContextUserKey, professorClaims())

	handler.RecordBatch(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, env.Error.Code)
	assert.EqualValues(t, 1, env.Error.Details["row"])
}

func TestAttendanceHandlerRecordBatchLeavesRowChecksToLedger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceLedgerMock{err: appErrors.WithDetail(appErrors.Clone(appErrors.ErrForbidden, "professor is not assigned to this subject"), "subject_id", "sub-1")}
	handler := NewAttendanceHandler(mockSvc)

	body := []byte(`{"subject_id":"sub-1","class_date":"2024-04-02","records":[{"student_id":"stu-1","status":"SICK"}]}`)
	c, w := newGinContext(http.MethodPost, "/attendance/batch", body)
	c.Set(middleware.ContextUserKey, professorClaims())

	handler.RecordBatch(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, mockSvc.calls)
	require.Len(t, mockSvc.gotReq.Rows, 1)
	assert.Equal(t, "SICK", mockSvc.gotReq.Rows[0].Status)
}

func TestAttendanceHandlerRecordBatchRejectsBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceLedgerMock{}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/attendance/batch", []byte(`{"subject_id":"sub-1","class_date":"02-04-2024","records":[]}`))
	c.Set(middleware.ContextUserKey, professorClaims())

	handler.RecordBatch(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, mockSvc.calls)
}

func TestAttendanceHandlerRatioWithWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceLedgerMock{ratio: &models.PresenceRatio{Total: 5, PresentEquivalent: 4, Ratio: 80}}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/attendance/ratio?studentId=stu-1&subjectId=sub-1&month=4&year=2024", nil)
	c.Set(middleware.ContextUserKey, &models.IdentityClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Ratio(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.gotWindow.Month)
	assert.Equal(t, 4, *mockSvc.gotWindow.Month)
	assert.Equal(t, 2024, *mockSvc.gotWindow.Year)

	var ratio models.PresenceRatio
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &ratio))
	assert.Equal(t, 80.0, ratio.Ratio)
}

func TestAttendanceHandlerRatioRejectsMonthWithoutYear(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceLedgerMock{}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/attendance/ratio?studentId=stu-1&subjectId=sub-1&month=4", nil)
	c.Set(middleware.ContextUserKey, professorClaims())

	handler.Ratio(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Zero(t, mockSvc.calls)
}

func TestAttendanceHandlerRatioRejectsNonNumericYear(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(&attendanceLedgerMock{})

	c, w := newGinContext(http.MethodGet, "/attendance/ratio?studentId=stu-1&subjectId=sub-1&year=twenty", nil)
	c.Set(middleware.ContextUserKey, professorClaims())

	handler.Ratio(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
