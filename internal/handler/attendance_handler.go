package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/academic-records-api/internal/dto"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/service"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/response"
)

type attendanceLedger interface {
	RecordBatch(ctx context.Context, actor models.Identity, req service.AttendanceBatchRequest) (*models.AttendanceBatchSummary, error)
	PresenceRatio(ctx context.Context, studentID, subjectID string, window models.AttendanceWindow) (*models.PresenceRatio, error)
}

// AttendanceHandler exposes attendance ledger endpoints.
type AttendanceHandler struct {
	attendance attendanceLedger
	validator  *validator.Validate
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(attendance attendanceLedger) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, validator: dto.NewValidator()}
}

// RecordBatch godoc
// @Summary Record attendance for a class session
// @Description All rows commit together or none do. A failing row is reported with its zero-based index in error.details.row.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.AttendanceBatchRequest true "Attendance batch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /attendance/batch [post]
func (h *AttendanceHandler) RecordBatch(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.AttendanceBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, validationError(err))
		return
	}
	classDate, err := models.ParseDate(req.ClassDate)
	if err != nil {
		response.Error(c, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, "class_date must be YYYY-MM-DD"), "class_date", req.ClassDate))
		return
	}

	rows := make([]service.AttendanceRow, len(req.Records))
	for i, record := range req.Records {
		rows[i] = service.AttendanceRow{StudentID: record.StudentID, Status: record.Status, Justification: record.Justification}
	}

	summary, err := h.attendance.RecordBatch(c.Request.Context(), actor, service.AttendanceBatchRequest{
		SubjectID: req.SubjectID,
		ClassDate: classDate,
		Rows:      rows,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// Ratio godoc
// @Summary Presence ratio for a student in a subject
// @Tags Attendance
// @Produce json
// @Param studentId query string true "Student"
// @Param subjectId query string true "Subject"
// @Param month query int false "Month (requires year)"
// @Param year query int false "Year"
// @Success 200 {object} response.Envelope
// @Router /attendance/ratio [get]
func (h *AttendanceHandler) Ratio(c *gin.Context) {
	studentID := strings.TrimSpace(c.Query("studentId"))
	subjectID := strings.TrimSpace(c.Query("subjectId"))
	if studentID == "" || subjectID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId and subjectId are required"))
		return
	}
	if !canReadStudent(c, studentID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	window, err := windowFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	ratio, err := h.attendance.PresenceRatio(c.Request.Context(), studentID, subjectID, window)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ratio, map[string]interface{}{"window": window})
}
