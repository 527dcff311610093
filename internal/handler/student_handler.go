package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/response"
)

type studentGrades interface {
	StudentGrades(ctx context.Context, studentID, subjectID string) ([]models.SubjectGrades, error)
}

type studentAttendance interface {
	StudentHistory(ctx context.Context, studentID string, window models.AttendanceWindow) (*models.StudentAttendanceHistory, error)
}

type transcriptRenderer interface {
	Transcript(ctx context.Context, studentID string) ([]models.TranscriptSubject, error)
	StudentTranscript(ctx context.Context, studentID string, format models.ReportFormat) (*models.TranscriptFile, error)
}

// StudentHandler serves per-student read views. Route guards decide who may
// read; the handler only shapes the response.
type StudentHandler struct {
	grades     studentGrades
	attendance studentAttendance
	reports    transcriptRenderer
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(grades studentGrades, attendance studentAttendance, reports transcriptRenderer) *StudentHandler {
	return &StudentHandler{grades: grades, attendance: attendance, reports: reports}
}

// Grades godoc
// @Summary Grade entries for a student grouped by subject
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param subjectId query string false "Restrict to one subject"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/grades [get]
func (h *StudentHandler) Grades(c *gin.Context) {
	grades, err := h.grades.StudentGrades(c.Request.Context(), c.Param("id"), c.Query("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades)
}

// Attendance godoc
// @Summary Attendance history for a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param month query int false "Month (requires year)"
// @Param year query int false "Year"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *StudentHandler) Attendance(c *gin.Context) {
	window, err := windowFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	history, err := h.attendance.StudentHistory(c.Request.Context(), c.Param("id"), window)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history)
}

// Transcript godoc
// @Summary Student transcript
// @Description Without format the transcript is returned as JSON; csv and pdf download a file.
// @Tags Students
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param format query string false "csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transcript [get]
func (h *StudentHandler) Transcript(c *gin.Context) {
	studentID := c.Param("id")
	raw := strings.TrimSpace(c.Query("format"))
	if raw == "" {
		subjects, err := h.reports.Transcript(c.Request.Context(), studentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, subjects)
		return
	}

	format, ok := models.ParseReportFormat(raw)
	if !ok {
		response.Error(c, appErrors.WithDetail(appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"), "format", raw))
		return
	}
	file, err := h.reports.StudentTranscript(c.Request.Context(), studentID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}
