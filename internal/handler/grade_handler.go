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

type gradeLedger interface {
	RecordGrade(ctx context.Context, actor models.Identity, in models.GradeEntryInput) (*service.GradeRecordResult, error)
	WeightedAverage(ctx context.Context, studentID, subjectID string) (*models.WeightedAverage, error)
}

// GradeHandler exposes grade endpoints.
type GradeHandler struct {
	grades    gradeLedger
	validator *validator.Validate
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades gradeLedger) *GradeHandler {
	return &GradeHandler{grades: grades, validator: dto.NewValidator()}
}

// Record godoc
// @Summary Record or correct a grade entry
// @Description Upserts the grade keyed by student, subject, assessment and day, then returns the refreshed subject average.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body dto.RecordGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Record(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.RecordGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, validationError(err))
		return
	}

	in := models.GradeEntryInput{
		StudentID:      req.StudentID,
		SubjectID:      req.SubjectID,
		AssessmentKind: req.AssessmentKind,
		Score:          *req.Score,
		Weight:         req.Weight,
		Notes:          req.Notes,
	}
	if req.EvaluatedOn != "" {
		evaluatedOn, err := models.ParseDate(req.EvaluatedOn)
		if err != nil {
			response.Error(c, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, "evaluated_on must be YYYY-MM-DD"), "evaluated_on", req.EvaluatedOn))
			return
		}
		in.EvaluatedOn = &evaluatedOn
	}

	result, err := h.grades.RecordGrade(c.Request.Context(), actor, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.JSON(c, status, result)
}

// Average godoc
// @Summary Weighted average for a student in a subject
// @Tags Grades
// @Produce json
// @Param studentId query string true "Student"
// @Param subjectId query string true "Subject"
// @Success 200 {object} response.Envelope
// @Router /grades/average [get]
func (h *GradeHandler) Average(c *gin.Context) {
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
	avg, err := h.grades.WeightedAverage(c.Request.Context(), studentID, subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, avg)
}
