package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/academic-records-api/internal/models"
)

// RecordGradeRequest is the payload of POST /grades.
type RecordGradeRequest struct {
	StudentID      string   `json:"student_id" validate:"required"`
	SubjectID      string   `json:"subject_id" validate:"required"`
	AssessmentKind string   `json:"assessment_kind" validate:"required,assessment_kind"`
	Score          *float64 `json:"score" validate:"required"`
	Weight         *float64 `json:"weight,omitempty"`
	EvaluatedOn    string   `json:"evaluated_on,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes          *string  `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// AttendanceRowRequest is one student's mark in an attendance batch. Row
// contents are validated by the ledger after the batch is authorized.
type AttendanceRowRequest struct {
	StudentID     string  `json:"student_id"`
	Status        string  `json:"status"`
	Justification *string `json:"justification,omitempty"`
}

// AttendanceBatchRequest is the payload of POST /attendance/batch.
type AttendanceBatchRequest struct {
	SubjectID string                 `json:"subject_id" validate:"required"`
	ClassDate string                 `json:"class_date" validate:"required,datetime=2006-01-02"`
	Records   []AttendanceRowRequest `json:"records"`
}

// NewValidator returns a validator aware of the ledger enums.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("assessment_kind", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseAssessmentKind(fl.Field().String())
		return ok
	})
	return v
}
