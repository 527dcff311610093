package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

// AssessmentKind names the assessment a grade entry belongs to.
type AssessmentKind string

const (
	AssessmentFirstTest     AssessmentKind = "FIRST_TEST"
	AssessmentSecondTest    AssessmentKind = "SECOND_TEST"
	AssessmentProject       AssessmentKind = "PROJECT"
	AssessmentParticipation AssessmentKind = "PARTICIPATION"
	AssessmentFinalExam     AssessmentKind = "FINAL_EXAM"
)

// Score and weight domains.
const (
	MinScore      = 0.0
	MaxScore      = 20.0
	MaxWeight     = 1.0
	DefaultWeight = 1.0
)

// Valid returns true when the kind is a supported value.
func (k AssessmentKind) Valid() bool {
	switch k {
	case AssessmentFirstTest, AssessmentSecondTest, AssessmentProject, AssessmentParticipation, AssessmentFinalExam:
		return true
	default:
		return false
	}
}

// ParseAssessmentKind accepts "first-test", "first_test" or "FIRST_TEST".
func ParseAssessmentKind(raw string) (AssessmentKind, bool) {
	kind := AssessmentKind(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	return kind, kind.Valid()
}

// GradeEntry is a single stored assessment score.
type GradeEntry struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	SubjectID      string         `db:"subject_id" json:"subject_id"`
	AssessmentKind AssessmentKind `db:"assessment_kind" json:"assessment_kind"`
	Score          float64        `db:"score" json:"score"`
	Weight         float64        `db:"weight" json:"weight"`
	EvaluatedOn    time.Time      `db:"evaluated_on" json:"evaluated_on"`
	GraderID       string         `db:"grader_id" json:"grader_id"`
	Notes          *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// GradeEntryInput carries caller supplied fields before validation.
type GradeEntryInput struct {
	StudentID      string
	SubjectID      string
	AssessmentKind string
	Score          float64
	Weight         *float64
	EvaluatedOn    *time.Time
	GraderID       string
	Notes          *string
}

// GradeKey is the natural key of a grade entry.
type GradeKey struct {
	StudentID      string         `json:"student_id"`
	SubjectID      string         `json:"subject_id"`
	AssessmentKind AssessmentKind `json:"assessment_kind"`
	EvaluatedOn    time.Time      `json:"evaluated_on"`
}

func (k GradeKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.StudentID, k.SubjectID, k.AssessmentKind, k.EvaluatedOn.Format(DateLayout))
}

// NewGradeEntry validates input and returns an entry ready to upsert.
// A missing weight defaults to 1.0 and a missing date to the day of now.
func NewGradeEntry(in GradeEntryInput, now time.Time) (*GradeEntry, error) {
	if strings.TrimSpace(in.StudentID) == "" || strings.TrimSpace(in.SubjectID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "student and subject are required")
	}
	if strings.TrimSpace(in.GraderID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "grader is required")
	}
	kind, ok := ParseAssessmentKind(in.AssessmentKind)
	if !ok {
		return nil, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, "unknown assessment kind"), "assessment_kind", in.AssessmentKind)
	}
	if !finite(in.Score) || in.Score < MinScore || in.Score > MaxScore {
		return nil, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, "score must be between 0 and 20"), "score", in.Score)
	}
	weight := DefaultWeight
	if in.Weight != nil {
		weight = *in.Weight
	}
	if !finite(weight) || weight <= 0 || weight > MaxWeight {
		return nil, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, "weight must be greater than 0 and at most 1"), "weight", weight)
	}
	evaluated := now
	if in.EvaluatedOn != nil && !in.EvaluatedOn.IsZero() {
		evaluated = *in.EvaluatedOn
	}
	return &GradeEntry{
		StudentID:      strings.TrimSpace(in.StudentID),
		SubjectID:      strings.TrimSpace(in.SubjectID),
		AssessmentKind: kind,
		Score:          in.Score,
		Weight:         weight,
		EvaluatedOn:    TruncateDay(evaluated),
		GraderID:       in.GraderID,
		Notes:          trimmedOrNil(in.Notes),
	}, nil
}

// Key returns the natural key of the entry.
func (g GradeEntry) Key() GradeKey {
	return GradeKey{StudentID: g.StudentID, SubjectID: g.SubjectID, AssessmentKind: g.AssessmentKind, EvaluatedOn: TruncateDay(g.EvaluatedOn)}
}

// SubjectGrades groups a student's entries for one subject.
type SubjectGrades struct {
	SubjectID string          `json:"subject_id"`
	Average   WeightedAverage `json:"average"`
	Entries   []GradeEntry    `json:"entries"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
