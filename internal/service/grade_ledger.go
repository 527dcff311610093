package service

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type gradeStore interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, entry *models.GradeEntry) (*models.GradeEntry, bool, error)
	Average(ctx context.Context, studentID, subjectID string) (*models.WeightedAverage, error)
	ListByStudent(ctx context.Context, studentID, subjectID string) ([]models.GradeEntry, error)
}

type writeAuthorizer interface {
	AuthorizeWrite(ctx context.Context, actor models.Identity, subjectID string) error
	ValidateEnrollment(ctx context.Context, exec sqlx.QueryerContext, studentID, subjectID string) error
}

type unitOfWork interface {
	Run(ctx context.Context, label string, fn TxFunc) error
}

// GradeRecordResult is the stored entry with the average recomputed after commit.
type GradeRecordResult struct {
	Entry   models.GradeEntry      `json:"entry"`
	Average models.WeightedAverage `json:"average"`
	Created bool                   `json:"created"`
	// AverageStale is set when the entry committed but the average could not be read back.
	AverageStale bool `json:"average_stale,omitempty"`
}

// GradeLedger owns grade entry upserts and weighted averages.
type GradeLedger struct {
	grades  gradeStore
	refs    writeAuthorizer
	tx      unitOfWork
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewGradeLedger wires the ledger dependencies.
func NewGradeLedger(grades gradeStore, refs writeAuthorizer, tx unitOfWork, metrics *MetricsService, logger *zap.Logger) *GradeLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeLedger{
		grades:  grades,
		refs:    refs,
		tx:      tx,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordGrade validates, authorizes and upserts one entry by its natural key,
// then returns it with the average read back from committed rows. The acting
// identity is recorded as the grader.
func (l *GradeLedger) RecordGrade(ctx context.Context, actor models.Identity, in models.GradeEntryInput) (*GradeRecordResult, error) {
	in.GraderID = actor.ActorID
	entry, err := models.NewGradeEntry(in, l.now())
	if err != nil {
		return nil, err
	}
	if err := l.refs.AuthorizeWrite(ctx, actor, entry.SubjectID); err != nil {
		return nil, err
	}
	if err := l.refs.ValidateEnrollment(ctx, nil, entry.StudentID, entry.SubjectID); err != nil {
		return nil, classifyStorageError(err, "validate_enrollment", "failed to validate enrollment")
	}

	var (
		stored  *models.GradeEntry
		created bool
	)
	err = l.tx.Run(ctx, "record_grade", func(ctx context.Context, tx *sqlx.Tx) error {
		if err := l.refs.ValidateEnrollment(ctx, tx, entry.StudentID, entry.SubjectID); err != nil {
			return err
		}
		row, inserted, err := l.grades.Upsert(ctx, tx, entry)
		if err != nil {
			return err
		}
		stored, created = row, inserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.metrics.AddLedgerRows("grades", 1)
	l.logger.Info("grade recorded",
		zap.String("key", stored.Key().String()),
		zap.String("grader_id", actor.ActorID),
		zap.Bool("created", created),
	)

	result := &GradeRecordResult{Entry: *stored, Created: created}
	avg, err := l.WeightedAverage(ctx, stored.StudentID, stored.SubjectID)
	if err != nil {
		// The write is committed; report it and let the caller re-read the average.
		l.logger.Warn("average read-back failed after commit", zap.String("key", stored.Key().String()), zap.Error(err))
		result.Average = models.WeightedAverage{StudentID: stored.StudentID, SubjectID: stored.SubjectID}
		result.AverageStale = true
		return result, nil
	}
	result.Average = *avg
	return result, nil
}

// WeightedAverage computes Σ(score×weight)/Σ(weight) over committed entries.
func (l *GradeLedger) WeightedAverage(ctx context.Context, studentID, subjectID string) (*models.WeightedAverage, error) {
	studentID, subjectID = strings.TrimSpace(studentID), strings.TrimSpace(subjectID)
	if studentID == "" || subjectID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "student and subject are required")
	}
	avg, err := l.grades.Average(ctx, studentID, subjectID)
	if err != nil {
		return nil, classifyStorageError(err, "weighted_average", "failed to compute weighted average")
	}
	return avg, nil
}

// StudentGrades lists a student's entries grouped per subject, each group
// carrying its weighted average. An empty subjectID returns every subject.
func (l *GradeLedger) StudentGrades(ctx context.Context, studentID, subjectID string) ([]models.SubjectGrades, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "student is required")
	}
	entries, err := l.grades.ListByStudent(ctx, studentID, strings.TrimSpace(subjectID))
	if err != nil {
		return nil, classifyStorageError(err, "student_grades", "failed to list grades")
	}
	return groupBySubject(studentID, entries), nil
}

func groupBySubject(studentID string, entries []models.GradeEntry) []models.SubjectGrades {
	groups := make([]models.SubjectGrades, 0)
	index := make(map[string]int)
	for _, entry := range entries {
		i, ok := index[entry.SubjectID]
		if !ok {
			i = len(groups)
			index[entry.SubjectID] = i
			groups = append(groups, models.SubjectGrades{SubjectID: entry.SubjectID})
		}
		groups[i].Entries = append(groups[i].Entries, entry)
	}
	for i := range groups {
		avg := models.ComputeWeightedAverage(groups[i].Entries)
		avg.StudentID = studentID
		avg.SubjectID = groups[i].SubjectID
		groups[i].Average = avg
	}
	return groups
}
