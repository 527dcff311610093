package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type attendanceStore interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	CountPresence(ctx context.Context, studentID, subjectID string, window models.AttendanceWindow) (*models.PresenceRatio, error)
	ListByStudent(ctx context.Context, studentID string, window models.AttendanceWindow) ([]models.AttendanceRecord, error)
}

// AttendanceRow is one student's mark inside a batch.
type AttendanceRow struct {
	StudentID     string  `json:"student_id"`
	Status        string  `json:"status"`
	Justification *string `json:"justification,omitempty"`
}

// AttendanceBatchRequest marks every listed student for one class session.
type AttendanceBatchRequest struct {
	SubjectID string
	ClassDate time.Time
	Rows      []AttendanceRow
}

// AttendanceLedger owns attendance bulk upserts and presence ratios.
type AttendanceLedger struct {
	records      attendanceStore
	refs         writeAuthorizer
	tx           unitOfWork
	metrics      *MetricsService
	logger       *zap.Logger
	maxBatchSize int
}

// NewAttendanceLedger wires the ledger. maxBatchSize <= 0 disables the cap.
func NewAttendanceLedger(records attendanceStore, refs writeAuthorizer, tx unitOfWork, maxBatchSize int, metrics *MetricsService, logger *zap.Logger) *AttendanceLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceLedger{
		records:      records,
		refs:         refs,
		tx:           tx,
		metrics:      metrics,
		logger:       logger,
		maxBatchSize: maxBatchSize,
	}
}

// RecordBatch upserts every row of the session in one unit of work. Rows are
// processed in submission order and the first failing row rolls back the
// whole batch; no row is ever persisted on its own.
func (l *AttendanceLedger) RecordBatch(ctx context.Context, actor models.Identity, req AttendanceBatchRequest) (*models.AttendanceBatchSummary, error) {
	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "subject is required")
	}
	if req.ClassDate.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "class date is required")
	}
	if l.maxBatchSize > 0 && len(req.Rows) > l.maxBatchSize {
		return nil, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, fmt.Sprintf("batch exceeds %d rows", l.maxBatchSize)), "rows", len(req.Rows))
	}
	if err := l.refs.AuthorizeWrite(ctx, actor, subjectID); err != nil {
		return nil, err
	}

	classDate := models.TruncateDay(req.ClassDate)
	if len(req.Rows) == 0 {
		return &models.AttendanceBatchSummary{SubjectID: subjectID, ClassDate: classDate.Format(models.DateLayout)}, nil
	}

	stored := make([]models.AttendanceRecord, 0, len(req.Rows))
	err := l.tx.Run(ctx, "record_attendance_batch", func(ctx context.Context, tx *sqlx.Tx) error {
		seen := make(map[string]int, len(req.Rows))
		for i, row := range req.Rows {
			record, err := models.NewAttendanceRecord(models.AttendanceInput{
				StudentID:     row.StudentID,
				SubjectID:     subjectID,
				ClassDate:     classDate,
				Status:        row.Status,
				Justification: row.Justification,
				RecorderID:    actor.ActorID,
			})
			if err != nil {
				return withRow(err, i)
			}
			if first, ok := seen[record.StudentID]; ok {
				return duplicateStudent(record.StudentID, first, i)
			}
			seen[record.StudentID] = i
			if err := l.refs.ValidateEnrollment(ctx, tx, record.StudentID, subjectID); err != nil {
				return withRow(err, i)
			}
			saved, err := l.records.Upsert(ctx, tx, record)
			if err != nil {
				return fmt.Errorf("row %d student %s: %w", i, record.StudentID, err)
			}
			stored = append(stored, *saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.metrics.AddLedgerRows("attendance", len(stored))

	summary := models.SummarizeAttendance(stored)
	summary.SubjectID = subjectID
	summary.ClassDate = classDate.Format(models.DateLayout)
	l.logger.Info("attendance batch recorded",
		zap.String("subject_id", subjectID),
		zap.String("class_date", summary.ClassDate),
		zap.String("recorder_id", actor.ActorID),
		zap.Int("rows", summary.Total),
	)
	return &summary, nil
}

// PresenceRatio counts committed sessions for a student in a subject,
// optionally restricted to a year or a month of a year.
func (l *AttendanceLedger) PresenceRatio(ctx context.Context, studentID, subjectID string, window models.AttendanceWindow) (*models.PresenceRatio, error) {
	studentID, subjectID = strings.TrimSpace(studentID), strings.TrimSpace(subjectID)
	if studentID == "" || subjectID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "student and subject are required")
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	ratio, err := l.records.CountPresence(ctx, studentID, subjectID, window)
	if err != nil {
		return nil, classifyStorageError(err, "presence_ratio", "failed to compute presence ratio")
	}
	return ratio, nil
}

// StudentHistory lists a student's marks newest first with the window's ratio.
func (l *AttendanceLedger) StudentHistory(ctx context.Context, studentID string, window models.AttendanceWindow) (*models.StudentAttendanceHistory, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "student is required")
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	records, err := l.records.ListByStudent(ctx, studentID, window)
	if err != nil {
		return nil, classifyStorageError(err, "student_attendance", "failed to list attendance")
	}
	present := 0
	for _, record := range records {
		if record.Status.CountsAsPresent() {
			present++
		}
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return &models.StudentAttendanceHistory{
		StudentID: studentID,
		Window:    window,
		Ratio:     models.NewPresenceRatio(len(records), present),
		Records:   records,
	}, nil
}

func duplicateStudent(studentID string, first, row int) error {
	dup := appErrors.Clone(appErrors.ErrInvalidValue, fmt.Sprintf("student %s appears more than once in the batch (rows %d and %d)", studentID, first, row))
	return withRow(appErrors.WithDetail(dup, "student_id", studentID), row)
}

// withRow tags a typed error with the zero-based row index that caused it.
func withRow(err error, row int) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErrors.WithDetail(appErr, "row", row)
	}
	return err
}
