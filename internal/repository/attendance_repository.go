package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records-api/internal/models"
)

// AttendanceRepository persists per-subject attendance marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const attendanceColumns = `id, student_id, subject_id, class_date, status, justification, recorder_id, created_at, updated_at`

// Upsert writes the mark by (student, subject, class date) and returns the stored row.
func (r *AttendanceRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO attendance_records (` + attendanceColumns + `)
VALUES (:id, :student_id, :subject_id, :class_date, :status, :justification, :recorder_id, :created_at, :updated_at)
ON CONFLICT (student_id, subject_id, class_date) DO UPDATE
SET status = EXCLUDED.status,
    justification = EXCLUDED.justification,
    recorder_id = EXCLUDED.recorder_id,
    updated_at = EXCLUDED.updated_at
RETURNING ` + attendanceColumns

	rows, err := sqlx.NamedQueryContext(ctx, r.exec(exec), query, record)
	if err != nil {
		return nil, fmt.Errorf("upsert attendance record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("upsert attendance record: %w", err)
		}
		return nil, fmt.Errorf("upsert attendance record: %w", sql.ErrNoRows)
	}
	var stored models.AttendanceRecord
	if err := rows.StructScan(&stored); err != nil {
		return nil, fmt.Errorf("scan attendance record: %w", err)
	}
	return &stored, nil
}

func windowClause(window models.AttendanceWindow, args []interface{}) (string, []interface{}) {
	from, to, ok := window.Bounds()
	if !ok {
		return "", args
	}
	clause := fmt.Sprintf(" AND class_date >= $%d AND class_date < $%d", len(args)+1, len(args)+2)
	return clause, append(args, from, to)
}

// CountPresence counts a student's sessions and present equivalents
// (PRESENT or LATE) within the optional window.
func (r *AttendanceRepository) CountPresence(ctx context.Context, studentID, subjectID string, window models.AttendanceWindow) (*models.PresenceRatio, error) {
	query := `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE status IN ('PRESENT', 'LATE')) AS present_equivalent
FROM attendance_records WHERE student_id = $1 AND subject_id = $2`
	clause, args := windowClause(window, []interface{}{studentID, subjectID})
	query += clause

	var counts models.PresenceRatio
	if err := r.db.GetContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}
	ratio := models.NewPresenceRatio(counts.Total, counts.PresentEquivalent)
	return &ratio, nil
}

// PresenceBySubject returns the presence ratio of every subject a student has marks in.
func (r *AttendanceRepository) PresenceBySubject(ctx context.Context, studentID string) ([]models.SubjectPresence, error) {
	const query = `SELECT subject_id, COUNT(*) AS total, COUNT(*) FILTER (WHERE status IN ('PRESENT', 'LATE')) AS present_equivalent
FROM attendance_records WHERE student_id = $1 GROUP BY subject_id ORDER BY subject_id ASC`
	var rows []models.SubjectPresence
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("presence by subject: %w", err)
	}
	for i := range rows {
		rows[i].PresenceRatio = models.NewPresenceRatio(rows[i].Total, rows[i].PresentEquivalent)
	}
	return rows, nil
}

// ListByStudent returns a student's marks, newest first, within the optional window.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, window models.AttendanceWindow) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE student_id = $1`
	clause, args := windowClause(window, []interface{}{studentID})
	query += clause + " ORDER BY class_date DESC, subject_id ASC"

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}
