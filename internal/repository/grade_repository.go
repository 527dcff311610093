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

// GradeRepository handles grade entry persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

func (r *GradeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const gradeColumns = `id, student_id, subject_id, assessment_kind, score, weight, evaluated_on, grader_id, notes, created_at, updated_at`

type upsertedGrade struct {
	models.GradeEntry
	Inserted bool `db:"inserted"`
}

// Upsert writes the entry by its natural key in a single statement and
// returns the stored row. inserted is false when an existing row was replaced.
func (r *GradeRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, entry *models.GradeEntry) (*models.GradeEntry, bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	const query = `INSERT INTO grade_entries (` + gradeColumns + `)
VALUES (:id, :student_id, :subject_id, :assessment_kind, :score, :weight, :evaluated_on, :grader_id, :notes, :created_at, :updated_at)
ON CONFLICT (student_id, subject_id, assessment_kind, evaluated_on) DO UPDATE
SET score = EXCLUDED.score,
    weight = EXCLUDED.weight,
    notes = EXCLUDED.notes,
    grader_id = EXCLUDED.grader_id,
    updated_at = EXCLUDED.updated_at
RETURNING ` + gradeColumns + `, (xmax = 0) AS inserted`

	rows, err := sqlx.NamedQueryContext(ctx, r.exec(exec), query, entry)
	if err != nil {
		return nil, false, fmt.Errorf("upsert grade entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("upsert grade entry: %w", err)
		}
		return nil, false, fmt.Errorf("upsert grade entry: %w", sql.ErrNoRows)
	}
	var stored upsertedGrade
	if err := rows.StructScan(&stored); err != nil {
		return nil, false, fmt.Errorf("scan grade entry: %w", err)
	}
	return &stored.GradeEntry, stored.Inserted, nil
}

// Average aggregates Σ(score×weight), Σ(weight) and the entry count for a
// student in a subject, reading committed rows only.
func (r *GradeRepository) Average(ctx context.Context, studentID, subjectID string) (*models.WeightedAverage, error) {
	const query = `SELECT COALESCE(SUM(score * weight), 0) AS weighted_sum, COALESCE(SUM(weight), 0) AS total_weight, COUNT(*) AS entry_count
FROM grade_entries WHERE student_id = $1 AND subject_id = $2 AND weight > 0`
	var row struct {
		WeightedSum float64 `db:"weighted_sum"`
		TotalWeight float64 `db:"total_weight"`
		EntryCount  int     `db:"entry_count"`
	}
	if err := r.db.GetContext(ctx, &row, query, studentID, subjectID); err != nil {
		return nil, fmt.Errorf("average grade entries: %w", err)
	}
	avg := models.NewWeightedAverage(row.WeightedSum, row.TotalWeight, row.EntryCount)
	avg.StudentID = studentID
	avg.SubjectID = subjectID
	return &avg, nil
}

// ListByStudent returns a student's entries, optionally limited to one subject.
func (r *GradeRepository) ListByStudent(ctx context.Context, studentID, subjectID string) ([]models.GradeEntry, error) {
	query := `SELECT ` + gradeColumns + ` FROM grade_entries WHERE student_id = $1`
	args := []interface{}{studentID}
	if subjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", len(args)+1)
		args = append(args, subjectID)
	}
	query += " ORDER BY subject_id ASC, evaluated_on DESC, assessment_kind ASC"

	var entries []models.GradeEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list grade entries: %w", err)
	}
	return entries, nil
}
