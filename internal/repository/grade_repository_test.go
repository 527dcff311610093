package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/models"
)

func newRecordsRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var gradeRowColumns = []string{"id", "student_id", "subject_id", "assessment_kind", "score", "weight", "evaluated_on", "grader_id", "notes", "created_at", "updated_at"}

func TestGradeRepositoryUpsertReturnsStoredRow(t *testing.T) {
	db, mock, cleanup := newRecordsRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(append(gradeRowColumns, "inserted")).
		AddRow("grade-existing", "stu-1", "sub-1", "FIRST_TEST", 16.0, 1.0, day, "prof-1", nil, created, time.Now(), false)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO grade_entries")+".*ON CONFLICT \\(student_id, subject_id, assessment_kind, evaluated_on\\) DO UPDATE").
		WithArgs(sqlmock.AnyArg(), "stu-1", "sub-1", "FIRST_TEST", 16.0, 1.0, day, "prof-1", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	entry := &models.GradeEntry{StudentID: "stu-1", SubjectID: "sub-1", AssessmentKind: models.AssessmentFirstTest, Score: 16, Weight: 1, EvaluatedOn: day, GraderID: "prof-1"}
	stored, inserted, err := repo.Upsert(context.Background(), nil, entry)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "grade-existing", stored.ID)
	assert.Equal(t, created, stored.CreatedAt)
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsertUsesGivenExecutor(t *testing.T) {
	db, mock, cleanup := newRecordsRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO grade_entries")).
		WillReturnRows(sqlmock.NewRows(append(gradeRowColumns, "inserted")).
			AddRow("grade-1", "stu-1", "sub-1", "PROJECT", 12.0, 0.5, day, "prof-1", "late delivery", time.Now(), time.Now(), false))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	stored, inserted, err := repo.Upsert(context.Background(), tx, &models.GradeEntry{StudentID: "stu-1", SubjectID: "sub-1", AssessmentKind: models.AssessmentProject, Score: 12, Weight: 0.5, EvaluatedOn: day, GraderID: "prof-1"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.False(t, inserted)
	require.NotNil(t, stored.Notes)
	assert.Equal(t, "late delivery", *stored.Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryAverage(t *testing.T) {
	db, mock, cleanup := newRecordsRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(score * weight), 0) AS weighted_sum")).
		WithArgs("stu-1", "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"weighted_sum", "total_weight", "entry_count"}).AddRow(19.0, 1.5, 2))

	avg, err := repo.Average(context.Background(), "stu-1", "sub-1")
	require.NoError(t, err)
	assert.True(t, avg.HasData)
	assert.Equal(t, 12.67, avg.Value)
	assert.Equal(t, "stu-1", avg.StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryAverageWithoutEntries(t *testing.T) {
	db, mock, cleanup := newRecordsRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM grade_entries WHERE student_id = $1 AND subject_id = $2")).
		WithArgs("stu-2", "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"weighted_sum", "total_weight", "entry_count"}).AddRow(0.0, 0.0, 0))

	avg, err := repo.Average(context.Background(), "stu-2", "sub-1")
	require.NoError(t, err)
	assert.False(t, avg.HasData)
	assert.Equal(t, 0.0, avg.Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListByStudentFiltersSubject(t *testing.T) {
	db, mock, cleanup := newRecordsRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM grade_entries WHERE student_id = $1 AND subject_id = $2 ORDER BY subject_id ASC")).
		WithArgs("stu-1", "sub-1").
		WillReturnRows(sqlmock.NewRows(gradeRowColumns).
			AddRow("grade-1", "stu-1", "sub-1", "FIRST_TEST", 10.0, 1.0, day, "prof-1", nil, time.Now(), time.Now()))

	entries, err := repo.ListByStudent(context.Background(), "stu-1", "sub-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AssessmentFirstTest, entries[0].AssessmentKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
