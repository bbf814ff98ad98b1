package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uni-ops/registrar-api/internal/models"
)

// GradeScope exposes the statements of one grade batch. Every call
// shares the same transaction; the owning InTx call commits or rolls
// back the lot.
type GradeScope interface {
	Upsert(ctx context.Context, row *models.GradeComponentRow) error
	UpdateFinalScore(ctx context.Context, enrollmentID string, finalScore *float64) error
}

// GradeRepository handles grade component persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// InTx runs fn inside one transaction. Any error from fn rolls the
// entire batch back before it is returned; no partial commits.
func (r *GradeRepository) InTx(ctx context.Context, fn func(GradeScope) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grade batch: %w", err)
	}
	if err := fn(&gradeScope{tx: tx}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grade batch: %w", err)
	}
	return nil
}

type gradeScope struct {
	tx *sqlx.Tx
}

// Upsert writes one component row. A nil score clears the stored
// score; re-running with identical input leaves identical state.
func (s *gradeScope) Upsert(ctx context.Context, row *models.GradeComponentRow) error {
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	const query = `INSERT INTO grade_components (enrollment_id, component_id, score, final_score, created_at, updated_at)
        VALUES (:enrollment_id, :component_id, :score, :final_score, :created_at, :updated_at)
        ON CONFLICT (enrollment_id, component_id)
        DO UPDATE SET score = EXCLUDED.score, final_score = EXCLUDED.final_score, updated_at = EXCLUDED.updated_at`
	if _, err := s.tx.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert grade component: %w", err)
	}
	return nil
}

// UpdateFinalScore forces the final score onto every existing
// component row of an enrollment.
func (s *gradeScope) UpdateFinalScore(ctx context.Context, enrollmentID string, finalScore *float64) error {
	const query = `UPDATE grade_components SET final_score = $2, updated_at = $3 WHERE enrollment_id = $1`
	if _, err := s.tx.ExecContext(ctx, query, enrollmentID, finalScore, time.Now().UTC()); err != nil {
		return fmt.Errorf("update final score: %w", err)
	}
	return nil
}

// ListByEnrollment returns the component rows for one enrollment.
func (r *GradeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeComponentRow, error) {
	const query = `SELECT enrollment_id, component_id, score, final_score, created_at, updated_at
        FROM grade_components WHERE enrollment_id = $1 ORDER BY component_id`
	var rows []models.GradeComponentRow
	if err := r.db.SelectContext(ctx, &rows, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment grades: %w", err)
	}
	return rows, nil
}

// ListByStudent returns every component row of a student joined with
// course context for transcripts and GPA.
func (r *GradeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.StudentGradeRow, error) {
	const query = `SELECT g.enrollment_id, e.section_id, s.course_code, c.title AS course_title, c.credits, s.semester, s.year,
        g.component_id, g.score, g.final_score
        FROM grade_components g
        JOIN enrollments e ON e.id = g.enrollment_id
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.code = s.course_code
        WHERE e.student_id = $1
        ORDER BY s.year, s.semester, s.course_code, g.component_id`
	var rows []models.StudentGradeRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return rows, nil
}

// HasPassingGrade reports whether the student holds a final score of
// at least 50 for any enrollment in the given course.
func (r *GradeRepository) HasPassingGrade(ctx context.Context, studentID, courseCode string) (bool, error) {
	const query = `SELECT 1 FROM grade_components g
        JOIN enrollments e ON e.id = g.enrollment_id
        JOIN sections s ON s.id = e.section_id
        WHERE e.student_id = $1 AND s.course_code = $2 AND g.final_score >= 50
        LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseCode); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check passing grade: %w", err)
	}
	return true, nil
}
