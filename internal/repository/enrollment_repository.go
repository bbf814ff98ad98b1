package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uni-ops/registrar-api/internal/models"
)

// RegistrationScope exposes the statements that must share the
// registration transaction. The section row lock is held until the
// scope commits so the capacity check and the insert cannot race.
type RegistrationScope interface {
	LockSection(ctx context.Context, sectionID string) (*models.Section, error)
	ActiveExists(ctx context.Context, studentID, sectionID string) (bool, error)
	CountActive(ctx context.Context, sectionID string) (int, error)
	Insert(ctx context.Context, enrollment *models.Enrollment) error
}

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Register runs fn inside one transaction. Any error from fn rolls the
// whole transaction back before it is returned.
func (r *EnrollmentRepository) Register(ctx context.Context, fn func(RegistrationScope) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	if err := fn(&registrationScope{tx: tx}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

type registrationScope struct {
	tx *sqlx.Tx
}

// LockSection loads the section under a row-level lock held for the
// remainder of the transaction.
func (s *registrationScope) LockSection(ctx context.Context, sectionID string) (*models.Section, error) {
	const query = `SELECT id, course_code, instructor_id, schedule, room, capacity, semester, year, drop_deadline, created_at, updated_at
        FROM sections WHERE id = $1 FOR UPDATE`
	var section models.Section
	if err := s.tx.GetContext(ctx, &section, query, sectionID); err != nil {
		return nil, err
	}
	return &section, nil
}

func (s *registrationScope) ActiveExists(ctx context.Context, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := s.tx.GetContext(ctx, &exists, query, studentID, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

func (s *registrationScope) CountActive(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	var count int
	if err := s.tx.GetContext(ctx, &count, query, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

func (s *registrationScope) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	const query = `INSERT INTO enrollments (id, student_id, section_id, status, enrolled_at, dropped_at)
        VALUES (:id, :student_id, :section_id, :status, :enrolled_at, :dropped_at)`
	if _, err := s.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, enrolled_at, dropped_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindActive returns the ENROLLED row for the (student, section) pair.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, enrolled_at, dropped_at
        FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status = $3`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CountActive counts ENROLLED rows for a section.
func (r *EnrollmentRepository) CountActive(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// CountActiveBySection returns active enrollment counts keyed by
// section ID, used to report seat availability in catalog views.
func (r *EnrollmentRepository) CountActiveBySection(ctx context.Context) (map[string]int, error) {
	const query = `SELECT section_id, COUNT(*) AS cnt FROM enrollments WHERE status = $1 GROUP BY section_id`
	rows, err := r.db.QueryxContext(ctx, query, models.EnrollmentStatusEnrolled)
	if err != nil {
		return nil, fmt.Errorf("count enrollments by section: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var sectionID string
		var count int
		if err := rows.Scan(&sectionID, &count); err != nil {
			return nil, fmt.Errorf("scan enrollment count: %w", err)
		}
		counts[sectionID] = count
	}
	return counts, rows.Err()
}

// ListByStudent returns a student's enrollments joined with section
// and course info, newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.section_id, e.status, e.enrolled_at, e.dropped_at,
        s.course_code, c.title AS course_title, s.schedule, s.room, s.semester, s.year
        FROM enrollments e
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.code = s.course_code
        WHERE e.student_id = $1
        ORDER BY e.enrolled_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListBySection returns every enrollment for a section with the
// student's name, active rows first.
func (r *EnrollmentRepository) ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, enrolled_at, dropped_at
        FROM enrollments WHERE section_id = $1 ORDER BY status, enrolled_at`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveBySection returns the ENROLLED rows for a section with
// student names for gradebook views.
func (r *EnrollmentRepository) ListActiveBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, enrolled_at, dropped_at
        FROM enrollments WHERE section_id = $1 AND status = $2 ORDER BY enrolled_at`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// UpdateStatus transitions an enrollment's status. Rows are never
// deleted; drops set DROPPED and stamp dropped_at.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, droppedAt *time.Time) error {
	const query = `UPDATE enrollments SET status = $2, dropped_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, droppedAt); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}
