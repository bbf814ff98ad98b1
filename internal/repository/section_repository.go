package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uni-ops/registrar-api/internal/models"
)

// SectionRepository handles persistence of course sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, course_code, instructor_id, schedule, room, capacity, semester, year, drop_deadline, created_at, updated_at
        FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// List returns all sections joined with course info.
func (r *SectionRepository) List(ctx context.Context) ([]models.SectionDetail, error) {
	const query = `SELECT s.id, s.course_code, s.instructor_id, s.schedule, s.room, s.capacity, s.semester, s.year, s.drop_deadline, s.created_at, s.updated_at,
        c.title AS course_title, c.credits
        FROM sections s
        JOIN courses c ON c.code = s.course_code
        ORDER BY s.course_code, s.id`
	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// Create persists a new section and returns its generated ID.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	const query = `INSERT INTO sections (id, course_code, instructor_id, schedule, room, capacity, semester, year, drop_deadline, created_at, updated_at)
        VALUES (:id, :course_code, :instructor_id, :schedule, :room, :capacity, :semester, :year, :drop_deadline, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// UpdateInstructor assigns or clears the section instructor.
func (r *SectionRepository) UpdateInstructor(ctx context.Context, id string, instructorID *string) error {
	const query = `UPDATE sections SET instructor_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, instructorID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update section instructor: %w", err)
	}
	return nil
}

// Delete removes a section.
func (r *SectionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sections WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}
