package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uni-ops/registrar-api/internal/models"
	"github.com/uni-ops/registrar-api/internal/repository"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
)

type enrollmentRepo interface {
	Register(ctx context.Context, fn func(repository.RegistrationScope) error) error
	FindActive(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error)
	CountActive(ctx context.Context, sectionID string) (int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, droppedAt *time.Time) error
}

type accessGate interface {
	RequireWritable(ctx context.Context) error
	RequireOwnerOrSelf(requesterID, subjectID string) error
	RequireSectionInstructor(ctx context.Context, requesterID, sectionID string) error
}

type prerequisiteChecker interface {
	Check(ctx context.Context, studentID, courseCode string) error
}

// RegisterRequest describes a section registration.
type RegisterRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// DropRequest describes dropping a section.
type DropRequest struct {
	SectionID string `json:"section_id" validate:"required"`
}

// EnrollmentService owns the enrollment lifecycle: registration under
// capacity, uniqueness and prerequisite rules, and deadline-bound
// drops.
type EnrollmentService struct {
	repo      enrollmentRepo
	sections  sectionReader
	access    accessGate
	prereqs   prerequisiteChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepo, sections sectionReader, access accessGate, prereqs prerequisiteChecker, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, sections: sections, access: access, prereqs: prereqs, validator: validate, logger: logger}
}

// Register enrolls a student into a section. The section row is locked
// for the duration of the transaction so the capacity check and the
// insert cannot race with concurrent registrations.
func (s *EnrollmentService) Register(ctx context.Context, req RegisterRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if err := s.access.RequireWritable(ctx); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, SectionID: req.SectionID}
	err := s.repo.Register(ctx, func(tx repository.RegistrationScope) error {
		section, err := tx.LockSection(ctx, req.SectionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "Section not found.")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
		}
		exists, err := tx.ActiveExists(ctx, req.StudentID, req.SectionID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "You are already enrolled in this section.")
		}
		active, err := tx.CountActive(ctx, req.SectionID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
		if active >= section.Capacity {
			return appErrors.Clone(appErrors.ErrConflict, "Section is full. No seats available.")
		}
		if err := s.prereqs.Check(ctx, req.StudentID, section.CourseCode); err != nil {
			return err
		}
		if err := tx.Insert(ctx, enrollment); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "registration failed")
	}

	s.logger.Info("student registered",
		zap.String("student_id", req.StudentID),
		zap.String("section_id", req.SectionID),
		zap.String("enrollment_id", enrollment.ID))
	return enrollment, nil
}

// Drop transitions the requester's enrollment to DROPPED. Grade rows
// are left untouched so the historical record survives.
func (s *EnrollmentService) Drop(ctx context.Context, requesterID, studentID, sectionID string) error {
	if err := s.access.RequireWritable(ctx); err != nil {
		return err
	}
	if err := s.access.RequireOwnerOrSelf(requesterID, studentID); err != nil {
		return err
	}

	enrollment, err := s.repo.FindActive(ctx, studentID, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "You are not enrolled in this section.")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if section.DropDeadline != nil {
		today := dateOnly(time.Now().UTC())
		if today.After(dateOnly(*section.DropDeadline)) {
			return appErrors.Clone(appErrors.ErrConflict, "Drop deadline has passed.")
		}
	}

	droppedAt := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusDropped, &droppedAt); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}

	s.logger.Info("student dropped",
		zap.String("student_id", studentID),
		zap.String("section_id", sectionID),
		zap.String("enrollment_id", enrollment.ID))
	return nil
}

// CountActive counts ENROLLED rows for a section.
func (s *EnrollmentService) CountActive(ctx context.Context, sectionID string) (int, error) {
	count, err := s.repo.CountActive(ctx, sectionID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return count, nil
}

// CurrentRegistrations returns a student's ENROLLED sections.
func (s *EnrollmentService) CurrentRegistrations(ctx context.Context, requesterID, studentID string) ([]models.EnrollmentDetail, error) {
	if err := s.access.RequireOwnerOrSelf(requesterID, studentID); err != nil {
		return nil, err
	}
	enrollments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	current := make([]models.EnrollmentDetail, 0, len(enrollments))
	for _, enrollment := range enrollments {
		if enrollment.Status == models.EnrollmentStatusEnrolled {
			current = append(current, enrollment)
		}
	}
	return current, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
