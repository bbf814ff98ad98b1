package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uni-ops/registrar-api/internal/models"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
)

type catalogCourseRepo interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	List(ctx context.Context) ([]models.Course, error)
	Create(ctx context.Context, course *models.Course) error
}

type catalogSectionRepo interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	List(ctx context.Context) ([]models.SectionDetail, error)
	Create(ctx context.Context, section *models.Section) error
	UpdateInstructor(ctx context.Context, id string, instructorID *string) error
	Delete(ctx context.Context, id string) error
}

type seatCounter interface {
	CountActiveBySection(ctx context.Context) (map[string]int, error)
}

type instructorReader interface {
	FindByIDAndRole(ctx context.Context, id string, role models.UserRole) (*models.User, error)
}

const catalogCoursesCacheKey = "catalog:courses"

// CreateCourseRequest describes a new catalog course.
type CreateCourseRequest struct {
	Code    string `json:"code" validate:"required,min=2,max=16"`
	Title   string `json:"title" validate:"required"`
	Credits int    `json:"credits" validate:"required,gte=1"`
}

// CreateSectionRequest describes a new course section.
type CreateSectionRequest struct {
	CourseCode   string     `json:"course_code" validate:"required"`
	InstructorID *string    `json:"instructor_id"`
	Schedule     string     `json:"schedule" validate:"required"`
	Room         string     `json:"room" validate:"required"`
	Capacity     int        `json:"capacity" validate:"required,gte=1"`
	Semester     string     `json:"semester" validate:"required"`
	Year         int        `json:"year" validate:"required,gte=2000"`
	DropDeadline *time.Time `json:"drop_deadline"`
}

// AssignInstructorRequest assigns or clears a section instructor.
type AssignInstructorRequest struct {
	InstructorID *string `json:"instructor_id"`
}

// CatalogService serves the public course catalog and the admin
// course/section surface. Catalog reads are never blocked by
// maintenance mode.
type CatalogService struct {
	courses     catalogCourseRepo
	sections    catalogSectionRepo
	enrollments seatCounter
	users       instructorReader
	cache       *CacheService
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(courses catalogCourseRepo, sections catalogSectionRepo, enrollments seatCounter, users instructorReader, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{courses: courses, sections: sections, enrollments: enrollments, users: users, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// GetCourseCatalog returns every course and section with current seat
// availability. Seat counts always come from the store; only the
// course list itself is cached.
func (s *CatalogService) GetCourseCatalog(ctx context.Context) (*models.CourseCatalog, error) {
	var courses []models.Course
	hit, err := s.cache.Get(ctx, catalogCoursesCacheKey, &courses)
	if err != nil || !hit {
		courses, err = s.courses.List(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
		}
		_ = s.cache.Set(ctx, catalogCoursesCacheKey, courses, s.cacheTTL)
	}

	sections, err := s.sections.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	counts, err := s.enrollments.CountActiveBySection(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	for i := range sections {
		enrolled := counts[sections[i].ID]
		sections[i].EnrolledCount = enrolled
		sections[i].SeatsAvailable = sections[i].Capacity - enrolled
		if sections[i].SeatsAvailable < 0 {
			sections[i].SeatsAvailable = 0
		}
	}

	return &models.CourseCatalog{Courses: courses, Sections: sections}, nil
}

// ListSections returns every section with current seat availability.
func (s *CatalogService) ListSections(ctx context.Context) ([]models.SectionDetail, error) {
	sections, err := s.sections.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	counts, err := s.enrollments.CountActiveBySection(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	for i := range sections {
		enrolled := counts[sections[i].ID]
		sections[i].EnrolledCount = enrolled
		sections[i].SeatsAvailable = sections[i].Capacity - enrolled
		if sections[i].SeatsAvailable < 0 {
			sections[i].SeatsAvailable = 0
		}
	}
	return sections, nil
}

// CreateCourse adds a course to the catalog.
func (s *CatalogService) CreateCourse(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if _, err := s.courses.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "A course with this code already exists.")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}

	course := &models.Course{Code: req.Code, Title: req.Title, Credits: req.Credits}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	_ = s.cache.Invalidate(ctx, catalogCoursesCacheKey)
	return course, nil
}

// CreateSection adds a section for an existing course.
func (s *CatalogService) CreateSection(ctx context.Context, req CreateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if _, err := s.courses.FindByCode(ctx, req.CourseCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Course not found.")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if req.InstructorID != nil {
		if _, err := s.users.FindByIDAndRole(ctx, *req.InstructorID, models.RoleInstructor); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "Instructor not found.")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
		}
	}

	section := &models.Section{
		CourseCode:   req.CourseCode,
		InstructorID: req.InstructorID,
		Schedule:     req.Schedule,
		Room:         req.Room,
		Capacity:     req.Capacity,
		Semester:     req.Semester,
		Year:         req.Year,
		DropDeadline: req.DropDeadline,
	}
	if err := s.sections.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	return section, nil
}

// AssignInstructor assigns or clears the instructor for a section.
func (s *CatalogService) AssignInstructor(ctx context.Context, sectionID string, req AssignInstructorRequest) error {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Section not found.")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if req.InstructorID != nil {
		if _, err := s.users.FindByIDAndRole(ctx, *req.InstructorID, models.RoleInstructor); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "Instructor not found.")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
		}
	}
	if err := s.sections.UpdateInstructor(ctx, sectionID, req.InstructorID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign instructor")
	}
	return nil
}

// DeleteSection removes a section from the catalog.
func (s *CatalogService) DeleteSection(ctx context.Context, sectionID string) error {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Section not found.")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if err := s.sections.Delete(ctx, sectionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete section")
	}
	return nil
}
