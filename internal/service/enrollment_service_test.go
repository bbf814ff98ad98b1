package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uni-ops/registrar-api/internal/models"
	"github.com/uni-ops/registrar-api/internal/repository"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
)

// mockEnrollmentRepo backs both the repository contract and the
// registration scope so tests observe exactly what the transaction
// would have written.
type mockEnrollmentRepo struct {
	section      *models.Section
	activeExists bool
	activeCount  int
	inserted     *models.Enrollment
	active       map[string]*models.Enrollment
	details      []models.EnrollmentDetail
	status       map[string]models.EnrollmentStatus
	droppedAt    map[string]*time.Time
	scopeRan     bool
}

func (m *mockEnrollmentRepo) Register(ctx context.Context, fn func(repository.RegistrationScope) error) error {
	m.scopeRan = true
	return fn(m)
}

func (m *mockEnrollmentRepo) LockSection(ctx context.Context, sectionID string) (*models.Section, error) {
	if m.section == nil || m.section.ID != sectionID {
		return nil, sql.ErrNoRows
	}
	copied := *m.section
	return &copied, nil
}

func (m *mockEnrollmentRepo) ActiveExists(ctx context.Context, studentID, sectionID string) (bool, error) {
	return m.activeExists, nil
}

func (m *mockEnrollmentRepo) CountActive(ctx context.Context, sectionID string) (int, error) {
	return m.activeCount, nil
}

func (m *mockEnrollmentRepo) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	enrollment.Status = models.EnrollmentStatusEnrolled
	m.inserted = enrollment
	return nil
}

func (m *mockEnrollmentRepo) FindActive(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	if e, ok := m.active[studentID+"/"+sectionID]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.details, nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, droppedAt *time.Time) error {
	if m.status == nil {
		m.status = make(map[string]models.EnrollmentStatus)
		m.droppedAt = make(map[string]*time.Time)
	}
	m.status[id] = status
	m.droppedAt[id] = droppedAt
	return nil
}

type mockPrereqChecker struct {
	err error
}

func (m *mockPrereqChecker) Check(ctx context.Context, studentID, courseCode string) error {
	return m.err
}

func newEnrollmentFixture(repo *mockEnrollmentRepo, settings *mockSettingsReader, prereqErr error) *EnrollmentService {
	sections := &mockSectionReader{sections: map[string]*models.Section{}}
	if repo.section != nil {
		sections.sections[repo.section.ID] = repo.section
	}
	access := NewAccessService(settings, sections, nil)
	return NewEnrollmentService(repo, sections, access, &mockPrereqChecker{err: prereqErr}, nil, nil)
}

func TestEnrollmentServiceRegister(t *testing.T) {
	repo := &mockEnrollmentRepo{section: &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 30}}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	enrollment, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	require.NotNil(t, repo.inserted)
	assert.Equal(t, "stu-1", enrollment.StudentID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NotEmpty(t, enrollment.ID)
}

func TestEnrollmentServiceRegisterSectionNotFound(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "missing"})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "Section not found.", appErr.Message)
}

func TestEnrollmentServiceRegisterDuplicate(t *testing.T) {
	repo := &mockEnrollmentRepo{
		section:      &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 30},
		activeExists: true,
	}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "You are already enrolled in this section.", appErr.Message)
	assert.Nil(t, repo.inserted)
}

func TestEnrollmentServiceRegisterSectionFull(t *testing.T) {
	repo := &mockEnrollmentRepo{
		section:     &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 2},
		activeCount: 2,
	}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Section is full. No seats available.", appErr.Message)
	assert.Nil(t, repo.inserted)
}

// A drop frees the seat: dropped rows do not count against capacity.
func TestEnrollmentServiceRegisterAfterDrop(t *testing.T) {
	repo := &mockEnrollmentRepo{
		section:     &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 1},
		activeCount: 0,
	}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-2", SectionID: "sec-1"})
	require.NoError(t, err)
	require.NotNil(t, repo.inserted)
}

func TestEnrollmentServiceRegisterPrerequisiteNotMet(t *testing.T) {
	repo := &mockEnrollmentRepo{section: &models.Section{ID: "sec-1", CourseCode: "CS102", Capacity: 30}}
	prereqErr := appErrors.Clone(appErrors.ErrConflict, "Prerequisite not met: CS101")
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, prereqErr)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	appErr := asAppError(t, err)
	assert.Equal(t, "Prerequisite not met: CS101", appErr.Message)
	assert.Nil(t, repo.inserted)
}

func TestEnrollmentServiceRegisterMaintenance(t *testing.T) {
	repo := &mockEnrollmentRepo{section: &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 30}}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{maintenance: true}, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "stu-1", SectionID: "sec-1"})
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrMaintenance.Code, appErr.Code)
	assert.False(t, repo.scopeRan)
}

func TestEnrollmentServiceDrop(t *testing.T) {
	deadline := time.Now().UTC().Add(48 * time.Hour)
	repo := &mockEnrollmentRepo{
		section: &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 30, DropDeadline: &deadline},
		active: map[string]*models.Enrollment{
			"stu-1/sec-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		},
	}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	require.NoError(t, svc.Drop(context.Background(), "stu-1", "stu-1", "sec-1"))
	assert.Equal(t, models.EnrollmentStatusDropped, repo.status["enr-1"])
	assert.NotNil(t, repo.droppedAt["enr-1"])
}

// Dropping on the deadline day itself is still allowed.
func TestEnrollmentServiceDropOnDeadlineDay(t *testing.T) {
	deadline := time.Now().UTC()
	repo := &mockEnrollmentRepo{
		section: &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 30, DropDeadline: &deadline},
		active: map[string]*models.Enrollment{
			"stu-1/sec-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		},
	}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	require.NoError(t, svc.Drop(context.Background(), "stu-1", "stu-1", "sec-1"))
}

func TestEnrollmentServiceDropDeadlinePassed(t *testing.T) {
	deadline := time.Now().UTC().Add(-48 * time.Hour)
	repo := &mockEnrollmentRepo{
		section: &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 30, DropDeadline: &deadline},
		active: map[string]*models.Enrollment{
			"stu-1/sec-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		},
	}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	err := svc.Drop(context.Background(), "stu-1", "stu-1", "sec-1")
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Drop deadline has passed.", appErr.Message)
	assert.Empty(t, repo.status)
}

func TestEnrollmentServiceDropNotEnrolled(t *testing.T) {
	repo := &mockEnrollmentRepo{section: &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 30}}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	err := svc.Drop(context.Background(), "stu-1", "stu-1", "sec-1")
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "You are not enrolled in this section.", appErr.Message)
}

func TestEnrollmentServiceDropOtherStudent(t *testing.T) {
	repo := &mockEnrollmentRepo{section: &models.Section{ID: "sec-1", CourseCode: "CS101", Capacity: 30}}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	err := svc.Drop(context.Background(), "stu-2", "stu-1", "sec-1")
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestEnrollmentServiceCurrentRegistrations(t *testing.T) {
	repo := &mockEnrollmentRepo{details: []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusEnrolled}},
		{Enrollment: models.Enrollment{ID: "enr-2", Status: models.EnrollmentStatusDropped}},
		{Enrollment: models.Enrollment{ID: "enr-3", Status: models.EnrollmentStatusEnrolled}},
	}}
	svc := newEnrollmentFixture(repo, &mockSettingsReader{}, nil)

	list, err := svc.CurrentRegistrations(context.Background(), "stu-1", "stu-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "enr-1", list[0].ID)
	assert.Equal(t, "enr-3", list[1].ID)

	_, err = svc.CurrentRegistrations(context.Background(), "stu-2", "stu-1")
	require.Error(t, err)
}
