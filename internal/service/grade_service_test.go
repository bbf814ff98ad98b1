package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uni-ops/registrar-api/internal/models"
	"github.com/uni-ops/registrar-api/internal/repository"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
)

func ptr(v float64) *float64 { return &v }

// mockGradeRepo stages writes per transaction and only publishes them
// on commit, mirroring the all-or-nothing batch contract.
type mockGradeRepo struct {
	byEnrollment map[string][]models.GradeComponentRow
	studentRows  []models.StudentGradeRow
	staged       map[string]map[models.ComponentID]models.GradeComponentRow
	upsertCalls  int
	failOnUpsert int
	inTxCalls    int
}

func newMockGradeRepo() *mockGradeRepo {
	return &mockGradeRepo{byEnrollment: make(map[string][]models.GradeComponentRow)}
}

func (m *mockGradeRepo) InTx(ctx context.Context, fn func(repository.GradeScope) error) error {
	m.inTxCalls++
	m.staged = make(map[string]map[models.ComponentID]models.GradeComponentRow)
	if err := fn(m); err != nil {
		m.staged = nil
		return err
	}
	for enrollmentID, components := range m.staged {
		rows := make([]models.GradeComponentRow, 0, len(components))
		for _, component := range models.Components() {
			if row, ok := components[component]; ok {
				rows = append(rows, row)
			}
		}
		m.byEnrollment[enrollmentID] = rows
	}
	m.staged = nil
	return nil
}

func (m *mockGradeRepo) Upsert(ctx context.Context, row *models.GradeComponentRow) error {
	m.upsertCalls++
	if m.failOnUpsert > 0 && m.upsertCalls >= m.failOnUpsert {
		return errors.New("write failed")
	}
	if m.staged[row.EnrollmentID] == nil {
		m.staged[row.EnrollmentID] = make(map[models.ComponentID]models.GradeComponentRow)
	}
	m.staged[row.EnrollmentID][row.ComponentID] = *row
	return nil
}

func (m *mockGradeRepo) UpdateFinalScore(ctx context.Context, enrollmentID string, finalScore *float64) error {
	for component, row := range m.staged[enrollmentID] {
		row.FinalScore = finalScore
		m.staged[enrollmentID][component] = row
	}
	return nil
}

func (m *mockGradeRepo) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeComponentRow, error) {
	return m.byEnrollment[enrollmentID], nil
}

func (m *mockGradeRepo) ListByStudent(ctx context.Context, studentID string) ([]models.StudentGradeRow, error) {
	return m.studentRows, nil
}

type mockSectionEnrollments struct {
	enrollments map[string]*models.Enrollment
	bySection   map[string][]models.Enrollment
}

func (m *mockSectionEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionEnrollments) ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	return m.bySection[sectionID], nil
}

type mockUserNames struct {
	names map[string]string
}

func (m *mockUserNames) NamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	return m.names, nil
}

func newGradeFixture(grades *mockGradeRepo, enrollments *mockSectionEnrollments, settings *mockSettingsReader) *GradeService {
	instructor := "ins-1"
	sections := &mockSectionReader{sections: map[string]*models.Section{
		"sec-1": {ID: "sec-1", CourseCode: "CS101", InstructorID: &instructor},
	}}
	access := NewAccessService(settings, sections, nil)
	users := &mockUserNames{names: map[string]string{"stu-1": "Alice Stone", "stu-2": "Bob Reyes"}}
	return NewGradeService(grades, enrollments, users, access, nil, nil, nil)
}

func TestComputeFinalScore(t *testing.T) {
	cases := []struct {
		name string
		row  GradeRowInput
		want float64
	}{
		{"all components", GradeRowInput{Midterm: ptr(80), FinalExam: ptr(90), Project: ptr(70)}, 84},
		{"midterm only", GradeRowInput{Midterm: ptr(80)}, 80},
		{"midterm and final", GradeRowInput{Midterm: ptr(80), FinalExam: ptr(90)}, 86},
		{"rounds half up", GradeRowInput{Midterm: ptr(85), FinalExam: ptr(90)}, 88},
		{"no components", GradeRowInput{}, 0},
		{"explicit zeros", GradeRowInput{Midterm: ptr(0), FinalExam: ptr(0), Project: ptr(0)}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeFinalScore(tc.row))
		})
	}
}

func TestGradeServiceUpdateGrades(t *testing.T) {
	grades := newMockGradeRepo()
	enrollments := &mockSectionEnrollments{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1"},
		"enr-2": {ID: "enr-2", StudentID: "stu-2", SectionID: "sec-1"},
	}}
	svc := newGradeFixture(grades, enrollments, &mockSettingsReader{})

	req := UpdateGradesRequest{Rows: []GradeRowInput{
		{EnrollmentID: "enr-1", Midterm: ptr(80), FinalExam: ptr(90), Project: ptr(70)},
		{EnrollmentID: "enr-2", Midterm: ptr(60)},
	}}
	require.NoError(t, svc.UpdateGrades(context.Background(), "ins-1", "sec-1", req))

	require.Len(t, grades.byEnrollment["enr-1"], 3)
	for _, row := range grades.byEnrollment["enr-1"] {
		require.NotNil(t, row.FinalScore)
		assert.Equal(t, 84.0, *row.FinalScore)
	}
	for _, row := range grades.byEnrollment["enr-2"] {
		require.NotNil(t, row.FinalScore)
		assert.Equal(t, 60.0, *row.FinalScore)
	}
}

// Re-running the same batch leaves identical state.
func TestGradeServiceUpdateGradesIdempotent(t *testing.T) {
	grades := newMockGradeRepo()
	enrollments := &mockSectionEnrollments{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1"},
	}}
	svc := newGradeFixture(grades, enrollments, &mockSettingsReader{})

	req := UpdateGradesRequest{Rows: []GradeRowInput{
		{EnrollmentID: "enr-1", Midterm: ptr(80), FinalExam: ptr(90), Project: ptr(70)},
	}}
	require.NoError(t, svc.UpdateGrades(context.Background(), "ins-1", "sec-1", req))
	first := grades.byEnrollment["enr-1"]

	require.NoError(t, svc.UpdateGrades(context.Background(), "ins-1", "sec-1", req))
	assert.Equal(t, len(first), len(grades.byEnrollment["enr-1"]))
	for i, row := range grades.byEnrollment["enr-1"] {
		assert.Equal(t, first[i].ComponentID, row.ComponentID)
		assert.Equal(t, *first[i].FinalScore, *row.FinalScore)
	}
	assert.Equal(t, 2, grades.inTxCalls)
}

// A failure mid-batch leaves no partial rows behind.
func TestGradeServiceUpdateGradesRollsBack(t *testing.T) {
	grades := newMockGradeRepo()
	grades.failOnUpsert = 4
	enrollments := &mockSectionEnrollments{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1"},
		"enr-2": {ID: "enr-2", StudentID: "stu-2", SectionID: "sec-1"},
	}}
	svc := newGradeFixture(grades, enrollments, &mockSettingsReader{})

	req := UpdateGradesRequest{Rows: []GradeRowInput{
		{EnrollmentID: "enr-1", Midterm: ptr(80)},
		{EnrollmentID: "enr-2", Midterm: ptr(70)},
	}}
	err := svc.UpdateGrades(context.Background(), "ins-1", "sec-1", req)
	require.Error(t, err)
	assert.Empty(t, grades.byEnrollment["enr-1"])
	assert.Empty(t, grades.byEnrollment["enr-2"])
}

func TestGradeServiceUpdateGradesWrongSection(t *testing.T) {
	grades := newMockGradeRepo()
	enrollments := &mockSectionEnrollments{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-2"},
	}}
	svc := newGradeFixture(grades, enrollments, &mockSettingsReader{})

	req := UpdateGradesRequest{Rows: []GradeRowInput{{EnrollmentID: "enr-1", Midterm: ptr(80)}}}
	err := svc.UpdateGrades(context.Background(), "ins-1", "sec-1", req)
	appErr := asAppError(t, err)
	assert.Equal(t, "Enrollment does not belong to this section.", appErr.Message)
	assert.Zero(t, grades.inTxCalls)
}

func TestGradeServiceUpdateGradesNotInstructor(t *testing.T) {
	grades := newMockGradeRepo()
	enrollments := &mockSectionEnrollments{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1"},
	}}
	svc := newGradeFixture(grades, enrollments, &mockSettingsReader{})

	req := UpdateGradesRequest{Rows: []GradeRowInput{{EnrollmentID: "enr-1", Midterm: ptr(80)}}}
	err := svc.UpdateGrades(context.Background(), "ins-2", "sec-1", req)
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Zero(t, grades.inTxCalls)
}

func TestGradeServiceUpdateGradesMaintenance(t *testing.T) {
	grades := newMockGradeRepo()
	enrollments := &mockSectionEnrollments{}
	svc := newGradeFixture(grades, enrollments, &mockSettingsReader{maintenance: true})

	req := UpdateGradesRequest{Rows: []GradeRowInput{{EnrollmentID: "enr-1", Midterm: ptr(80)}}}
	err := svc.UpdateGrades(context.Background(), "ins-1", "sec-1", req)
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrMaintenance.Code, appErr.Code)
}

func TestGradeServiceGradebook(t *testing.T) {
	grades := newMockGradeRepo()
	grades.byEnrollment["enr-1"] = []models.GradeComponentRow{
		{EnrollmentID: "enr-1", ComponentID: models.ComponentMidterm, Score: ptr(80), FinalScore: ptr(84)},
		{EnrollmentID: "enr-1", ComponentID: models.ComponentFinalExam, Score: ptr(90), FinalScore: ptr(84)},
		{EnrollmentID: "enr-1", ComponentID: models.ComponentProject, Score: ptr(70), FinalScore: ptr(84)},
	}
	enrollments := &mockSectionEnrollments{bySection: map[string][]models.Enrollment{
		"sec-1": {
			{ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
			{ID: "enr-2", StudentID: "stu-2", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		},
	}}
	svc := newGradeFixture(grades, enrollments, &mockSettingsReader{})

	entries, err := svc.Gradebook(context.Background(), "ins-1", "sec-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Alice Stone", entries[0].StudentName)
	require.NotNil(t, entries[0].Midterm)
	assert.Equal(t, 80.0, *entries[0].Midterm)
	require.NotNil(t, entries[0].FinalScore)
	assert.Equal(t, 84.0, *entries[0].FinalScore)

	// No grades recorded yet for the second student.
	assert.Nil(t, entries[1].Midterm)
	assert.Nil(t, entries[1].FinalScore)
}

func TestGradeServiceClassStatistics(t *testing.T) {
	grades := newMockGradeRepo()
	finals := map[string]float64{"enr-1": 90, "enr-2": 80, "enr-3": 80, "enr-4": 60}
	var list []models.Enrollment
	for id, final := range finals {
		grades.byEnrollment[id] = []models.GradeComponentRow{
			{EnrollmentID: id, ComponentID: models.ComponentMidterm, Score: ptr(final), FinalScore: ptr(final)},
		}
	}
	for _, id := range []string{"enr-1", "enr-2", "enr-3", "enr-4"} {
		list = append(list, models.Enrollment{ID: id, StudentID: "stu-1", SectionID: "sec-1"})
	}
	enrollments := &mockSectionEnrollments{bySection: map[string][]models.Enrollment{"sec-1": list}}
	svc := newGradeFixture(grades, enrollments, &mockSettingsReader{})

	stats, err := svc.ClassStatistics(context.Background(), "ins-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 60.0, *stats.Min)
	assert.Equal(t, 90.0, *stats.Max)
	assert.InDelta(t, 77.5, *stats.Mean, 0.001)
	assert.InDelta(t, 10.897, *stats.StdDev, 0.001)
	assert.Equal(t, 1, stats.Histogram["A"])
	assert.Equal(t, 2, stats.Histogram["B"])
	assert.Equal(t, 0, stats.Histogram["C"])
	assert.Equal(t, 1, stats.Histogram["D"])
	assert.Equal(t, 0, stats.Histogram["F"])
}

func TestGradeServiceClassStatisticsEmpty(t *testing.T) {
	grades := newMockGradeRepo()
	enrollments := &mockSectionEnrollments{}
	svc := newGradeFixture(grades, enrollments, &mockSettingsReader{})

	stats, err := svc.ClassStatistics(context.Background(), "ins-1", "sec-1")
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
	assert.Nil(t, stats.Mean)
	assert.Equal(t, 0, stats.Histogram["A"])
}

func TestGradeServiceStudentGrades(t *testing.T) {
	grades := newMockGradeRepo()
	grades.studentRows = []models.StudentGradeRow{
		{EnrollmentID: "enr-1", CourseCode: "CS101", CourseTitle: "Intro", Credits: 3, ComponentID: models.ComponentMidterm, Score: ptr(80), FinalScore: ptr(84)},
		{EnrollmentID: "enr-1", CourseCode: "CS101", CourseTitle: "Intro", Credits: 3, ComponentID: models.ComponentFinalExam, Score: ptr(90), FinalScore: ptr(84)},
	}
	svc := newGradeFixture(grades, &mockSectionEnrollments{}, &mockSettingsReader{})

	list, err := svc.StudentGrades(context.Background(), "stu-1", "stu-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "CS101", list[0].CourseCode)
	assert.Equal(t, "B", list[0].LetterGrade)
	require.NotNil(t, list[0].Midterm)
	assert.Equal(t, 80.0, *list[0].Midterm)

	_, err = svc.StudentGrades(context.Background(), "stu-2", "stu-1")
	require.Error(t, err)
}

func TestGradeServiceGPA(t *testing.T) {
	grades := newMockGradeRepo()
	grades.studentRows = []models.StudentGradeRow{
		// A in a 3-credit course, C in a 4-credit course.
		{EnrollmentID: "enr-1", CourseCode: "CS101", Credits: 3, ComponentID: models.ComponentMidterm, FinalScore: ptr(95)},
		{EnrollmentID: "enr-2", CourseCode: "MA201", Credits: 4, ComponentID: models.ComponentMidterm, FinalScore: ptr(72)},
		// In-progress course without a final score is excluded.
		{EnrollmentID: "enr-3", CourseCode: "PH101", Credits: 3, ComponentID: models.ComponentMidterm, Score: ptr(50)},
	}
	svc := newGradeFixture(grades, &mockSectionEnrollments{}, &mockSettingsReader{})

	report, err := svc.GPA(context.Background(), "stu-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 7, report.TotalCredits)
	assert.Equal(t, 2, report.CourseCount)
	assert.InDelta(t, 2.86, report.GPA, 0.001)
}

func TestGradeServiceGPANoGrades(t *testing.T) {
	svc := newGradeFixture(newMockGradeRepo(), &mockSectionEnrollments{}, &mockSettingsReader{})

	report, err := svc.GPA(context.Background(), "stu-1", "stu-1")
	require.NoError(t, err)
	assert.Zero(t, report.GPA)
	assert.Zero(t, report.TotalCredits)
}
