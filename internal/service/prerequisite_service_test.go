package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uni-ops/registrar-api/internal/models"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
)

type mockCourseReader struct {
	courses map[string]*models.Course
	lookups []string
}

func (m *mockCourseReader) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	m.lookups = append(m.lookups, code)
	if c, ok := m.courses[code]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type mockPassingGrades struct {
	passed map[string]bool
	checks []string
}

func (m *mockPassingGrades) HasPassingGrade(ctx context.Context, studentID, courseCode string) (bool, error) {
	m.checks = append(m.checks, courseCode)
	return m.passed[studentID+"/"+courseCode], nil
}

func TestPrerequisiteCandidates(t *testing.T) {
	cases := []struct {
		code string
		want []string
	}{
		{"CS102", []string{"CS101"}},
		{"CS201", []string{"CS101"}},
		{"CS302", []string{"CS301", "CS202"}},
		{"MATH2", []string{"MATH1"}},
		{"CS101", nil},
		{"ENG1", nil},
		{"SEMINAR", nil},
		{"", nil},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			assert.Equal(t, tc.want, PrerequisiteCandidates(tc.code))
		})
	}
}

func TestPrerequisiteCheckPassed(t *testing.T) {
	courses := &mockCourseReader{courses: map[string]*models.Course{
		"CS101": {Code: "CS101"},
	}}
	grades := &mockPassingGrades{passed: map[string]bool{"stu-1/CS101": true}}
	svc := NewPrerequisiteService(courses, grades, nil)

	require.NoError(t, svc.Check(context.Background(), "stu-1", "CS102"))
	assert.Equal(t, []string{"CS101"}, grades.checks)
}

func TestPrerequisiteCheckNotMet(t *testing.T) {
	courses := &mockCourseReader{courses: map[string]*models.Course{
		"CS101": {Code: "CS101"},
	}}
	grades := &mockPassingGrades{}
	svc := NewPrerequisiteService(courses, grades, nil)

	err := svc.Check(context.Background(), "stu-1", "CS102")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Prerequisite not met: CS101", appErr.Message)
}

// Derived candidates that are not cataloged courses never block
// registration.
func TestPrerequisiteCheckSkipsUnknownCourses(t *testing.T) {
	courses := &mockCourseReader{}
	grades := &mockPassingGrades{}
	svc := NewPrerequisiteService(courses, grades, nil)

	require.NoError(t, svc.Check(context.Background(), "stu-1", "CS102"))
	assert.Empty(t, grades.checks)
}

// Entry-level courses have no derived prerequisites at all.
func TestPrerequisiteCheckEntryLevel(t *testing.T) {
	courses := &mockCourseReader{}
	svc := NewPrerequisiteService(courses, &mockPassingGrades{}, nil)

	require.NoError(t, svc.Check(context.Background(), "stu-1", "CS101"))
	assert.Empty(t, courses.lookups)
}
