package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uni-ops/registrar-api/internal/models"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
)

type mockSettingsReader struct {
	maintenance bool
	err         error
}

func (m *mockSettingsReader) IsMaintenanceMode(ctx context.Context) (bool, error) {
	return m.maintenance, m.err
}

type mockSectionReader struct {
	sections map[string]*models.Section
}

func (m *mockSectionReader) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func asAppError(t *testing.T, err error) *appErrors.Error {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	return appErr
}

func TestAccessServiceRequireWritable(t *testing.T) {
	svc := NewAccessService(&mockSettingsReader{}, &mockSectionReader{}, nil)
	require.NoError(t, svc.RequireWritable(context.Background()))

	svc = NewAccessService(&mockSettingsReader{maintenance: true}, &mockSectionReader{}, nil)
	err := svc.RequireWritable(context.Background())
	require.Error(t, err)
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrMaintenance.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrMaintenance.Status, appErr.Status)
}

func TestAccessServiceRequireOwnerOrSelf(t *testing.T) {
	svc := NewAccessService(&mockSettingsReader{}, &mockSectionReader{}, nil)

	require.NoError(t, svc.RequireOwnerOrSelf("stu-1", "stu-1"))

	err := svc.RequireOwnerOrSelf("stu-1", "stu-2")
	require.Error(t, err)
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Equal(t, "You can only access your own records.", appErr.Message)

	require.Error(t, svc.RequireOwnerOrSelf("", ""))
}

func TestAccessServiceRequireSectionInstructor(t *testing.T) {
	instructor := "ins-1"
	sections := &mockSectionReader{sections: map[string]*models.Section{
		"sec-1": {ID: "sec-1", InstructorID: &instructor},
		"sec-2": {ID: "sec-2"},
	}}
	svc := NewAccessService(&mockSettingsReader{}, sections, nil)

	require.NoError(t, svc.RequireSectionInstructor(context.Background(), "ins-1", "sec-1"))

	err := svc.RequireSectionInstructor(context.Background(), "ins-2", "sec-1")
	appErr := asAppError(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Equal(t, "You are not the instructor of this section.", appErr.Message)

	err = svc.RequireSectionInstructor(context.Background(), "ins-1", "sec-2")
	appErr = asAppError(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	err = svc.RequireSectionInstructor(context.Background(), "ins-1", "missing")
	appErr = asAppError(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "Section not found.", appErr.Message)
}
