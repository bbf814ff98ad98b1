package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/uni-ops/registrar-api/internal/models"
)

func TestGradeRepositoryInTxCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO grade_components").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE grade_components SET final_score = $2, updated_at = $3 WHERE enrollment_id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	score := 80.0
	final := 84.0
	err := repo.InTx(context.Background(), func(tx GradeScope) error {
		if err := tx.Upsert(context.Background(), &models.GradeComponentRow{
			EnrollmentID: "enr-1",
			ComponentID:  models.ComponentMidterm,
			Score:        &score,
			FinalScore:   &final,
		}); err != nil {
			return err
		}
		return tx.UpdateFinalScore(context.Background(), "enr-1", &final)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryInTxRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO grade_components").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	score := 80.0
	errBatch := errors.New("batch failed")
	err := repo.InTx(context.Background(), func(tx GradeScope) error {
		if err := tx.Upsert(context.Background(), &models.GradeComponentRow{
			EnrollmentID: "enr-1",
			ComponentID:  models.ComponentMidterm,
			Score:        &score,
		}); err != nil {
			return err
		}
		return errBatch
	})
	require.ErrorIs(t, err, errBatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListByEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"enrollment_id", "component_id", "score", "final_score", "created_at", "updated_at"}).
		AddRow("enr-1", int(models.ComponentMidterm), 80.0, 84.0, time.Now(), time.Now()).
		AddRow("enr-1", int(models.ComponentFinalExam), 90.0, 84.0, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM grade_components WHERE enrollment_id = $1 ORDER BY component_id")).
		WithArgs("enr-1").
		WillReturnRows(rows)

	list, err := repo.ListByEnrollment(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, models.ComponentMidterm, list[0].ComponentID)
	require.NotNil(t, list[0].FinalScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryHasPassingGrade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery("SELECT 1 FROM grade_components").
		WithArgs("stu-1", "CS101").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	passed, err := repo.HasPassingGrade(context.Background(), "stu-1", "CS101")
	require.NoError(t, err)
	require.True(t, passed)

	mock.ExpectQuery("SELECT 1 FROM grade_components").
		WithArgs("stu-1", "CS999").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	passed, err = repo.HasPassingGrade(context.Background(), "stu-1", "CS999")
	require.NoError(t, err)
	require.False(t, passed)
	require.NoError(t, mock.ExpectationsWereMet())
}
