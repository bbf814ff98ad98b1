package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uni-ops/registrar-api/internal/models"
	"github.com/uni-ops/registrar-api/internal/repository"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
)

type gradeRepo interface {
	InTx(ctx context.Context, fn func(repository.GradeScope) error) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeComponentRow, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentGradeRow, error)
}

type sectionEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error)
}

type userNameReader interface {
	NamesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// GradeRowInput carries one enrollment's component scores. A nil score
// clears the stored component.
type GradeRowInput struct {
	EnrollmentID string   `json:"enrollment_id" validate:"required"`
	Midterm      *float64 `json:"midterm" validate:"omitempty,gte=0,lte=100"`
	FinalExam    *float64 `json:"final_exam" validate:"omitempty,gte=0,lte=100"`
	Project      *float64 `json:"project" validate:"omitempty,gte=0,lte=100"`
}

// UpdateGradesRequest is the atomic grade batch payload.
type UpdateGradesRequest struct {
	Rows []GradeRowInput `json:"rows" validate:"required,min=1,dive"`
}

// GradeService owns weighted score computation and the transactional
// multi-row grade commit.
type GradeService struct {
	grades      gradeRepo
	enrollments sectionEnrollmentReader
	users       userNameReader
	access      accessGate
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(grades gradeRepo, enrollments sectionEnrollmentReader, users userNameReader, access accessGate, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{grades: grades, enrollments: enrollments, users: users, access: access, metrics: metrics, validator: validate, logger: logger}
}

// ComputeFinalScore aggregates the components present in the row into
// a weighted average renormalized over their weights, rounded half-up
// to the nearest integer. No components means zero.
func ComputeFinalScore(row GradeRowInput) float64 {
	scores := map[models.ComponentID]*float64{
		models.ComponentMidterm:   row.Midterm,
		models.ComponentFinalExam: row.FinalExam,
		models.ComponentProject:   row.Project,
	}
	sum := 0.0
	totalWeight := 0.0
	for _, component := range models.Components() {
		score := scores[component]
		if score == nil {
			continue
		}
		sum += *score * component.Weight()
		totalWeight += component.Weight()
	}
	if totalWeight == 0 {
		return 0
	}
	return math.Floor(sum/totalWeight + 0.5)
}

// UpdateGrades persists a grade batch for a section as one atomic
// unit: every row's components and final score commit together or not
// at all. Upsert semantics make the call idempotent.
func (s *GradeService) UpdateGrades(ctx context.Context, instructorID, sectionID string, req UpdateGradesRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grades payload")
	}
	if err := s.access.RequireWritable(ctx); err != nil {
		return err
	}
	if err := s.access.RequireSectionInstructor(ctx, instructorID, sectionID); err != nil {
		return err
	}

	for _, row := range req.Rows {
		enrollment, err := s.enrollments.FindByID(ctx, row.EnrollmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "Enrollment not found.")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		if enrollment.SectionID != sectionID {
			return appErrors.Clone(appErrors.ErrValidation, "Enrollment does not belong to this section.")
		}
	}

	start := time.Now()
	computed := make(map[string]float64, len(req.Rows))
	err := s.grades.InTx(ctx, func(tx repository.GradeScope) error {
		for _, row := range req.Rows {
			final := ComputeFinalScore(row)
			computed[row.EnrollmentID] = final
			scores := map[models.ComponentID]*float64{
				models.ComponentMidterm:   row.Midterm,
				models.ComponentFinalExam: row.FinalExam,
				models.ComponentProject:   row.Project,
			}
			for _, component := range models.Components() {
				if err := tx.Upsert(ctx, &models.GradeComponentRow{
					EnrollmentID: row.EnrollmentID,
					ComponentID:  component,
					Score:        scores[component],
					FinalScore:   &final,
				}); err != nil {
					return err
				}
			}
			if err := tx.UpdateFinalScore(ctx, row.EnrollmentID, &final); err != nil {
				return err
			}
		}
		return nil
	})
	if s.metrics != nil {
		s.metrics.ObserveGradeBatch(len(req.Rows), time.Since(start), err == nil)
	}
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to save grades. No changes were applied.")
	}

	s.verifyBatch(ctx, sectionID, computed)
	return nil
}

// verifyBatch reads the committed rows back and logs any final score
// that does not match what the batch computed.
func (s *GradeService) verifyBatch(ctx context.Context, sectionID string, computed map[string]float64) {
	for enrollmentID, want := range computed {
		rows, err := s.grades.ListByEnrollment(ctx, enrollmentID)
		if err != nil {
			s.logger.Warn("grade verification read failed",
				zap.String("section_id", sectionID),
				zap.String("enrollment_id", enrollmentID),
				zap.Error(err))
			continue
		}
		for _, row := range rows {
			if row.FinalScore == nil || *row.FinalScore != want {
				s.logger.Warn("stored final score does not match computed value",
					zap.String("section_id", sectionID),
					zap.String("enrollment_id", enrollmentID),
					zap.Float64("computed", want))
				break
			}
		}
	}
}

// Gradebook projects component scores for every enrollment in the
// section.
func (s *GradeService) Gradebook(ctx context.Context, instructorID, sectionID string) ([]models.GradebookEntry, error) {
	if err := s.access.RequireSectionInstructor(ctx, instructorID, sectionID); err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	studentIDs := make([]string, 0, len(enrollments))
	for _, enrollment := range enrollments {
		studentIDs = append(studentIDs, enrollment.StudentID)
	}
	names, err := s.users.NamesByIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student names")
	}

	entries := make([]models.GradebookEntry, 0, len(enrollments))
	for _, enrollment := range enrollments {
		rows, err := s.grades.ListByEnrollment(ctx, enrollment.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		entry := models.GradebookEntry{
			EnrollmentID: enrollment.ID,
			StudentID:    enrollment.StudentID,
			StudentName:  names[enrollment.StudentID],
		}
		projectComponents(rows, &entry)
		entries = append(entries, entry)
	}
	return entries, nil
}

// projectComponents maps component rows onto the gradebook entry,
// keeping the first occurrence per component and the last non-nil
// final score seen.
func projectComponents(rows []models.GradeComponentRow, entry *models.GradebookEntry) {
	seen := make(map[models.ComponentID]bool, len(rows))
	for _, row := range rows {
		if seen[row.ComponentID] {
			continue
		}
		seen[row.ComponentID] = true
		switch row.ComponentID {
		case models.ComponentMidterm:
			entry.Midterm = row.Score
		case models.ComponentFinalExam:
			entry.FinalExam = row.Score
		case models.ComponentProject:
			entry.Project = row.Score
		}
		if row.FinalScore != nil {
			entry.FinalScore = row.FinalScore
		}
	}
}

// ClassStatistics aggregates the recorded final scores of a section.
func (s *GradeService) ClassStatistics(ctx context.Context, instructorID, sectionID string) (*models.ClassStatistics, error) {
	entries, err := s.Gradebook(ctx, instructorID, sectionID)
	if err != nil {
		return nil, err
	}

	stats := &models.ClassStatistics{
		SectionID: sectionID,
		Histogram: map[string]int{"A": 0, "B": 0, "C": 0, "D": 0, "F": 0},
	}
	var finals []float64
	for _, entry := range entries {
		if entry.FinalScore == nil {
			continue
		}
		finals = append(finals, *entry.FinalScore)
		stats.Histogram[models.LetterGrade(*entry.FinalScore)]++
	}
	stats.Count = len(finals)
	if len(finals) == 0 {
		return stats, nil
	}

	min, max, sum := finals[0], finals[0], 0.0
	for _, v := range finals {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	mean := sum / float64(len(finals))
	variance := 0.0
	for _, v := range finals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(finals))
	stddev := math.Sqrt(variance)

	stats.Min = &min
	stats.Max = &max
	stats.Mean = &mean
	stats.StdDev = &stddev
	return stats, nil
}

// StudentGrades returns the transcript view of a student's grades.
func (s *GradeService) StudentGrades(ctx context.Context, requesterID, studentID string) ([]models.StudentGrade, error) {
	if err := s.access.RequireOwnerOrSelf(requesterID, studentID); err != nil {
		return nil, err
	}
	rows, err := s.grades.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	return groupStudentGrades(rows), nil
}

// GPA computes the credit-weighted grade point average over every
// enrollment carrying a recorded final score.
func (s *GradeService) GPA(ctx context.Context, requesterID, studentID string) (*models.GPAReport, error) {
	if err := s.access.RequireOwnerOrSelf(requesterID, studentID); err != nil {
		return nil, err
	}
	rows, err := s.grades.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}

	report := &models.GPAReport{StudentID: studentID}
	totalPoints := 0.0
	for _, grade := range groupStudentGrades(rows) {
		if grade.FinalScore == nil {
			continue
		}
		points := models.GradePoints(models.LetterGrade(*grade.FinalScore))
		totalPoints += points * float64(grade.Credits)
		report.TotalCredits += grade.Credits
		report.CourseCount++
	}
	if report.TotalCredits > 0 {
		report.GPA = math.Round(totalPoints/float64(report.TotalCredits)*100) / 100
	}
	return report, nil
}

// groupStudentGrades folds flat component rows into one transcript
// entry per enrollment, preserving row order.
func groupStudentGrades(rows []models.StudentGradeRow) []models.StudentGrade {
	index := make(map[string]int, len(rows))
	var grades []models.StudentGrade
	for _, row := range rows {
		i, ok := index[row.EnrollmentID]
		if !ok {
			grades = append(grades, models.StudentGrade{
				EnrollmentID: row.EnrollmentID,
				CourseCode:   row.CourseCode,
				CourseTitle:  row.CourseTitle,
				Credits:      row.Credits,
				Semester:     row.Semester,
				Year:         row.Year,
			})
			i = len(grades) - 1
			index[row.EnrollmentID] = i
		}
		switch row.ComponentID {
		case models.ComponentMidterm:
			if grades[i].Midterm == nil {
				grades[i].Midterm = row.Score
			}
		case models.ComponentFinalExam:
			if grades[i].FinalExam == nil {
				grades[i].FinalExam = row.Score
			}
		case models.ComponentProject:
			if grades[i].Project == nil {
				grades[i].Project = row.Score
			}
		}
		if row.FinalScore != nil {
			grades[i].FinalScore = row.FinalScore
			grades[i].LetterGrade = models.LetterGrade(*row.FinalScore)
		}
	}
	return grades
}
