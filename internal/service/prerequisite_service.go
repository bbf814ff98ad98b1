package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uni-ops/registrar-api/internal/models"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
)

type courseReader interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
}

type passingGradeReader interface {
	HasPassingGrade(ctx context.Context, studentID, courseCode string) (bool, error)
}

// PrerequisiteService derives a student's eligibility for a course
// from completed courses. Prerequisites are inferred from the course
// code itself; there is no configured graph.
type PrerequisiteService struct {
	courses courseReader
	grades  passingGradeReader
	logger  *zap.Logger
}

// NewPrerequisiteService constructs PrerequisiteService.
func NewPrerequisiteService(courses courseReader, grades passingGradeReader, logger *zap.Logger) *PrerequisiteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrerequisiteService{courses: courses, grades: grades, logger: logger}
}

// passingScore is the minimum final score that satisfies a prerequisite.
const passingScore = 50

// Check verifies every derived prerequisite of courseCode for the
// student. Candidates that are not cataloged courses are skipped.
func (s *PrerequisiteService) Check(ctx context.Context, studentID, courseCode string) error {
	for _, candidate := range PrerequisiteCandidates(courseCode) {
		if _, err := s.courses.FindByCode(ctx, candidate); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up prerequisite course")
		}
		passed, err := s.grades.HasPassingGrade(ctx, studentID, candidate)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite grade")
		}
		if !passed {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("Prerequisite not met: %s", candidate))
		}
	}
	return nil
}

// PrerequisiteCandidates derives candidate prerequisite codes from a
// course code using two syntactic rules:
//
//  1. if the code ends in a digit >= '2', decrement that digit
//     ("CS102" -> "CS101");
//  2. if the first digit anywhere in the code is >= '2', decrement it
//     with prefix and suffix unchanged ("CS201" -> "CS101").
//
// Codes with no digits, or digits already at the lowest level, yield
// no candidates. Duplicates are collapsed.
func PrerequisiteCandidates(code string) []string {
	var candidates []string

	if n := len(code); n > 0 {
		last := code[n-1]
		if last >= '2' && last <= '9' {
			candidates = append(candidates, code[:n-1]+string(last-1))
		}
	}

	for i := 0; i < len(code); i++ {
		ch := code[i]
		if ch < '0' || ch > '9' {
			continue
		}
		if ch >= '2' {
			candidate := code[:i] + string(ch-1) + code[i+1:]
			if len(candidates) == 0 || candidates[0] != candidate {
				candidates = append(candidates, candidate)
			}
		}
		break
	}

	return candidates
}
