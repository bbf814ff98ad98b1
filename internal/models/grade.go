package models

import "time"

// ComponentID identifies one graded assessment category. The set is
// closed: every enrollment is graded on the same three components.
type ComponentID int

// Graded components and their fixed weights.
const (
	ComponentMidterm   ComponentID = 1
	ComponentFinalExam ComponentID = 2
	ComponentProject   ComponentID = 3
)

var componentWeights = map[ComponentID]float64{
	ComponentMidterm:   0.4,
	ComponentFinalExam: 0.5,
	ComponentProject:   0.1,
}

var componentNames = map[ComponentID]string{
	ComponentMidterm:   "MIDTERM",
	ComponentFinalExam: "FINAL_EXAM",
	ComponentProject:   "PROJECT",
}

// Components lists every component in grading order.
func Components() []ComponentID {
	return []ComponentID{ComponentMidterm, ComponentFinalExam, ComponentProject}
}

// Weight returns the fixed weight of the component, 0 for unknown ids.
func (c ComponentID) Weight() float64 {
	return componentWeights[c]
}

// Valid reports whether the id belongs to the closed component set.
func (c ComponentID) Valid() bool {
	_, ok := componentWeights[c]
	return ok
}

func (c ComponentID) String() string {
	if name, ok := componentNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// GradeComponentRow is one stored component score for an enrollment.
// Score and FinalScore are nullable: absent is distinct from zero.
type GradeComponentRow struct {
	EnrollmentID string      `db:"enrollment_id" json:"enrollment_id"`
	ComponentID  ComponentID `db:"component_id" json:"component_id"`
	Score        *float64    `db:"score" json:"score,omitempty"`
	FinalScore   *float64    `db:"final_score" json:"final_score,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// StudentGradeRow is a component row joined with course context, used
// for transcripts, GPA and prerequisite checks.
type StudentGradeRow struct {
	EnrollmentID string      `db:"enrollment_id" json:"enrollment_id"`
	SectionID    string      `db:"section_id" json:"section_id"`
	CourseCode   string      `db:"course_code" json:"course_code"`
	CourseTitle  string      `db:"course_title" json:"course_title"`
	Credits      int         `db:"credits" json:"credits"`
	Semester     string      `db:"semester" json:"semester"`
	Year         int         `db:"year" json:"year"`
	ComponentID  ComponentID `db:"component_id" json:"component_id"`
	Score        *float64    `db:"score" json:"score,omitempty"`
	FinalScore   *float64    `db:"final_score" json:"final_score,omitempty"`
}

// GradebookEntry projects one enrollment's component scores for the
// instructor gradebook view.
type GradebookEntry struct {
	EnrollmentID string   `json:"enrollment_id"`
	StudentID    string   `json:"student_id"`
	StudentName  string   `json:"student_name"`
	Midterm      *float64 `json:"midterm,omitempty"`
	FinalExam    *float64 `json:"final_exam,omitempty"`
	Project      *float64 `json:"project,omitempty"`
	FinalScore   *float64 `json:"final_score,omitempty"`
}

// StudentGrade summarises one enrollment on a student transcript.
type StudentGrade struct {
	EnrollmentID string   `json:"enrollment_id"`
	CourseCode   string   `json:"course_code"`
	CourseTitle  string   `json:"course_title"`
	Credits      int      `json:"credits"`
	Semester     string   `json:"semester"`
	Year         int      `json:"year"`
	Midterm      *float64 `json:"midterm,omitempty"`
	FinalExam    *float64 `json:"final_exam,omitempty"`
	Project      *float64 `json:"project,omitempty"`
	FinalScore   *float64 `json:"final_score,omitempty"`
	LetterGrade  string   `json:"letter_grade,omitempty"`
}

// GPAReport is the credit-weighted grade point summary for a student.
type GPAReport struct {
	StudentID    string  `json:"student_id"`
	GPA          float64 `json:"gpa"`
	TotalCredits int     `json:"total_credits"`
	CourseCount  int     `json:"course_count"`
}

// ClassStatistics aggregates final scores across a section.
type ClassStatistics struct {
	SectionID string         `json:"section_id"`
	Count     int            `json:"count"`
	Min       *float64       `json:"min,omitempty"`
	Max       *float64       `json:"max,omitempty"`
	Mean      *float64       `json:"mean,omitempty"`
	StdDev    *float64       `json:"std_dev,omitempty"`
	Histogram map[string]int `json:"histogram"`
}

// LetterGrade maps a final score to its letter using the fixed
// cutoffs A>=90, B>=80, C>=70, D>=60, F otherwise.
func LetterGrade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// GradePoints maps a letter grade to its GPA points.
func GradePoints(letter string) float64 {
	switch letter {
	case "A":
		return 4.0
	case "B":
		return 3.0
	case "C":
		return 2.0
	case "D":
		return 1.0
	default:
		return 0.0
	}
}
